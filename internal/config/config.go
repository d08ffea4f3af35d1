// Package config loads runtime settings from the environment, an optional
// .env file and an optional YAML seed fixture.
package config

import (
	"errors"
	"fmt"
	"forgery-sim/internal/core/domain"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultModel = "gemini-2.5-flash"

type Config struct {
	APIKey   string
	Model    string
	LogLevel string
	SeedPath string

	TelegramToken  string
	TelegramChatID int64

	Seed Seed
}

// Load reads the environment. envFile is loaded first when present; a
// missing default .env is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Model:    DefaultModel,
		LogLevel: "info",
	}
	cfg.applyEnv()

	seed := DefaultSeed(time.Now())
	if cfg.SeedPath != "" {
		var err error
		seed, err = LoadSeed(cfg.SeedPath)
		if err != nil {
			return nil, err
		}
	}
	cfg.Seed = seed
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.APIKey = firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("API_KEY"))
	if v := os.Getenv("FORGESIM_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("FORGESIM_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("FORGESIM_SEED"); v != "" {
		c.SeedPath = v
	}
	c.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.TelegramChatID = id
		}
	}
}

// Validate fails fast on settings the analysis client cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY (or API_KEY)", domain.ErrMissingCredential)
	}
	return c.Seed.Validate()
}

// ValidateTelegram checks the extra settings of the telegram front-end.
func (c *Config) ValidateTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if c.TelegramChatID == 0 {
		return errors.New("TELEGRAM_CHAT_ID is required and must be numeric")
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Seed is the fixture the feed starts from and resets to.
type Seed struct {
	Users []domain.User
	Posts []domain.Post
}

type seedFile struct {
	Users []struct {
		ID     int    `yaml:"id"`
		Name   string `yaml:"name"`
		Avatar string `yaml:"avatar"`
	} `yaml:"users"`
	Posts []struct {
		ID       string        `yaml:"id"`
		UserID   int           `yaml:"user_id"`
		ImageURL string        `yaml:"image_url"`
		Caption  string        `yaml:"caption"`
		Age      time.Duration `yaml:"age"`
	} `yaml:"posts"`
}

// DefaultSeed returns Alice, Bob and Alice's mountain post from two hours
// before now.
func DefaultSeed(now time.Time) Seed {
	return Seed{
		Users: []domain.User{
			{ID: domain.FirstActorID, Name: "Original Poster Alice", Avatar: "https://picsum.photos/seed/alice/100/100"},
			{ID: domain.SecondActorID, Name: "Tamperer Bob", Avatar: "https://picsum.photos/seed/bob/100/100"},
		},
		Posts: []domain.Post{{
			ID:        "post1",
			UserID:    domain.FirstActorID,
			ImageURL:  "https://picsum.photos/seed/nature/800/800",
			Caption:   "A beautiful day in the mountains! 🏔️",
			CreatedAt: now.Add(-2 * time.Hour),
		}},
	}
}

func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	return ParseSeed(data, time.Now())
}

// ParseSeed decodes a YAML fixture. Post ages are relative to now.
func ParseSeed(data []byte, now time.Time) (Seed, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	var s Seed
	for _, u := range f.Users {
		s.Users = append(s.Users, domain.User{ID: u.ID, Name: u.Name, Avatar: u.Avatar})
	}
	for _, p := range f.Posts {
		s.Posts = append(s.Posts, domain.Post{
			ID:        p.ID,
			UserID:    p.UserID,
			ImageURL:  p.ImageURL,
			Caption:   p.Caption,
			CreatedAt: now.Add(-p.Age),
		})
	}
	if err := s.Validate(); err != nil {
		return Seed{}, err
	}
	return s, nil
}

// Validate enforces exactly the two scenario actors and seed posts that
// reference them.
func (s Seed) Validate() error {
	if len(s.Users) != 2 {
		return fmt.Errorf("seed must define exactly 2 users, got %d", len(s.Users))
	}
	known := make(map[int]bool, 2)
	for _, u := range s.Users {
		if u.ID != domain.FirstActorID && u.ID != domain.SecondActorID {
			return fmt.Errorf("seed user id %d: must be %d or %d", u.ID, domain.FirstActorID, domain.SecondActorID)
		}
		if strings.TrimSpace(u.Name) == "" {
			return fmt.Errorf("seed user %d has no name", u.ID)
		}
		known[u.ID] = true
	}
	if len(known) != 2 {
		return errors.New("seed users must have distinct ids")
	}
	ids := make(map[string]bool, len(s.Posts))
	for _, p := range s.Posts {
		if p.ID == "" || ids[p.ID] {
			return fmt.Errorf("seed post id %q is empty or duplicated", p.ID)
		}
		ids[p.ID] = true
		if !known[p.UserID] {
			return fmt.Errorf("seed post %s references unknown user %d", p.ID, p.UserID)
		}
	}
	return nil
}
