// Package session holds the single demo session: the active user, the
// scenario machine and the feed, with every mutation behind a named
// operation.
package session

import (
	"fmt"
	"forgery-sim/internal/core/domain"
	"forgery-sim/internal/core/ports"
	"forgery-sim/internal/imaging"
	"forgery-sim/internal/scenario"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type Session struct {
	mu       sync.Mutex
	feed     ports.Feed
	machine  *scenario.Machine
	analyzer ports.Analyzer
	clock    ports.Clock
	logger   *zap.Logger
	newID    func(prefix string) string

	first, second domain.User
	active        domain.User

	// inflight admits one analysis at a time; busy mirrors it for readers.
	inflight *semaphore.Weighted
	busy     atomic.Bool
}

type Option func(*Session)

func WithClock(c ports.Clock) Option {
	return func(s *Session) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator replaces the UUIDv7-based id generator.
func WithIDGenerator(fn func(prefix string) string) Option {
	return func(s *Session) { s.newID = fn }
}

func New(feed ports.Feed, analyzer ports.Analyzer, opts ...Option) (*Session, error) {
	first, ok := feed.User(domain.FirstActorID)
	if !ok {
		return nil, fmt.Errorf("%w: first actor %d not seeded", domain.ErrUnknownUser, domain.FirstActorID)
	}
	second, ok := feed.User(domain.SecondActorID)
	if !ok {
		return nil, fmt.Errorf("%w: second actor %d not seeded", domain.ErrUnknownUser, domain.SecondActorID)
	}

	s := &Session{
		feed:     feed,
		machine:  scenario.New(),
		analyzer: analyzer,
		clock:    ports.SystemClock{},
		logger:   zap.NewNop(),
		newID:    uuidV7ID,
		first:    first,
		second:   second,
		active:   first,
		inflight: semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func uuidV7ID(prefix string) string {
	return prefix + "_" + uuid.Must(uuid.NewV7()).String()
}

// State is a point-in-time copy of everything a presenter renders.
type State struct {
	Stage         domain.ScenarioStage
	ActiveUser    domain.User
	Busy          bool
	Posts         []domain.Post
	Notifications []domain.Notification
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Stage:         s.machine.Stage(),
		ActiveUser:    s.active,
		Busy:          s.busy.Load(),
		Posts:         s.feed.Posts(),
		Notifications: s.feed.Notifications(),
	}
}

func (s *Session) Stage() domain.ScenarioStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Stage()
}

// Busy reports whether a tamper analysis is in flight. Presenters check it
// before offering a new upload.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

func (s *Session) Users() []domain.User {
	return s.feed.Users()
}

func (s *Session) User(id int) (domain.User, bool) {
	return s.feed.User(id)
}

func (s *Session) CurrentUser() domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) SwitchUser(id int) (domain.User, error) {
	u, ok := s.feed.User(id)
	if !ok {
		return domain.User{}, fmt.Errorf("%w: %d", domain.ErrUnknownUser, id)
	}
	s.mu.Lock()
	s.active = u
	s.mu.Unlock()
	s.logger.Debug("switched user", zap.Int("user_id", u.ID))
	return u, nil
}

// CreatePost appends an ordinary post. The first actor's post advances the
// scenario out of its initial stage; every other post is only recorded.
func (s *Session) CreatePost(actorID int, img domain.Image, caption string) (domain.Post, error) {
	if strings.TrimSpace(caption) == "" {
		return domain.Post{}, domain.ErrEmptyCaption
	}
	if _, ok := s.feed.User(actorID); !ok {
		return domain.Post{}, fmt.Errorf("%w: %d", domain.ErrUnknownUser, actorID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	post := s.feed.AppendPost(domain.Post{
		ID:        s.newID("post"),
		UserID:    actorID,
		ImageURL:  imaging.DataURI(img),
		Caption:   caption,
		CreatedAt: s.clock.Now(),
	})
	s.fireLocked(scenario.EventPostCreated, actorID)
	return post, nil
}

// AcknowledgeNotification marks one notification read and returns the post
// it refers to so the presenter can show its report.
func (s *Session) AcknowledgeNotification(id string) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		target domain.Notification
		found  bool
	)
	for _, n := range s.feed.Notifications() {
		if n.ID == id {
			target, found = n, true
			break
		}
	}
	if !found {
		return domain.Post{}, fmt.Errorf("%w: %s", domain.ErrNotificationNotFound, id)
	}
	post, ok := s.feed.Post(target.PostID)
	if !ok {
		return domain.Post{}, fmt.Errorf("%w: %s", domain.ErrPostNotFound, target.PostID)
	}

	s.feed.MarkNotificationRead(id)
	if post.IsTampered {
		s.fireLocked(scenario.EventNotificationAcknowledged, s.active.ID)
	}
	return post, nil
}

// ViewAnalysis returns a post that carries an analysis report.
func (s *Session) ViewAnalysis(postID string) (domain.Post, error) {
	post, ok := s.feed.Post(postID)
	if !ok {
		return domain.Post{}, fmt.Errorf("%w: %s", domain.ErrPostNotFound, postID)
	}
	if post.Analysis == nil {
		return domain.Post{}, fmt.Errorf("%w: %s", domain.ErrNoAnalysis, postID)
	}
	return post, nil
}

func (s *Session) ClearNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed.ClearNotifications()
}

// Reset restores the seed feed, clears notifications, rewinds the scenario
// and makes the first actor active again.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed.Reset()
	s.fireLocked(scenario.EventReset, s.active.ID)
	s.active = s.first
	s.logger.Info("scenario reset")
}

func (s *Session) fireLocked(event scenario.Event, actor int) {
	from := s.machine.Stage()
	to, changed := s.machine.Fire(event, actor)
	if !changed {
		return
	}
	s.logger.Info("scenario advanced",
		zap.String("event", string(event)),
		zap.Int("actor", actor),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
}
