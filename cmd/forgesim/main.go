package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"forgery-sim/internal/brain"
	"forgery-sim/internal/config"
	"forgery-sim/internal/logging"
	"forgery-sim/internal/session"
	"forgery-sim/internal/storage"
	"forgery-sim/internal/ui/console"
	"forgery-sim/internal/ui/telegram"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	envFile  string
	seedPath string
	model    string
	verbose  bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "forgesim",
	Short: "Forgery detection simulation for a two-user image feed",
	Long: `forgesim walks through a scripted demo: Alice posts an image, Bob uploads a
tampered copy, and Gemini writes a four-phase forensic report that reaches
Alice as a notification.

Run without a subcommand to start the console front-end.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}
		if seedPath != "" {
			if cfg.Seed, err = config.LoadSeed(seedPath); err != nil {
				return err
			}
		}
		if model != "" {
			cfg.Model = model
		}

		logger, err = logging.New(cfg.LogLevel, verbose)
		if err != nil {
			return err
		}
		// Missing credentials must stop us before anything else starts.
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(cmd.Context())
	},
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Drive the scenario from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConsole(cmd.Context())
	},
}

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Drive the scenario from a Telegram chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTelegram(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment from this file (default: .env if present)")
	rootCmd.PersistentFlags().StringVar(&seedPath, "seed", "", "YAML fixture with users and seed posts")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Gemini model name (overrides FORGESIM_MODEL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(consoleCmd, telegramCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func newSession(ctx context.Context) (*session.Session, error) {
	analyzer, err := brain.NewGeminiBrain(ctx, cfg.APIKey,
		brain.WithModel(cfg.Model),
		brain.WithLogger(logger.Named("brain")),
	)
	if err != nil {
		return nil, err
	}

	feed := storage.NewMemoryStorage(cfg.Seed.Users, cfg.Seed.Posts)
	sess, err := session.New(feed, analyzer, session.WithLogger(logger.Named("session")))
	if err != nil {
		return nil, err
	}
	logger.Info("session ready",
		zap.String("model", analyzer.Model()),
		zap.Int("seed_posts", len(cfg.Seed.Posts)))
	return sess, nil
}

func runConsole(ctx context.Context) error {
	sess, err := newSession(ctx)
	if err != nil {
		return err
	}
	c := console.New(sess, os.Stdin, os.Stdout, console.WithLogger(logger.Named("console")))
	return c.Run(ctx)
}

func runTelegram(ctx context.Context) error {
	if err := cfg.ValidateTelegram(); err != nil {
		return err
	}
	sess, err := newSession(ctx)
	if err != nil {
		return err
	}
	bot, err := telegram.NewTelegramUI(cfg.TelegramToken, cfg.TelegramChatID, sess,
		telegram.WithLogger(logger.Named("telegram")),
	)
	if err != nil {
		return err
	}
	fmt.Println("🚀 Telegram presenter running. Press Ctrl+C to stop.")
	return bot.Run(ctx)
}
