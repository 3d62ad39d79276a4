package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/quill/internal/anthropic"
	"github.com/MikeSquared-Agency/quill/internal/api"
	"github.com/MikeSquared-Agency/quill/internal/config"
	"github.com/MikeSquared-Agency/quill/internal/gemini"
	"github.com/MikeSquared-Agency/quill/internal/generation"
	"github.com/MikeSquared-Agency/quill/internal/hermes"
	"github.com/MikeSquared-Agency/quill/internal/processor"
	"github.com/MikeSquared-Agency/quill/internal/reply"
	"github.com/MikeSquared-Agency/quill/internal/slack"
	"github.com/MikeSquared-Agency/quill/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "quill",
	Short:         "Drafts brand-safe social replies",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and NATS workers",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, draftCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("quill failed", "error", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return err
	}

	slog.Info("quill starting", "port", cfg.Port, "provider", cfg.Provider)

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	// Database (optional: drafts are not persisted without it)
	var db *store.Store
	var drafts processor.DraftStore
	var reader api.DraftReader
	if cfg.DatabaseURL != "" {
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		drafts, reader = db, db
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set, drafts will not be stored")
	}

	// NATS/Hermes (optional)
	var hermesClient *hermes.Client
	var pub processor.Publisher
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer hermesClient.Close()
		pub = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	// Slack poster (optional, no review loop without it)
	var reviewer processor.Reviewer
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		reviewer = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, running without review loop")
	}

	proc := processor.New(pipeline, drafts, pub, reviewer, slog.Default())

	if hermesClient != nil {
		if err := hermesClient.QueueSubscribe(hermes.SubjectReplyRequested, cfg.NatsQueue, proc.HandleReplyRequested); err != nil {
			return fmt.Errorf("subscribe reply requests: %w", err)
		}
		if err := hermesClient.Subscribe(hermes.SubjectSlackReaction, proc.HandleReaction); err != nil {
			return fmt.Errorf("subscribe slack reactions: %w", err)
		}
		if err := hermesClient.Publish(hermes.SubjectAgentRegistered, hermes.AgentRegistered{
			Agent:      "quill",
			Subscribes: []string{hermes.SubjectReplyRequested, hermes.SubjectSlackReaction},
			Publishes:  []string{hermes.SubjectReplyGenerated, hermes.SubjectReplyFlagged, hermes.SubjectReplyReviewed},
			Provider:   cfg.Provider,
			StartedAt:  time.Now().UTC(),
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	srv := api.NewServer(cfg.Port, cfg.APIToken, proc, reader, slog.Default())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	slog.Info("quill ready", "port", cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	if hermesClient != nil {
		if err := hermesClient.Drain(); err != nil {
			slog.Warn("nats drain", "error", err)
		}
	}
	slog.Info("quill stopped")
	return nil
}

// newPipeline builds the generation backend named by cfg.Provider.
func newPipeline(ctx context.Context, cfg config.Config) (*reply.Pipeline, error) {
	var gen generation.Client
	switch cfg.Provider {
	case config.ProviderGemini:
		c, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		gen = c
		slog.Info("gemini client ready", "model", cfg.GeminiModel)
	default:
		gen = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		slog.Info("anthropic client ready", "model", cfg.AnthropicModel)
	}

	return reply.New(generation.WithLogging(gen, slog.Default()), slog.Default(),
		reply.WithBrand(cfg.Brand),
		reply.WithMaxTokens(cfg.MaxTokens),
		reply.WithAnalysisCache(cfg.AnalysisCacheSize),
	), nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
