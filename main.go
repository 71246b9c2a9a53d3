// Package main implements a Telegram bot that watches YouTube channels and
// posts an alert into each subscribed chat when new content appears.
package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"youtube-notifier/bot"
	"youtube-notifier/dispatch"
	"youtube-notifier/poll"
	"youtube-notifier/registry"
	"youtube-notifier/server"
	"youtube-notifier/telemetry"
	"youtube-notifier/youtube"
)

const (
	serviceName = "youtube-notifier"
	version     = "1.0.0"
)

func main() {
	// Local development convenience; production relies on the real environment.
	_ = godotenv.Load()

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stdout, cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	logger.Info("Starting service",
		"version", version,
		"policy", string(cfg.Policy),
		"poll_interval", cfg.PollInterval.String(),
		"send_rate", cfg.SendRate,
		"dry_run", cfg.DryRun)

	shutdownTracing, err := telemetry.InitTracing(ctx, logger, serviceName, version)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	if cfg.YouTubeAPIKey == "" {
		// Lookups will fail until a key is configured; the bot still starts.
		logger.Error("YOUTUBE_API_KEY is missing")
	}
	yt, err := youtube.New(ctx, cfg.YouTubeAPIKey, logger)
	if err != nil {
		return err
	}
	resolver := youtube.NewResolver(yt, &http.Client{Timeout: 30 * time.Second}, logger)

	reg := registry.New(logger)
	commands := bot.NewCommands(resolver, yt, reg, logger)

	tg, err := bot.NewTelegram(ctx, bot.TelegramConfig{
		Token:  cfg.TelegramToken,
		APIURL: cfg.TelegramAPIURL,
	}, commands, logger)
	if err != nil {
		return err
	}
	if err := tg.SetCommands(); err != nil {
		logger.Warn("Failed to register bot commands", "error", err)
	}

	var sender dispatch.Sender = tg
	if cfg.DryRun {
		logger.Info("Dry run enabled, alerts are logged instead of sent")
		sender = dispatch.NewMockSender(logger)
	}
	dispatcher := dispatch.New(sender, cfg.SendRate, logger)

	monitor := poll.New(yt, reg, dispatcher, cfg.Policy, logger)
	if err := monitor.Start(ctx, cfg.PollInterval); err != nil {
		return err
	}
	defer monitor.Stop()

	tg.Start(ctx)
	defer tg.Stop()

	srv := server.New(&server.Config{
		Poller:   monitor,
		Registry: reg,
		Logger:   logger,
		Policy:   string(cfg.Policy),
		Version:  version,
	})
	if err := srv.ListenAndServe(ctx, cfg.Port); err != nil {
		return err
	}

	logger.Info("Shutting down")
	return nil
}
