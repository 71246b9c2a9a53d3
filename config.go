package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"youtube-notifier/pkg/notifier"
)

const (
	defaultPollInterval = 3 * time.Minute
	minPollInterval     = 30 * time.Second
	defaultSendRate     = 5
	defaultPort         = "8080"
)

// Config holds settings read from the environment.
type Config struct {
	TelegramToken  string
	TelegramAPIURL string
	YouTubeAPIKey  string
	Policy         notifier.Policy
	Port           string
	LogFormat      string
	PollInterval   time.Duration
	SendRate       int
	LogLevel       slog.Level
	DryRun         bool
}

// loadConfig reads configuration through getenv (os.Getenv in production).
func loadConfig(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		TelegramToken:  strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN")),
		TelegramAPIURL: strings.TrimSpace(getenv("TELEGRAM_API_URL")),
		YouTubeAPIKey:  strings.TrimSpace(getenv("YOUTUBE_API_KEY")),
		Port:           getenv("PORT"),
		PollInterval:   defaultPollInterval,
		SendRate:       defaultSendRate,
	}

	var errs []error

	if cfg.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN environment variable required"))
	}

	policy, err := notifier.ParsePolicy(getenv("WATCH_MODE"))
	if err != nil {
		errs = append(errs, fmt.Errorf("WATCH_MODE: %w", err))
	}
	cfg.Policy = policy

	if v := strings.TrimSpace(getenv("POLL_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("POLL_INTERVAL: %w", err))
		case d < minPollInterval:
			errs = append(errs, fmt.Errorf("POLL_INTERVAL: %v is below the %v minimum", d, minPollInterval))
		default:
			cfg.PollInterval = d
		}
	}

	if v := strings.TrimSpace(getenv("SEND_RATE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("SEND_RATE: want a positive integer, got %q", v))
		} else {
			cfg.SendRate = n
		}
	}

	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if _, err := strconv.ParseUint(cfg.Port, 10, 16); err != nil {
		errs = append(errs, fmt.Errorf("PORT: invalid port %q", cfg.Port))
	}

	cfg.DryRun = isTrue(getenv("DRY_RUN"))

	lvl, err := parseLevel(getenv("LOG_LEVEL"))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.LogLevel = lvl

	switch f := strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT"))); f {
	case "", "json":
		cfg.LogFormat = "json"
	case "text":
		cfg.LogFormat = "text"
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT: unknown format %q (want json or text)", f))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: unknown level %q", s)
	}
}

func isTrue(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
