// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"youtube-notifier/poll"
)

// Poller interface for triggering checks.
type Poller interface {
	CheckAll(ctx context.Context) error
	LastTick() poll.TickResult
}

// Registry interface for tracking statistics.
type Registry interface {
	Stats() (tenants, channels int)
}

// Server handles HTTP requests.
type Server struct {
	started  time.Time
	poller   Poller
	registry Registry
	logger   *slog.Logger
	policy   string
	version  string
}

// Config holds server configuration.
type Config struct {
	Poller   Poller
	Registry Registry
	Logger   *slog.Logger
	Policy   string
	Version  string
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		started:  time.Now(),
		poller:   cfg.Poller,
		registry: cfg.Registry,
		logger:   cfg.Logger,
		policy:   cfg.Policy,
		version:  cfg.Version,
	}
}

// Handler returns the router for all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/pollz", s.handlePoll)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	// Configure server with timeouts to prevent resource exhaustion
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,  // Time to read request headers and body
		WriteTimeout:      5 * time.Minute,   // /pollz runs a full tick
		IdleTimeout:       120 * time.Second, // Time to keep connection alive between requests
		ReadHeaderTimeout: 5 * time.Second,   // Time to read request headers only
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
		return
	}
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("Poll endpoint triggered")

	if err := s.poller.CheckAll(r.Context()); err != nil {
		s.logger.Error("Poll check failed", "error", err)
		http.Error(w, "Check failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"completed"}`); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

// statusResponse is the body of /status.
type statusResponse struct {
	LastTick *poll.TickResult `json:"last_tick,omitempty"`
	Policy   string           `json:"policy"`
	Version  string           `json:"version,omitempty"`
	Uptime   string           `json:"uptime"`
	Tenants  int              `json:"tenants"`
	Channels int              `json:"channels"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tenants, channels := s.registry.Stats()
	resp := statusResponse{
		Policy:   s.policy,
		Version:  s.version,
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Tenants:  tenants,
		Channels: channels,
	}
	if last := s.poller.LastTick(); !last.Started.IsZero() {
		resp.LastTick = &last
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("Failed to write status response", "error", err)
	}
}
