package dispatch

import (
	"context"
	"log/slog"
	"sync"
)

// MockSender logs alerts instead of sending them, for local development.
type MockSender struct {
	logger *slog.Logger
	sent   []SentAlert
	mu     sync.Mutex
}

// SentAlert is an alert recorded by MockSender.
type SentAlert struct {
	Alert  *Alert
	Tenant int64
}

// NewMockSender creates a new mock sender.
func NewMockSender(logger *slog.Logger) *MockSender {
	return &MockSender{
		logger: logger,
	}
}

// SendAlert logs the alert instead of sending it.
func (m *MockSender) SendAlert(_ context.Context, tenant int64, alert *Alert) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentAlert{Tenant: tenant, Alert: alert})
	m.mu.Unlock()

	m.logger.Info("MOCK ALERT",
		"tenant", tenant,
		"title", alert.Title,
		"url", alert.URL,
		"photo", alert.PhotoURL)
	return nil
}

// Sent returns the alerts recorded so far.
func (m *MockSender) Sent() []SentAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentAlert(nil), m.sent...)
}
