// Package poll handles the periodic check of tracked channels for new content.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"

	"youtube-notifier/pkg/notifier"
	"youtube-notifier/telemetry"
)

// Source fetches the latest qualifying item for a channel.
type Source interface {
	Latest(ctx context.Context, channelID string, policy notifier.Policy) (*notifier.Item, error)
}

// Registry is the tracking state the monitor reads and updates.
type Registry interface {
	Snapshot() []notifier.Tracking
	Tracked(tenant int64, channelID string) bool
	Marker(tenant int64, channelID string) (string, bool)
	SetMarker(tenant int64, channelID, itemID string) bool
	ClearMarker(tenant int64, channelID string)
	Stats() (tenants, channels int)
}

// Dispatcher delivers an alert for a new item to a tenant.
type Dispatcher interface {
	Notify(ctx context.Context, tenant int64, item *notifier.Item) error
}

// TickResult summarizes one poll tick.
type TickResult struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
	Pairs    int           `json:"pairs"`
	Fetched  int           `json:"fetched"`
	Alerts   int           `json:"alerts"`
	Failures int           `json:"failures"`
}

// Monitor handles channel polling logic.
type Monitor struct {
	last       TickResult
	source     Source
	registry   Registry
	dispatcher Dispatcher
	logger     *slog.Logger
	cron       *cron.Cron
	policy     notifier.Policy
	tickMu     sync.Mutex // serializes ticks
	lastMu     sync.RWMutex
	cronMu     sync.Mutex
}

// New creates a new poll monitor.
func New(source Source, registry Registry, dispatcher Dispatcher, policy notifier.Policy, logger *slog.Logger) *Monitor {
	return &Monitor{
		source:     source,
		registry:   registry,
		dispatcher: dispatcher,
		policy:     policy,
		logger:     logger,
	}
}

// fetchResult is a cached lookup for one channel within a tick.
type fetchResult struct {
	item *notifier.Item
	err  error
}

// CheckAll runs one tick over every tracked (tenant, channel) pair.
// Ticks never overlap; a call made while another tick runs waits for it.
func (m *Monitor) CheckAll(ctx context.Context) error {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "poll.tick", attribute.String("policy", string(m.policy)))
	var tickErr error
	defer func() { telemetry.EndSpan(span, tickErr) }()

	pairs := m.registry.Snapshot()
	tenants, channels := m.registry.Stats()
	telemetry.SetTracked(tenants, channels)

	res := TickResult{Started: time.Now(), Pairs: len(pairs)}
	m.logger.Info("Checking tracked channels",
		"pairs", len(pairs),
		"tenants", tenants,
		"policy", string(m.policy),
		"timestamp", res.Started.Format(time.RFC3339))

	// Each channel is fetched at most once per tick, however many tenants track it.
	cache := make(map[string]fetchResult)

	telemetry.TimeFunc(telemetry.TickDuration, func() {
		for _, p := range pairs {
			if err := ctx.Err(); err != nil {
				m.logger.Info("Context cancelled, stopping poll check", "error", err)
				tickErr = err
				return
			}
			switch outcome := m.checkPair(ctx, p, cache); outcome {
			case telemetry.CheckNew:
				res.Alerts++
			case telemetry.CheckError:
				res.Failures++
			}
		}
	})

	res.Fetched = len(cache)
	res.Duration = time.Since(res.Started)
	m.lastMu.Lock()
	m.last = res
	m.lastMu.Unlock()
	telemetry.PollTicks.Inc()

	m.logger.Info("Channel check completed",
		"pairs", res.Pairs,
		"fetched", res.Fetched,
		"alerts", res.Alerts,
		"failures", res.Failures,
		"duration_ms", res.Duration.Milliseconds())

	return tickErr
}

// checkPair applies the dedup rule to one pair and returns the check outcome.
func (m *Monitor) checkPair(ctx context.Context, p notifier.Tracking, cache map[string]fetchResult) string {
	// Removed since the snapshot was taken.
	if !m.registry.Tracked(p.Tenant, p.ChannelID) {
		m.logger.Debug("Skipping untracked channel", "tenant", p.Tenant, "channel_id", p.ChannelID)
		return ""
	}

	fr, ok := cache[p.ChannelID]
	if !ok {
		fr.item, fr.err = m.fetch(ctx, p.ChannelID)
		cache[p.ChannelID] = fr
	}

	outcome := m.apply(ctx, p, fr)
	if outcome != "" {
		telemetry.ChannelChecks.WithLabelValues(outcome).Inc()
	}
	return outcome
}

func (m *Monitor) fetch(ctx context.Context, channelID string) (*notifier.Item, error) {
	ctx, span := telemetry.StartSpan(ctx, "poll.fetch", attribute.String("channel_id", channelID))
	item, err := m.source.Latest(ctx, channelID, m.policy)
	telemetry.EndSpan(span, err)
	return item, err
}

func (m *Monitor) apply(ctx context.Context, p notifier.Tracking, fr fetchResult) string {
	// A failed lookup counts as no qualifying item for this tick.
	if fr.err != nil {
		m.logger.Warn("Channel lookup failed, clearing marker",
			"tenant", p.Tenant,
			"channel_id", p.ChannelID,
			"error", fr.err)
		m.registry.ClearMarker(p.Tenant, p.ChannelID)
		return telemetry.CheckError
	}

	if fr.item == nil {
		if _, had := m.registry.Marker(p.Tenant, p.ChannelID); had {
			m.logger.Info("No qualifying item, clearing marker", "tenant", p.Tenant, "channel_id", p.ChannelID)
		}
		m.registry.ClearMarker(p.Tenant, p.ChannelID)
		return telemetry.CheckNone
	}

	marker, _ := m.registry.Marker(p.Tenant, p.ChannelID)
	if fr.item.ID == marker {
		m.logger.Debug("Item already notified",
			"tenant", p.Tenant,
			"channel_id", p.ChannelID,
			"item_id", fr.item.ID)
		return telemetry.CheckSeen
	}

	// Marker first: a failed send is not retried. The check and the write
	// share one lock, so a concurrent removal wins.
	if !m.registry.SetMarker(p.Tenant, p.ChannelID, fr.item.ID) {
		m.logger.Debug("Skipping channel removed during tick", "tenant", p.Tenant, "channel_id", p.ChannelID)
		return ""
	}

	m.logger.Info("New item detected",
		"tenant", p.Tenant,
		"channel_id", p.ChannelID,
		"item_id", fr.item.ID,
		"kind", fr.item.Kind.String(),
		"previous", marker)

	if err := m.dispatcher.Notify(ctx, p.Tenant, fr.item); err != nil {
		m.logger.Warn("Alert dispatch failed",
			"tenant", p.Tenant,
			"channel_id", p.ChannelID,
			"item_id", fr.item.ID,
			"error", err)
	}
	return telemetry.CheckNew
}

// LastTick returns the summary of the most recent completed tick.
func (m *Monitor) LastTick() TickResult {
	m.lastMu.RLock()
	defer m.lastMu.RUnlock()
	return m.last
}

// Start runs a tick immediately and then every interval until ctx is done or
// Stop is called. A slow tick delays the next one.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid poll interval %v", interval)
	}

	m.cronMu.Lock()
	defer m.cronMu.Unlock()
	if m.cron != nil {
		return errors.New("monitor already started")
	}

	log := cronLogger{logger: m.logger}
	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.DelayIfStillRunning(log)),
	)
	job := cron.FuncJob(func() { m.tick(ctx) })
	c.Schedule(cron.Every(interval), job)
	m.cron = c

	m.logger.Info("Starting poll loop", "interval", interval.String(), "policy", string(m.policy))
	go m.tick(ctx)
	c.Start()

	go func() {
		<-ctx.Done()
		m.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running tick to finish.
func (m *Monitor) Stop() {
	m.cronMu.Lock()
	c := m.cron
	m.cron = nil
	m.cronMu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	// Covers the initial tick, which runs outside the scheduler.
	m.tickMu.Lock()
	m.tickMu.Unlock()
	m.logger.Info("Poll loop stopped")
}

func (m *Monitor) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := m.CheckAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("Poll tick failed", "error", err)
	}
}

// cronLogger routes robfig/cron logs into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("Scheduler: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("Scheduler: "+msg, append(keysAndValues, "error", err)...)
}
