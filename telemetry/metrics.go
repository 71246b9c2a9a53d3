// Package telemetry provides Prometheus metrics and optional OpenTelemetry tracing.
package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Channel check outcomes.
const (
	CheckNew   = "new"
	CheckSeen  = "seen"
	CheckNone  = "none"
	CheckError = "error"
)

var (
	PollTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytnotify_poll_ticks_total",
		Help: "Number of completed poll ticks",
	})
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ytnotify_poll_tick_duration_seconds",
		Help:    "Duration of one poll tick",
		Buckets: prometheus.DefBuckets,
	})
	ChannelChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytnotify_channel_checks_total",
		Help: "Per (chat, channel) check outcomes",
	}, []string{"result"})
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytnotify_youtube_requests_total",
		Help: "YouTube Data API requests by endpoint and status",
	}, []string{"endpoint", "status"})
	Alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytnotify_alerts_total",
		Help: "Alerts handed to the chat platform by kind and status",
	}, []string{"kind", "status"})
	TrackedChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytnotify_tracked_channels",
		Help: "Tracked (chat, channel) pairs at the last tick",
	})
	Tenants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytnotify_tenants",
		Help: "Chats with at least one tracked channel at the last tick",
	})
)

// ObserveAPI counts one YouTube API call.
func ObserveAPI(endpoint string, err error) {
	APIRequests.WithLabelValues(endpoint, status(err)).Inc()
}

// ObserveAlert counts one alert delivery attempt.
func ObserveAlert(kind string, err error) {
	Alerts.WithLabelValues(kind, status(err)).Inc()
}

// SetTracked records registry size.
func SetTracked(tenants, channels int) {
	Tenants.Set(float64(tenants))
	TrackedChannels.Set(float64(channels))
}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
