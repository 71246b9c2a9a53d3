// Package dispatch formats alerts for new items and hands them to a chat sender.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"youtube-notifier/pkg/notifier"
	"youtube-notifier/telemetry"
)

// Sender defines the interface for chat platform implementations.
type Sender interface {
	// SendAlert delivers an alert to the tenant's destination.
	SendAlert(ctx context.Context, tenant int64, alert *Alert) error
}

// Dispatcher sends alerts through a Sender, paced by a rate limiter.
type Dispatcher struct {
	sender  Sender
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a dispatcher allowing perSecond sends per second.
// A non-positive rate disables pacing.
func New(sender Sender, perSecond int, logger *slog.Logger) *Dispatcher {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	return &Dispatcher{
		sender:  sender,
		limiter: limiter,
		logger:  logger,
	}
}

// Notify formats and sends one alert for item to tenant. There is no retry.
func (d *Dispatcher) Notify(ctx context.Context, tenant int64, item *notifier.Item) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "dispatch.notify",
		attribute.Int64("tenant", tenant),
		attribute.String("item_id", item.ID),
		attribute.String("kind", item.Kind.String()))
	defer func() {
		telemetry.ObserveAlert(item.Kind.String(), err)
		telemetry.EndSpan(span, err)
	}()

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}

	alert := Format(item)
	d.logger.Info("Sending alert",
		"tenant", tenant,
		"channel_id", item.ChannelID,
		"item_id", item.ID,
		"kind", item.Kind.String(),
		"title", alert.Title)

	if err := d.sender.SendAlert(ctx, tenant, alert); err != nil {
		return fmt.Errorf("send alert to %d: %w", tenant, err)
	}
	return nil
}
