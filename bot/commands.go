// Package bot implements the chat commands for managing tracked channels and
// the Telegram transport that carries them.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"youtube-notifier/registry"
	"youtube-notifier/youtube"
)

// User-facing replies.
const (
	msgNoneTracked    = "No channels are currently being tracked."
	msgSelectRemove   = "Select a channel to remove:"
	msgLookupFailed   = "Error: YouTube lookup failed, please try again later."
	msgNameNotFound   = "Error: Unable to retrieve the channel name. Please check the channel ID or username."
	msgAddUsage       = "Usage: /add_channel <channel ID, URL, @handle or name>"
	msgPong           = "Pong!"
	unknownChannelFmt = "Unknown Channel (ID: %s)"
)

// Resolver maps user input to a channel ID.
type Resolver interface {
	Resolve(ctx context.Context, input string) (string, error)
}

// Titles looks up channel display names.
type Titles interface {
	ChannelTitle(ctx context.Context, channelID string) (string, error)
	ChannelTitles(ctx context.Context, channelIDs []string) (map[string]string, error)
}

// Registry is the tracking state the commands mutate.
type Registry interface {
	Add(tenant int64, channelID string) bool
	Remove(tenant int64, channelID string) error
	Channels(tenant int64) []string
	Tracked(tenant int64, channelID string) bool
}

// Option is one entry of the removal prompt.
type Option struct {
	Label string
	Value string // channel ID
}

// Commands handles tracking commands independently of the chat platform.
// Every method returns the reply text for the tenant.
type Commands struct {
	resolver Resolver
	titles   Titles
	registry Registry
	logger   *slog.Logger
}

// NewCommands creates the command handlers.
func NewCommands(resolver Resolver, titles Titles, registry Registry, logger *slog.Logger) *Commands {
	return &Commands{
		resolver: resolver,
		titles:   titles,
		registry: registry,
		logger:   logger,
	}
}

// AddChannel resolves input and starts tracking the channel for tenant.
func (c *Commands) AddChannel(ctx context.Context, tenant int64, input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return msgAddUsage
	}

	channelID, err := c.resolver.Resolve(ctx, input)
	if err != nil {
		if youtube.IsLookupError(err) {
			c.logger.Warn("Channel resolution failed", "tenant", tenant, "input", input, "error", err)
			return msgLookupFailed
		}
		c.logger.Info("Channel not found", "tenant", tenant, "input", input, "error", err)
		return fmt.Sprintf("Error: Unable to find channel by the input '%s'. Please check the channel ID or username.", input)
	}

	if c.registry.Tracked(tenant, channelID) {
		return fmt.Sprintf("Channel %s is already being tracked.", channelID)
	}

	name, err := c.titles.ChannelTitle(ctx, channelID)
	if err != nil {
		if youtube.IsLookupError(err) {
			c.logger.Warn("Channel title lookup failed", "tenant", tenant, "channel_id", channelID, "error", err)
			return msgLookupFailed
		}
		return msgNameNotFound
	}

	if !c.registry.Add(tenant, channelID) {
		// Added concurrently by another command.
		return fmt.Sprintf("Channel %s is already being tracked.", channelID)
	}
	c.logger.Info("Tracking channel", "tenant", tenant, "channel_id", channelID, "name", name)
	return "Now tracking YouTube channel: " + name
}

// RemoveOptions lists the tenant's channels for the removal prompt. With no
// channels it returns no options and the "none tracked" reply.
func (c *Commands) RemoveOptions(ctx context.Context, tenant int64) ([]Option, string) {
	channels := c.registry.Channels(tenant)
	if len(channels) == 0 {
		return nil, msgNoneTracked
	}

	names := c.names(ctx, channels)
	opts := make([]Option, 0, len(channels))
	for i, id := range channels {
		opts = append(opts, Option{Label: names[i], Value: id})
	}
	return opts, msgSelectRemove
}

// RemoveChannel stops tracking channelID for tenant and forgets its marker.
func (c *Commands) RemoveChannel(ctx context.Context, tenant int64, channelID string) string {
	if err := c.registry.Remove(tenant, channelID); err != nil {
		if errors.Is(err, registry.ErrNotTracked) {
			return fmt.Sprintf("Channel %s is not being tracked.", channelID)
		}
		c.logger.Error("Failed to remove channel", "tenant", tenant, "channel_id", channelID, "error", err)
		return "Error: " + err.Error()
	}

	name, err := c.titles.ChannelTitle(ctx, channelID)
	if err != nil {
		name = "Unknown Channel"
	}
	c.logger.Info("Removed channel", "tenant", tenant, "channel_id", channelID, "name", name)
	return "Removed YouTube channel: " + name
}

// ListChannels renders the tenant's tracked channels by display name.
func (c *Commands) ListChannels(ctx context.Context, tenant int64) string {
	channels := c.registry.Channels(tenant)
	if len(channels) == 0 {
		return msgNoneTracked
	}
	return "Currently tracking these channels:\n" + strings.Join(c.names(ctx, channels), "\n")
}

// Ping answers the liveness command.
func (c *Commands) Ping() string {
	return msgPong
}

// names resolves display names in one batched lookup. Channels without a
// name render as "Unknown Channel (ID: …)".
func (c *Commands) names(ctx context.Context, channels []string) []string {
	titles, err := c.titles.ChannelTitles(ctx, channels)
	if err != nil {
		c.logger.Warn("Channel title lookup failed", "count", len(channels), "error", err)
		titles = nil
	}

	out := make([]string, len(channels))
	for i, id := range channels {
		if name := titles[id]; name != "" {
			out[i] = name
			continue
		}
		out[i] = fmt.Sprintf(unknownChannelFmt, id)
	}
	return out
}
