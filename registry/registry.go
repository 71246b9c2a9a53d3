// Package registry keeps the in-memory record of which YouTube channels each
// chat tracks, plus the last-seen item per (chat, channel).
// Nothing is persisted: a restart starts from an empty registry.
package registry

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"youtube-notifier/pkg/notifier"
)

// ErrNotTracked is returned when removing a channel the tenant does not track.
var ErrNotTracked = errors.New("channel not tracked")

type markerKey struct {
	channelID string
	tenant    int64
}

// Registry maps tenants to their ordered list of tracked channels.
type Registry struct {
	logger  *slog.Logger
	tenants map[int64][]string
	markers map[markerKey]string
	mu      sync.RWMutex
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger,
		tenants: make(map[int64][]string),
		markers: make(map[markerKey]string),
	}
}

// Add appends channelID to the tenant's list.
// It returns false when the channel is already tracked by that tenant.
func (r *Registry) Add(tenant int64, channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Contains(r.tenants[tenant], channelID) {
		return false
	}
	r.tenants[tenant] = append(r.tenants[tenant], channelID)
	r.logger.Info("Channel tracked", "tenant", tenant, "channel_id", channelID, "tracked", len(r.tenants[tenant]))
	return true
}

// Remove drops channelID from the tenant's list and forgets its last-seen item.
func (r *Registry) Remove(tenant int64, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels := r.tenants[tenant]
	i := slices.Index(channels, channelID)
	if i < 0 {
		return ErrNotTracked
	}
	r.tenants[tenant] = slices.Delete(channels, i, i+1)
	delete(r.markers, markerKey{tenant: tenant, channelID: channelID})

	r.logger.Info("Channel untracked", "tenant", tenant, "channel_id", channelID, "tracked", len(r.tenants[tenant]))
	return nil
}

// Channels returns a copy of the tenant's tracked channels in registration order.
func (r *Registry) Channels(tenant int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.tenants[tenant])
}

// Tracked reports whether the tenant currently tracks channelID.
func (r *Registry) Tracked(tenant int64, channelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.tenants[tenant], channelID)
}

// Snapshot lists every (tenant, channel) pair.
// Tenants are ordered by ID; channels keep registration order.
func (r *Registry) Snapshot() []notifier.Tracking {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []notifier.Tracking
	for _, id := range ids {
		for _, ch := range r.tenants[id] {
			out = append(out, notifier.Tracking{Tenant: id, ChannelID: ch})
		}
	}
	return out
}

// Marker returns the last notified item ID for the pair.
func (r *Registry) Marker(tenant int64, channelID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.markers[markerKey{tenant: tenant, channelID: channelID}]
	return id, ok
}

// SetMarker records itemID as the last notified item for the pair.
// It returns false, leaving no marker, when the tenant no longer tracks the channel.
func (r *Registry) SetMarker(tenant int64, channelID, itemID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.tenants[tenant], channelID) {
		return false
	}
	r.markers[markerKey{tenant: tenant, channelID: channelID}] = itemID
	return true
}

// ClearMarker forgets the last notified item for the pair.
func (r *Registry) ClearMarker(tenant int64, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.markers, markerKey{tenant: tenant, channelID: channelID})
}

// Stats returns the number of tenants with at least one channel and the total tracked pairs.
func (r *Registry) Stats() (tenants, channels int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, chs := range r.tenants {
		if len(chs) > 0 {
			tenants++
		}
		channels += len(chs)
	}
	return tenants, channels
}
