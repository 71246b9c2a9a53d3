// Package notifier contains the core domain types for the YouTube notification service.
package notifier

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies a notifiable item.
type Kind int

const (
	KindVideo Kind = iota
	KindShort
	KindLive
)

func (k Kind) String() string {
	switch k {
	case KindShort:
		return "short"
	case KindLive:
		return "live"
	default:
		return "video"
	}
}

// Color returns the accent colour used for the kind (0xRRGGBB).
func (k Kind) Color() uint32 {
	switch k {
	case KindShort:
		return 0x2ECC71
	case KindLive:
		return 0xE74C3C
	default:
		return 0x3498DB
	}
}

// Badge is the coloured marker shown in chat alerts for the kind.
func (k Kind) Badge() string {
	switch k {
	case KindShort:
		return "🟢"
	case KindLive:
		return "🔴"
	default:
		return "🔵"
	}
}

// Policy decides what counts as new content for a channel.
type Policy string

const (
	// PolicyUploads treats the most recent upload of any kind as notifiable.
	PolicyUploads Policy = "uploads"
	// PolicyLive treats only a currently running live stream as notifiable.
	PolicyLive Policy = "live"
)

// ParsePolicy parses a WATCH_MODE value. Empty means uploads.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(PolicyUploads):
		return PolicyUploads, nil
	case string(PolicyLive):
		return PolicyLive, nil
	default:
		return "", fmt.Errorf("unknown watch mode %q (want %q or %q)", s, PolicyUploads, PolicyLive)
	}
}

// Item is the latest qualifying video or stream observed for a channel.
type Item struct {
	PublishedAt  time.Time
	ID           string // Video ID, used as the last-seen marker
	ChannelID    string
	Title        string
	URL          string // Watch link
	ThumbnailURL string
	Kind         Kind
}

// WatchURL builds the public watch link for a video ID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// Tracking is one (tenant, channel) pair.
type Tracking struct {
	ChannelID string
	Tenant    int64 // Telegram chat ID
}
