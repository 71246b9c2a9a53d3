// Package youtube wraps the YouTube Data API v3 calls the notifier needs:
// latest upload or live stream per channel, channel titles, and channel lookup.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"youtube-notifier/pkg/notifier"
	"youtube-notifier/telemetry"
)

// maxIDsPerRequest is the API limit for comma-separated id filters.
const maxIDsPerRequest = 50

// ErrNotFound indicates the input did not map to a known channel.
var ErrNotFound = errors.New("channel not found")

// LookupError wraps a failed YouTube API round trip.
type LookupError struct {
	Err error
	Op  string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("youtube %s: %v", e.Op, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// IsLookupError checks if an error is a failed API call (as opposed to a miss).
func IsLookupError(err error) bool {
	var le *LookupError
	return errors.As(err, &le)
}

// Client issues YouTube Data API requests.
type Client struct {
	service *yt.Service
	logger  *slog.Logger
}

// New creates a client authenticated with an API key.
// Extra options are appended, so tests can point it at a fake endpoint.
func New(ctx context.Context, apiKey string, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	auth := option.WithAPIKey(apiKey)
	if apiKey == "" {
		// Requests will be rejected, but startup must not hunt for default credentials.
		auth = option.WithoutAuthentication()
	}
	all := append([]option.ClientOption{auth}, opts...)
	svc, err := yt.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &Client{service: svc, logger: logger}, nil
}

// Latest returns the most recent qualifying item for a channel under policy,
// or nil when there is none.
func (c *Client) Latest(ctx context.Context, channelID string, policy notifier.Policy) (*notifier.Item, error) {
	if policy == notifier.PolicyLive {
		return c.liveStream(ctx, channelID)
	}
	return c.latestUpload(ctx, channelID)
}

func (c *Client) liveStream(ctx context.Context, channelID string) (*notifier.Item, error) {
	var resp *yt.SearchListResponse
	err := c.call(ctx, "search.list", func() error {
		var err error
		resp, err = c.service.Search.List([]string{"snippet"}).
			ChannelId(channelID).
			EventType("live").
			Type("video").
			MaxResults(1).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == nil || resp.Items[0].Id.VideoId == "" {
		return nil, nil
	}

	hit := resp.Items[0]
	item := &notifier.Item{
		ID:        hit.Id.VideoId,
		ChannelID: channelID,
		URL:       notifier.WatchURL(hit.Id.VideoId),
		Kind:      notifier.KindLive,
	}
	if s := hit.Snippet; s != nil {
		item.Title = s.Title
		item.ThumbnailURL = bestThumbnail(s.Thumbnails)
		item.PublishedAt = parseTime(s.PublishedAt)
	}
	return item, nil
}

func (c *Client) latestUpload(ctx context.Context, channelID string) (*notifier.Item, error) {
	playlistID, err := c.uploadsPlaylist(ctx, channelID)
	if err != nil {
		return nil, err
	}

	var resp *yt.PlaylistItemListResponse
	err = c.call(ctx, "playlistItems.list", func() error {
		var err error
		resp, err = c.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(1).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		// A channel without uploads has no uploads playlist.
		if isHTTPStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}

	entry := resp.Items[0]
	videoID := ""
	if entry.ContentDetails != nil {
		videoID = entry.ContentDetails.VideoId
	}
	if videoID == "" && entry.Snippet != nil && entry.Snippet.ResourceId != nil {
		videoID = entry.Snippet.ResourceId.VideoId
	}
	if videoID == "" {
		return nil, nil
	}

	item := &notifier.Item{
		ID:        videoID,
		ChannelID: channelID,
		URL:       notifier.WatchURL(videoID),
		Kind:      notifier.KindVideo,
	}
	if s := entry.Snippet; s != nil {
		item.Title = s.Title
		item.ThumbnailURL = bestThumbnail(s.Thumbnails)
		item.PublishedAt = parseTime(s.PublishedAt)
	}

	kind, err := c.classify(ctx, videoID)
	if err != nil {
		// Classification only picks the badge; the upload is still new.
		c.logger.Warn("Failed to classify video, assuming regular video", "video_id", videoID, "error", err)
	} else {
		item.Kind = kind
	}
	return item, nil
}

// classify decides whether a video is live, a short, or a regular video.
func (c *Client) classify(ctx context.Context, videoID string) (notifier.Kind, error) {
	var resp *yt.VideoListResponse
	err := c.call(ctx, "videos.list", func() error {
		var err error
		resp, err = c.service.Videos.List([]string{"snippet", "contentDetails"}).
			Id(videoID).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return notifier.KindVideo, err
	}
	if len(resp.Items) == 0 {
		return notifier.KindVideo, fmt.Errorf("video %s: %w", videoID, ErrNotFound)
	}

	v := resp.Items[0]
	if v.Snippet != nil && v.Snippet.LiveBroadcastContent == "live" {
		return notifier.KindLive, nil
	}
	if v.ContentDetails != nil && isShort(v.ContentDetails.Duration) {
		return notifier.KindShort, nil
	}
	return notifier.KindVideo, nil
}

// uploadsPlaylist derives the uploads playlist for a channel.
// Canonical "UC…" channels map to "UU…" without an API call.
func (c *Client) uploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	if strings.HasPrefix(channelID, "UC") && len(channelID) == 24 {
		return "UU" + channelID[2:], nil
	}

	var resp *yt.ChannelListResponse
	err := c.call(ctx, "channels.list", func() error {
		var err error
		resp, err = c.service.Channels.List([]string{"contentDetails"}).
			Id(channelID).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil || resp.Items[0].ContentDetails.RelatedPlaylists == nil {
		return "", fmt.Errorf("uploads playlist for %s: %w", channelID, ErrNotFound)
	}
	return resp.Items[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

// ChannelTitle returns the display name of a channel.
func (c *Client) ChannelTitle(ctx context.Context, channelID string) (string, error) {
	titles, err := c.ChannelTitles(ctx, []string{channelID})
	if err != nil {
		return "", err
	}
	title, ok := titles[channelID]
	if !ok || title == "" {
		return "", fmt.Errorf("title for %s: %w", channelID, ErrNotFound)
	}
	return title, nil
}

// ChannelTitles resolves display names for many channels, batching requests.
// Unknown channels are absent from the result.
func (c *Client) ChannelTitles(ctx context.Context, channelIDs []string) (map[string]string, error) {
	titles := make(map[string]string, len(channelIDs))
	for start := 0; start < len(channelIDs); start += maxIDsPerRequest {
		end := min(start+maxIDsPerRequest, len(channelIDs))
		batch := channelIDs[start:end]

		var resp *yt.ChannelListResponse
		err := c.call(ctx, "channels.list", func() error {
			var err error
			resp, err = c.service.Channels.List([]string{"snippet"}).
				Id(batch...).
				MaxResults(int64(len(batch))).
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, ch := range resp.Items {
			if ch.Snippet != nil && ch.Snippet.Title != "" {
				titles[ch.Id] = ch.Snippet.Title
			}
		}
	}
	return titles, nil
}

// ChannelByHandle resolves an @handle (with or without the @) to a channel ID.
func (c *Client) ChannelByHandle(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(handle, "@")
	return c.channelID(ctx, "handle "+handle, func(call *yt.ChannelsListCall) *yt.ChannelsListCall {
		return call.ForHandle(handle)
	})
}

// ChannelByUsername resolves a legacy /user/ name to a channel ID.
func (c *Client) ChannelByUsername(ctx context.Context, username string) (string, error) {
	return c.channelID(ctx, "username "+username, func(call *yt.ChannelsListCall) *yt.ChannelsListCall {
		return call.ForUsername(username)
	})
}

func (c *Client) channelID(ctx context.Context, what string, filter func(*yt.ChannelsListCall) *yt.ChannelsListCall) (string, error) {
	var resp *yt.ChannelListResponse
	err := c.call(ctx, "channels.list", func() error {
		var err error
		resp, err = filter(c.service.Channels.List([]string{"id"})).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == "" {
		return "", fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return resp.Items[0].Id, nil
}

// SearchChannel returns the best channel match for a free-text query.
func (c *Client) SearchChannel(ctx context.Context, query string) (string, error) {
	var resp *yt.SearchListResponse
	err := c.call(ctx, "search.list", func() error {
		var err error
		resp, err = c.service.Search.List([]string{"snippet"}).
			Q(query).
			Type("channel").
			MaxResults(1).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return "", err
	}
	for _, hit := range resp.Items {
		if hit.Id != nil && hit.Id.ChannelId != "" {
			return hit.Id.ChannelId, nil
		}
		if hit.Snippet != nil && hit.Snippet.ChannelId != "" {
			return hit.Snippet.ChannelId, nil
		}
	}
	return "", fmt.Errorf("search %q: %w", query, ErrNotFound)
}

// call runs one API request with timing, logging and metrics.
// Failures are returned as *LookupError.
func (c *Client) call(ctx context.Context, endpoint string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start)
	telemetry.ObserveAPI(endpoint, err)

	if err != nil {
		c.logger.Warn("YouTube API request failed",
			"endpoint", endpoint,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &LookupError{Op: endpoint, Err: ctxErr}
		}
		return &LookupError{Op: endpoint, Err: err}
	}

	c.logger.Debug("YouTube API request completed",
		"endpoint", endpoint,
		"duration_ms", duration.Milliseconds())
	return nil
}

func isHTTPStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}

func bestThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*yt.Thumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
