package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
)

const defaultPageBase = "https://www.youtube.com"

var (
	channelIDRegex  = regexp.MustCompile(`^UC[0-9A-Za-z_-]{22}$`)
	channelURLRegex = regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.)?youtube\.com/channel/(UC[0-9A-Za-z_-]{22})(?:[/?#].*)?$`)
	handleURLRegex  = regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.)?youtube\.com/@([0-9A-Za-z_.\-]{3,30})(?:[/?#].*)?$`)
	handleRegex     = regexp.MustCompile(`^@([0-9A-Za-z_.\-]{3,30})$`)
	userURLRegex    = regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.)?youtube\.com/user/([^/?#]+)(?:[/?#].*)?$`)
	vanityURLRegex  = regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.)?youtube\.com(/c/[^/?#]+)(?:[/?#].*)?$`)
)

// Lookup is the subset of Client the resolver needs.
type Lookup interface {
	ChannelByHandle(ctx context.Context, handle string) (string, error)
	ChannelByUsername(ctx context.Context, username string) (string, error)
	SearchChannel(ctx context.Context, query string) (string, error)
}

// Resolver maps user input (channel ID, channel URL, @handle, or display name)
// to a canonical channel ID.
type Resolver struct {
	lookup   Lookup
	client   *http.Client
	logger   *slog.Logger
	pageBase string
}

// NewResolver creates a resolver. client fetches channel pages for /c/ URLs.
func NewResolver(lookup Lookup, client *http.Client, logger *slog.Logger) *Resolver {
	return &Resolver{
		lookup:   lookup,
		client:   client,
		logger:   logger,
		pageBase: defaultPageBase,
	}
}

// ExtractChannelID returns the channel ID if input is a canonical ID or a
// /channel/ URL, without any network access.
func ExtractChannelID(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if channelIDRegex.MatchString(input) {
		return input, true
	}
	if m := channelURLRegex.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

// Resolve maps input to a channel ID. It returns ErrNotFound when nothing
// matches and a *LookupError when the API could not be reached.
func (r *Resolver) Resolve(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrNotFound
	}

	if id, ok := ExtractChannelID(input); ok {
		return id, nil
	}

	if handle := firstMatch(input, handleURLRegex, handleRegex); handle != "" {
		id, err := r.lookup.ChannelByHandle(ctx, handle)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return id, err
		}
		r.logger.Debug("Handle not found, falling back to search", "handle", handle)
	}

	if m := userURLRegex.FindStringSubmatch(input); m != nil {
		id, err := r.lookup.ChannelByUsername(ctx, m[1])
		if err == nil || !errors.Is(err, ErrNotFound) {
			return id, err
		}
		r.logger.Debug("Username not found, falling back to search", "username", m[1])
	}

	if m := vanityURLRegex.FindStringSubmatch(input); m != nil {
		id, err := r.channelFromPage(ctx, m[1])
		if err == nil {
			return id, nil
		}
		r.logger.Warn("Failed to resolve channel page, falling back to search", "path", m[1], "error", err)
	}

	return r.lookup.SearchChannel(ctx, input)
}

// channelFromPage fetches a channel page and reads the canonical channel ID
// from its metadata.
func (r *Resolver) channelFromPage(ctx context.Context, path string) (string, error) {
	pageURL := r.pageBase + path
	var id string

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")

			start := time.Now()
			resp, err := r.client.Do(req)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					r.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			r.logger.Info("Channel page fetched",
				"url", pageURL,
				"status_code", resp.StatusCode,
				"duration_ms", time.Since(start).Milliseconds())

			if resp.StatusCode == http.StatusNotFound {
				return retry.Unrecoverable(fmt.Errorf("page %s: %w", path, ErrNotFound))
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			id, err = parseChannelPage(resp.Body)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Info("Retrying channel page fetch after error", "attempt", n, "url", pageURL, "error", err)
		}),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func parseChannelPage(body io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("parse channel page: %w", err)
	}

	candidates := []string{
		doc.Find(`meta[itemprop="identifier"]`).AttrOr("content", ""),
		doc.Find(`meta[itemprop="channelId"]`).AttrOr("content", ""),
		doc.Find(`link[rel="canonical"]`).AttrOr("href", ""),
		doc.Find(`meta[property="og:url"]`).AttrOr("content", ""),
	}
	for _, c := range candidates {
		if id, ok := ExtractChannelID(c); ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("channel page metadata: %w", ErrNotFound)
}

func firstMatch(input string, patterns ...*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(input); m != nil {
			return m[1]
		}
	}
	return ""
}
