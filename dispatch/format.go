package dispatch

import (
	"html"
	"unicode/utf8"

	"youtube-notifier/pkg/notifier"
)

// Telegram limits, counted in characters after entity parsing. Titles are
// trimmed against the raw budget, which is stricter.
const (
	maxCaptionLen = 1024
	maxTextLen    = 4096
)

const watchLinkText = "Click to watch the video"

// Alert is a formatted notification ready for a chat platform.
type Alert struct {
	Title    string        // plain title line, without markup
	HTML     string        // title line plus watch link, HTML parse mode
	PhotoURL string        // thumbnail; empty sends text only
	URL      string        // watch URL
	Kind     notifier.Kind // selects headline and badge
	Color    uint32        // accent colour for platforms that support it
}

// headline returns the prefix used for the kind, e.g. "New Short Uploaded".
func headline(k notifier.Kind) string {
	switch k {
	case notifier.KindShort:
		return "New Short Uploaded"
	case notifier.KindLive:
		return "Live Now"
	default:
		return "New Video Uploaded"
	}
}

// Format builds the alert for an item.
func Format(item *notifier.Item) *Alert {
	title := item.Title
	if title == "" {
		title = item.ID
	}
	url := item.URL
	if url == "" {
		url = notifier.WatchURL(item.ID)
	}

	limit := maxTextLen
	if item.ThumbnailURL != "" {
		limit = maxCaptionLen
	}

	prefix := item.Kind.Badge() + " " + headline(item.Kind) + ": "
	link := "\n<a href=\"" + html.EscapeString(url) + "\">" + watchLinkText + "</a>"
	budget := limit - utf8.RuneCountInString(prefix) - utf8.RuneCountInString(watchLinkText) - 1
	title = truncate(title, budget)

	return &Alert{
		Title:    prefix + title,
		HTML:     item.Kind.Badge() + " <b>" + html.EscapeString(headline(item.Kind)+": "+title) + "</b>" + link,
		PhotoURL: item.ThumbnailURL,
		URL:      url,
		Kind:     item.Kind,
		Color:    item.Kind.Color(),
	}
}

// truncate shortens s to at most n runes, ending with an ellipsis when cut.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
