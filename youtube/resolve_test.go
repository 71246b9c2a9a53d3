package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeLookup records which lookups the resolver performed.
type fakeLookup struct {
	handles   map[string]string
	usernames map[string]string
	search    map[string]string
	searchErr error
	calls     []string
}

func (f *fakeLookup) ChannelByHandle(_ context.Context, handle string) (string, error) {
	f.calls = append(f.calls, "handle:"+handle)
	if id, ok := f.handles[handle]; ok {
		return id, nil
	}
	return "", fmt.Errorf("handle %s: %w", handle, ErrNotFound)
}

func (f *fakeLookup) ChannelByUsername(_ context.Context, username string) (string, error) {
	f.calls = append(f.calls, "user:"+username)
	if id, ok := f.usernames[username]; ok {
		return id, nil
	}
	return "", fmt.Errorf("username %s: %w", username, ErrNotFound)
}

func (f *fakeLookup) SearchChannel(_ context.Context, query string) (string, error) {
	f.calls = append(f.calls, "search:"+query)
	if f.searchErr != nil {
		return "", f.searchErr
	}
	if id, ok := f.search[query]; ok {
		return id, nil
	}
	return "", fmt.Errorf("search %q: %w", query, ErrNotFound)
}

func TestResolveCanonicalIDSkipsSearch(t *testing.T) {
	lookup := &fakeLookup{}
	r := NewResolver(lookup, http.DefaultClient, discardLogger())

	id, err := r.Resolve(context.Background(), "  "+testChannel+"  ")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if id != testChannel {
		t.Errorf("Resolve() = %q, want %q", id, testChannel)
	}
	if len(lookup.calls) != 0 {
		t.Errorf("Resolve() performed lookups %v, want none", lookup.calls)
	}
}

func TestResolveChannelURL(t *testing.T) {
	inputs := []string{
		"https://www.youtube.com/channel/" + testChannel,
		"https://youtube.com/channel/" + testChannel + "/videos",
		"youtube.com/channel/" + testChannel + "?si=abc",
		"http://m.youtube.com/channel/" + testChannel + "#about",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			lookup := &fakeLookup{}
			r := NewResolver(lookup, http.DefaultClient, discardLogger())

			id, err := r.Resolve(context.Background(), in)
			if err != nil || id != testChannel {
				t.Errorf("Resolve() = %q, %v; want %q", id, err, testChannel)
			}
			if len(lookup.calls) != 0 {
				t.Errorf("lookups = %v, want none", lookup.calls)
			}
		})
	}
}

func TestResolveHandleAndUser(t *testing.T) {
	lookup := &fakeLookup{
		handles:   map[string]string{"creator": testChannel},
		usernames: map[string]string{"oldname": testChannel},
	}
	r := NewResolver(lookup, http.DefaultClient, discardLogger())

	for _, in := range []string{"@creator", "https://www.youtube.com/@creator/streams", "https://www.youtube.com/user/oldname"} {
		id, err := r.Resolve(context.Background(), in)
		if err != nil || id != testChannel {
			t.Errorf("Resolve(%q) = %q, %v", in, id, err)
		}
	}
	for _, c := range lookup.calls {
		if strings.HasPrefix(c, "search:") {
			t.Errorf("unexpected search fallback: %v", lookup.calls)
		}
	}
}

func TestResolveUnknownHandleFallsBackToSearch(t *testing.T) {
	lookup := &fakeLookup{search: map[string]string{"@ghost": testChannel}}
	r := NewResolver(lookup, http.DefaultClient, discardLogger())

	id, err := r.Resolve(context.Background(), "@ghost")
	if err != nil || id != testChannel {
		t.Fatalf("Resolve() = %q, %v", id, err)
	}
	want := []string{"handle:ghost", "search:@ghost"}
	if strings.Join(lookup.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", lookup.calls, want)
	}
}

func TestResolveDisplayNameUsesSearch(t *testing.T) {
	lookup := &fakeLookup{search: map[string]string{"Some Creator": testChannel}}
	r := NewResolver(lookup, http.DefaultClient, discardLogger())

	id, err := r.Resolve(context.Background(), "Some Creator")
	if err != nil || id != testChannel {
		t.Errorf("Resolve() = %q, %v", id, err)
	}
}

func TestResolveFailures(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		r := NewResolver(&fakeLookup{}, http.DefaultClient, discardLogger())
		if _, err := r.Resolve(context.Background(), "nobody at all"); !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		r := NewResolver(&fakeLookup{}, http.DefaultClient, discardLogger())
		if _, err := r.Resolve(context.Background(), "   "); !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("lookup failure", func(t *testing.T) {
		lookup := &fakeLookup{searchErr: &LookupError{Op: "search.list", Err: errors.New("quota")}}
		r := NewResolver(lookup, http.DefaultClient, discardLogger())
		_, err := r.Resolve(context.Background(), "Some Creator")
		if !IsLookupError(err) {
			t.Errorf("error = %v, want LookupError", err)
		}
		if errors.Is(err, ErrNotFound) {
			t.Error("lookup failure must not look like a miss")
		}
	})
}

func TestResolveVanityURLFromPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/c/VanityName":
			fmt.Fprintf(w, `<html><head>
<link rel="canonical" href="https://www.youtube.com/channel/%s">
<meta itemprop="identifier" content="%s">
</head><body></body></html>`, testChannel, testChannel)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	lookup := &fakeLookup{search: map[string]string{}}
	r := NewResolver(lookup, srv.Client(), discardLogger())
	r.pageBase = srv.URL

	id, err := r.Resolve(context.Background(), "https://www.youtube.com/c/VanityName/videos")
	if err != nil || id != testChannel {
		t.Fatalf("Resolve() = %q, %v", id, err)
	}
	if len(lookup.calls) != 0 {
		t.Errorf("lookups = %v, want none", lookup.calls)
	}

	// Missing page falls back to search.
	_, err = r.Resolve(context.Background(), "https://www.youtube.com/c/Missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(missing) error = %v, want ErrNotFound", err)
	}
	if len(lookup.calls) != 1 || !strings.HasPrefix(lookup.calls[0], "search:") {
		t.Errorf("calls = %v, want a single search", lookup.calls)
	}
}

func TestParseChannelPage(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		want    string
		wantErr bool
	}{
		{
			name: "og url only",
			html: `<meta property="og:url" content="https://www.youtube.com/channel/` + testChannel + `">`,
			want: testChannel,
		},
		{
			name: "channelId meta",
			html: `<meta itemprop="channelId" content="` + testChannel + `">`,
			want: testChannel,
		},
		{
			name:    "no metadata",
			html:    `<html><title>nothing</title></html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseChannelPage(strings.NewReader(tt.html))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseChannelPage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseChannelPage() = %q, want %q", got, tt.want)
			}
		})
	}
}
