package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"youtube-notifier/dispatch"
)

const (
	testToken  = "123:abc"
	testChatID = 10
)

// fakeBotAPI answers Bot API calls from canned replies and records each call.
type fakeBotAPI struct {
	replies map[string]string // method -> JSON body; missing methods succeed with a message
	broken  map[string]bool   // methods whose connection is dropped without a reply
	calls   []apiCall
	mu      sync.Mutex
}

type apiCall struct {
	params map[string]any
	method string
}

const (
	okMe      = `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Notifier","username":"notifier_bot"}}`
	okChat    = `{"ok":true,"result":{"id":10,"type":"private","first_name":"Tester"}}`
	okTrue    = `{"ok":true,"result":true}`
	okMessage = `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":10,"type":"private"}}}`
	okPhoto   = `{"ok":true,"result":{"message_id":8,"date":0,"chat":{"id":10,"type":"private"},` +
		`"photo":[{"file_id":"p1","file_unique_id":"u1","width":320,"height":180}]}}`
	badPhotoURL  = `{"ok":false,"error_code":400,"description":"Bad Request: image fetch refused"}`
	chatNotFound = `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`
)

func newFakeBotAPI(t *testing.T, replies map[string]string) (*fakeBotAPI, *httptest.Server) {
	t.Helper()
	f := &fakeBotAPI{replies: replies, broken: make(map[string]bool)}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeBotAPI) serve(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	params := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&params)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, params: params})
	body, ok := f.replies[method]
	broken := f.broken[method]
	f.mu.Unlock()

	if broken {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
		return
	}

	if !ok {
		switch method {
		case "getMe":
			body = okMe
		case "getChat":
			body = okChat
		case "sendPhoto":
			body = okPhoto
		case "answerCallbackQuery", "setMyCommands":
			body = okTrue
		default:
			body = okMessage
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

// methods lists the calls made after login.
func (f *fakeBotAPI) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.method != "getMe" {
			out = append(out, c.method)
		}
	}
	return out
}

func (f *fakeBotAPI) call(method string) (apiCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.method == method {
			return c, true
		}
	}
	return apiCall{}, false
}

func newTestTelegram(t *testing.T, srv *httptest.Server, cmds *Commands) *Telegram {
	t.Helper()
	if cmds == nil {
		cmds, _, _ = newCommands()
	}
	tg, err := NewTelegram(context.Background(), TelegramConfig{Token: testToken, APIURL: srv.URL}, cmds, discardLogger())
	if err != nil {
		t.Fatalf("NewTelegram() error = %v", err)
	}
	return tg
}

func testAlert() *dispatch.Alert {
	return &dispatch.Alert{
		Title:    "New Video Uploaded: Hello",
		HTML:     "▶️ <b>New Video Uploaded: Hello</b>",
		PhotoURL: "https://i.ytimg.com/vi/abc/hqdefault.jpg",
		URL:      "https://www.youtube.com/watch?v=abc",
	}
}

func TestNewTelegramRejectsBadToken(t *testing.T) {
	_, srv := newFakeBotAPI(t, map[string]string{
		"getMe": `{"ok":false,"error_code":401,"description":"Unauthorized"}`,
	})
	cmds, _, _ := newCommands()

	start := time.Now()
	_, err := NewTelegram(context.Background(), TelegramConfig{Token: testToken, APIURL: srv.URL}, cmds, discardLogger())
	if err == nil {
		t.Fatal("NewTelegram() succeeded with a rejected token")
	}
	// Unauthorized is not retried.
	if time.Since(start) > 900*time.Millisecond {
		t.Errorf("NewTelegram() took %v, want an immediate failure", time.Since(start))
	}
}

func TestSendAlert(t *testing.T) {
	tests := []struct {
		name        string
		replies     map[string]string
		broken      string
		noPhoto     bool
		wantMethods []string
		wantErr     bool
	}{
		{
			name:        "photo",
			wantMethods: []string{"getChat", "sendPhoto"},
		},
		{
			name:        "rejected photo falls back to text",
			replies:     map[string]string{"sendPhoto": badPhotoURL},
			wantMethods: []string{"getChat", "sendPhoto", "sendMessage"},
		},
		{
			name:        "transport failure is not resent",
			broken:      "sendPhoto",
			wantMethods: []string{"getChat", "sendPhoto"},
			wantErr:     true,
		},
		{
			name:        "no thumbnail sends text",
			noPhoto:     true,
			wantMethods: []string{"getChat", "sendMessage"},
		},
		{
			name:        "unknown chat",
			replies:     map[string]string{"getChat": chatNotFound},
			wantMethods: []string{"getChat"},
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, srv := newFakeBotAPI(t, tt.replies)
			tg := newTestTelegram(t, srv, nil)
			if tt.broken != "" {
				api.mu.Lock()
				api.broken[tt.broken] = true
				api.mu.Unlock()
			}

			alert := testAlert()
			if tt.noPhoto {
				alert.PhotoURL = ""
			}

			err := tg.SendAlert(context.Background(), testChatID, alert)
			if (err != nil) != tt.wantErr {
				t.Errorf("SendAlert() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := api.methods(); !slices.Equal(got, tt.wantMethods) {
				t.Errorf("methods = %v, want %v", got, tt.wantMethods)
			}
		})
	}
}

func TestSendAlertUsesHTML(t *testing.T) {
	api, srv := newFakeBotAPI(t, map[string]string{"sendPhoto": badPhotoURL})
	tg := newTestTelegram(t, srv, nil)

	if err := tg.SendAlert(context.Background(), testChatID, testAlert()); err != nil {
		t.Fatalf("SendAlert() error = %v", err)
	}

	photo, _ := api.call("sendPhoto")
	if photo.params["caption"] != testAlert().HTML || photo.params["parse_mode"] != tele.ModeHTML {
		t.Errorf("sendPhoto params = %v", photo.params)
	}
	msg, ok := api.call("sendMessage")
	if !ok {
		t.Fatal("no sendMessage call")
	}
	if msg.params["text"] != testAlert().HTML || msg.params["parse_mode"] != tele.ModeHTML {
		t.Errorf("sendMessage params = %v", msg.params)
	}
}

func TestSendAlertCancelled(t *testing.T) {
	api, srv := newFakeBotAPI(t, nil)
	tg := newTestTelegram(t, srv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tg.SendAlert(ctx, testChatID, testAlert()); err == nil {
		t.Error("SendAlert() with cancelled context succeeded")
	}
	if got := api.methods(); len(got) != 0 {
		t.Errorf("methods = %v, want none", got)
	}
}

func TestRemoveCallback(t *testing.T) {
	api, srv := newFakeBotAPI(t, nil)
	cmds, reg, _ := newCommands()
	tg := newTestTelegram(t, srv, cmds)

	reg.Add(testChatID, chanA)
	reg.Add(testChatID, chanB)

	tg.bot.ProcessUpdate(tele.Update{
		ID: 1,
		Callback: &tele.Callback{
			ID:     "cb1",
			Data:   removePrefix + chanA,
			Sender: &tele.User{ID: 99},
			Message: &tele.Message{
				ID:   5,
				Chat: &tele.Chat{ID: testChatID, Type: tele.ChatPrivate},
			},
		},
	})

	edit := waitForCall(t, api, "editMessageText")
	if text, _ := edit.params["text"].(string); text != "Removed YouTube channel: Alpha" {
		t.Errorf("edited text = %q", text)
	}
	if _, ok := api.call("answerCallbackQuery"); !ok {
		t.Error("callback was not answered")
	}
	if want := []string{chanB}; !slices.Equal(reg.Channels(testChatID), want) {
		t.Errorf("channels = %v, want %v", reg.Channels(testChatID), want)
	}
}

// waitForCall polls until the handler goroutine has issued method.
func waitForCall(t *testing.T, api *fakeBotAPI, method string) apiCall {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c, ok := api.call(method); ok {
			return c
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no %s call within 5s; saw %v", method, api.methods())
	return apiCall{}
}
