package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	tele "gopkg.in/telebot.v4"

	"youtube-notifier/dispatch"
)

// removePrefix tags callback data produced by the removal keyboard.
const removePrefix = "rm:"

// Handlers run with this timeout, covering YouTube lookups.
const commandTimeout = 30 * time.Second

// BotCommands is the command menu registered with Telegram.
var BotCommands = []tele.Command{
	{Text: "add_channel", Description: "Track a YouTube channel by ID, URL, @handle or name"},
	{Text: "remove_channel", Description: "Stop tracking a YouTube channel"},
	{Text: "list_channels", Description: "List tracked YouTube channels"},
	{Text: "ping", Description: "Check that the bot is online"},
}

// TelegramConfig holds transport settings.
type TelegramConfig struct {
	Token       string
	APIURL      string // empty means the public Bot API
	PollTimeout time.Duration
}

// Telegram connects Commands to a Telegram bot and delivers alerts.
type Telegram struct {
	bot      *tele.Bot
	commands *Commands
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewTelegram logs the bot in, retrying transient failures. A rejected token
// fails immediately.
func NewTelegram(ctx context.Context, cfg TelegramConfig, commands *Commands, logger *slog.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var b *tele.Bot
	err := retry.Do(
		func() error {
			var err error
			b, err = tele.NewBot(tele.Settings{
				Token:  cfg.Token,
				URL:    cfg.APIURL,
				Poller: &tele.LongPoller{Timeout: timeout},
				OnError: func(err error, c tele.Context) {
					logger.Error("Telegram handler failed", "error", err)
				},
			})
			if err != nil && isUnauthorized(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Retrying Telegram login after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}

	t := &Telegram{bot: b, commands: commands, logger: logger}
	t.registerHandlers()
	logger.Info("Telegram bot authorized", "username", b.Me.Username)
	return t, nil
}

func isUnauthorized(err error) bool {
	return errors.Is(err, tele.ErrUnauthorized) || strings.Contains(err.Error(), "Unauthorized")
}

// isBadRequest reports whether Telegram answered with HTTP 400.
// Unrecognised API errors only carry the code in their text.
func isBadRequest(err error) bool {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusBadRequest
	}
	return strings.Contains(err.Error(), "(400)")
}

func (t *Telegram) registerHandlers() {
	t.bot.Handle("/add_channel", func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return c.Send(t.commands.AddChannel(ctx, c.Chat().ID, c.Message().Payload))
	})

	t.bot.Handle("/remove_channel", func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		opts, text := t.commands.RemoveOptions(ctx, c.Chat().ID)
		if len(opts) == 0 {
			return c.Send(text)
		}
		return c.Send(text, removeKeyboard(opts))
	})

	t.bot.Handle("/list_channels", func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return c.Send(t.commands.ListChannels(ctx, c.Chat().ID))
	})

	t.bot.Handle("/ping", func(c tele.Context) error {
		return c.Send(t.commands.Ping())
	})

	t.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil || c.Message() == nil {
			return nil
		}
		channelID, ok := parseRemoveData(cb.Data)
		if !ok {
			return c.Respond()
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		reply := t.commands.RemoveChannel(ctx, c.Message().Chat.ID, channelID)
		if err := c.Respond(); err != nil {
			t.logger.Warn("Failed to answer callback", "error", err)
		}
		// Replacing the prompt drops its keyboard, so a choice is made once.
		return c.Edit(reply)
	})
}

// removeKeyboard renders one button per channel, one per row.
func removeKeyboard(opts []Option) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(opts))
	for _, o := range opts {
		rows = append(rows, rm.Row(tele.Btn{Text: o.Label, Data: removePrefix + o.Value}))
	}
	rm.Inline(rows...)
	return rm
}

func parseRemoveData(data string) (string, bool) {
	id, ok := strings.CutPrefix(strings.TrimSpace(data), removePrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// SetCommands publishes the command menu.
func (t *Telegram) SetCommands() error {
	if err := t.bot.SetCommands(BotCommands); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	t.logger.Info("Bot commands registered", "count", len(BotCommands))
	return nil
}

// Start polls for updates until ctx is cancelled or Stop is called.
func (t *Telegram) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}
	rctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(2)
	go func() {
		defer t.wg.Done()
		<-rctx.Done()
		t.bot.Stop()
	}()
	go func() {
		defer t.wg.Done()
		t.logger.Info("Telegram polling started")
		t.bot.Start() // blocks until Stop
		t.logger.Info("Telegram polling stopped")
	}()
}

// Stop halts polling and waits for the poller to exit.
func (t *Telegram) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	t.wg.Wait()
}

// SendAlert posts an alert into the tenant's chat. The chat is looked up
// first so a chat the bot has left fails before any upload.
func (t *Telegram) SendAlert(ctx context.Context, tenant int64, alert *dispatch.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chat, err := t.bot.ChatByID(tenant)
	if err != nil {
		return fmt.Errorf("lookup chat %d: %w", tenant, err)
	}

	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if alert.PhotoURL != "" {
		photo := &tele.Photo{File: tele.FromURL(alert.PhotoURL), Caption: alert.HTML}
		_, err := t.bot.Send(chat, photo, opts)
		if err == nil {
			return nil
		}
		// Only a rejected request is known to be undelivered. A transport error
		// may hide a photo that arrived, and a second message would duplicate it.
		if !isBadRequest(err) {
			return fmt.Errorf("send photo: %w", err)
		}
		t.logger.Warn("Photo alert rejected, falling back to text", "tenant", tenant, "error", err)
	}

	if _, err := t.bot.Send(chat, alert.HTML, opts); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
