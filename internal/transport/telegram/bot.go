// Package telegram connects the command service to the Telegram Bot API.
//
// Bot implements delivery.Responder for outbound messages and
// cache.Directory for administrator lookups, and Run feeds inbound updates
// to the service.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mmynk/groupledger/internal/cache"
	"github.com/mmynk/groupledger/internal/delivery"
	"github.com/mmynk/groupledger/internal/report"
	"github.com/mmynk/groupledger/internal/service"
)

var (
	_ delivery.Responder = (*Bot)(nil)
	_ cache.Directory    = (*Bot)(nil)
)

// Options configures a Bot.
type Options struct {
	Timeouts    Timeouts
	PollTimeout time.Duration

	// Endpoint overrides tgbotapi.APIEndpoint; used by tests.
	Endpoint string
	Logger   *slog.Logger
}

// Handler receives converted updates.
type Handler interface {
	HandleMessage(ctx context.Context, m service.Message)
	HandleCallback(ctx context.Context, cb service.Callback)
}

// Bot is a Telegram client.
type Bot struct {
	api         *tgbotapi.BotAPI
	token       string
	endpoint    string
	timeouts    Timeouts
	pollTimeout time.Duration
	logger      *slog.Logger
}

// New connects to the Bot API and verifies the token.
func New(token string, opts Options) (*Bot, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = tgbotapi.APIEndpoint
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, opts.Endpoint, NewHTTPClient(opts.Timeouts))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bot api: %w", err)
	}
	opts.Logger.Info("Authorized on Telegram", "username", api.Self.UserName)

	return &Bot{
		api:         api,
		token:       token,
		endpoint:    opts.Endpoint,
		timeouts:    opts.Timeouts,
		pollTimeout: opts.PollTimeout,
		logger:      opts.Logger,
	}, nil
}

// Reply sends msg as a reply to the target message.
func (b *Bot) Reply(ctx context.Context, to delivery.Target, msg report.Message) error {
	cfg := tgbotapi.NewMessage(to.ChatID, msg.Text)
	cfg.ParseMode = string(msg.Mode)
	cfg.ReplyToMessageID = to.MessageID
	cfg.AllowSendingWithoutReply = true
	if kb := keyboard(msg.Keyboard); kb != nil {
		cfg.ReplyMarkup = *kb
	}
	_, err := b.api.Send(cfg)
	return classify(err)
}

// Edit replaces the text and keyboard of a message.
func (b *Bot) Edit(ctx context.Context, at delivery.Target, msg report.Message) error {
	cfg := tgbotapi.NewEditMessageText(at.ChatID, at.MessageID, msg.Text)
	cfg.ParseMode = string(msg.Mode)
	cfg.ReplyMarkup = keyboard(msg.Keyboard)
	_, err := b.api.Request(cfg)
	if isNotModified(err) {
		return nil
	}
	return classify(err)
}

// Answer acknowledges a callback query.
func (b *Bot) Answer(ctx context.Context, callbackID string) error {
	_, err := b.api.Request(tgbotapi.NewCallback(callbackID, ""))
	return classify(err)
}

// Administrators lists the chat's administrators.
func (b *Bot) Administrators(ctx context.Context, groupID int64) ([]int64, error) {
	members, err := b.api.GetChatAdministrators(tgbotapi.ChatAdministratorsConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: groupID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get administrators: %w", classify(err))
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m.User != nil {
			ids = append(ids, m.User.ID)
		}
	}
	return ids, nil
}

// Run long-polls for updates and hands each one to h on its own
// goroutine until ctx is cancelled. It waits for in-flight handlers
// before returning.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	// A long poll holds the response for up to pollTimeout, so polls use
	// their own client with a longer read timeout.
	pollTimeouts := b.timeouts
	pollTimeouts.Read += b.pollTimeout
	poller, err := tgbotapi.NewBotAPIWithClient(b.token, b.endpoint, ctxClient{ctx: ctx, client: NewHTTPClient(pollTimeouts)})
	if err != nil {
		return fmt.Errorf("failed to create poller: %w", err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	offset := 0
	for {
		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = int(b.pollTimeout.Seconds())
		cfg.AllowedUpdates = []string{"message", "callback_query"}

		updates, err := poller.GetUpdates(cfg)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			b.logger.Warn("Failed to get updates, retrying", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				dispatch(context.WithoutCancel(ctx), h, u)
			}(u)
		}
	}
}

func dispatch(ctx context.Context, h Handler, u tgbotapi.Update) {
	if m, ok := toMessage(u); ok {
		h.HandleMessage(ctx, m)
		return
	}
	if cb, ok := toCallback(u); ok {
		h.HandleCallback(ctx, cb)
	}
}

func toUser(u *tgbotapi.User) service.User {
	return service.User{ID: u.ID, Username: u.UserName, FirstName: u.FirstName}
}

func toMessage(u tgbotapi.Update) (service.Message, bool) {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.Text == "" {
		return service.Message{}, false
	}
	m := service.Message{
		ChatID:    msg.Chat.ID,
		IsGroup:   msg.Chat.IsGroup() || msg.Chat.IsSuperGroup(),
		MessageID: msg.MessageID,
		From:      toUser(msg.From),
		Text:      msg.Text,
	}
	if r := msg.ReplyToMessage; r != nil && r.From != nil {
		reply := toUser(r.From)
		m.ReplyTo = &reply
	}
	return m, true
}

func toCallback(u tgbotapi.Update) (service.Callback, bool) {
	q := u.CallbackQuery
	if q == nil || q.From == nil || q.Message == nil || q.Message.Chat == nil {
		return service.Callback{}, false
	}
	return service.Callback{
		ID:          q.ID,
		From:        toUser(q.From),
		ChatID:      q.Message.Chat.ID,
		MessageID:   q.Message.MessageID,
		MessageText: q.Message.Text,
		Data:        q.Data,
	}, true
}

func keyboard(rows [][]report.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(out...)
	return &kb
}

// classify marks rate limiting and server errors as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500) {
		return delivery.Transient(err)
	}
	return err
}

func isNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "message is not modified")
}
