package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mymmrac/telego"

	"mediarelay/pkg/channel"
	"mediarelay/pkg/chat"
	"mediarelay/pkg/config"
	"mediarelay/pkg/media"
)

const channelName = "telegram"
const messagePreviewLimit = 240

// Adapter bridges Telegram updates into relay updates, by long polling or webhook.
type Adapter struct {
	cfg       config.TelegramConfig
	bot       *telego.Bot
	messenger *Messenger
	allowFrom map[string]struct{}
	log       *slog.Logger

	mu      sync.RWMutex
	handler channel.Handler
	runCtx  context.Context
	running atomic.Bool
	pending sync.WaitGroup
}

var _ channel.Adapter = (*Adapter)(nil)

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	a := &Adapter{
		cfg:       cfg,
		bot:       bot,
		messenger: NewMessenger(bot),
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
	}
	if a.allowFrom == nil {
		a.log.Warn("telegram.allow_from is empty, every sender is accepted")
	}

	return a, nil
}

// Name returns the channel identifier used in logs.
func (a *Adapter) Name() string {
	return channelName
}

// Messenger returns the Telegram-backed chat operations.
func (a *Adapter) Messenger() chat.Messenger {
	return a.messenger
}

// Running reports whether Run is accepting updates.
func (a *Adapter) Running() bool {
	return a.running.Load()
}

// Run accepts updates until ctx is done and waits for in-flight handlers before returning.
// Handlers keep running after ctx is cancelled so uploads already started can finish.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	a.mu.Lock()
	a.handler = handler
	a.runCtx = ctx
	a.running.Store(true)
	a.mu.Unlock()

	defer a.drain()

	if a.cfg.Mode == config.ModeWebhook {
		return a.runWebhook(ctx)
	}
	return a.runPolling(ctx)
}

// drain stops intake and waits for dispatched handlers. The flag flips under the write
// lock, so no dispatch can add to pending once Wait has started.
func (a *Adapter) drain() {
	a.mu.Lock()
	a.running.Store(false)
	a.mu.Unlock()

	a.pending.Wait()
}

func (a *Adapter) runPolling(ctx context.Context) error {
	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started", "mode", config.ModePolling)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}
			a.dispatch(update)
		}
	}
}

func (a *Adapter) runWebhook(ctx context.Context) error {
	if a.cfg.WebhookURL != "" {
		err := a.bot.SetWebhook(ctx, &telego.SetWebhookParams{
			URL:         a.cfg.WebhookURL,
			SecretToken: a.cfg.SecretToken,
		})
		if err != nil {
			return fmt.Errorf("register webhook: %w", err)
		}
	}

	a.log.Info("Telegram channel started", "mode", config.ModeWebhook, "path", a.cfg.WebhookPath)
	<-ctx.Done()
	return nil
}

// dispatch authorizes and converts update, then hands it to the handler on a new goroutine.
// It returns false when the adapter is not running and the update was not taken.
func (a *Adapter) dispatch(update telego.Update) bool {
	a.mu.RLock()
	if !a.running.Load() || a.handler == nil {
		a.mu.RUnlock()
		return false
	}
	ctx := context.WithoutCancel(a.runCtx)
	handler := a.handler
	a.pending.Add(1)
	a.mu.RUnlock()

	converted, ok := a.convert(update)
	if !ok {
		a.pending.Done()
		return true
	}

	go func() {
		defer a.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				a.log.Error("Update handler panicked", "update_id", update.UpdateID, "panic", r)
			}
		}()
		handler(ctx, converted)
	}()
	return true
}

// convert maps a Telegram update to a relay update. Unauthorized and unsupported updates
// are dropped without reply.
func (a *Adapter) convert(update telego.Update) (channel.Update, bool) {
	switch {
	case update.CallbackQuery != nil:
		query := update.CallbackQuery
		senderID := strconv.FormatInt(query.From.ID, 10)
		if !a.senderAllowed(senderID) {
			a.log.Debug("Ignoring callback from unauthorized sender", "sender_id", senderID)
			return channel.Update{}, false
		}

		msg, ok := query.Message.(*telego.Message)
		if !ok || msg == nil {
			a.log.Debug("Ignoring callback on inaccessible message", "sender_id", senderID)
			return channel.Update{}, false
		}

		return channel.Update{ID: update.UpdateID, Callback: &channel.Callback{
			ID:       query.ID,
			SenderID: query.From.ID,
			Message:  chat.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.MessageID},
			Data:     query.Data,
			Media:    panelMedia(msg),
		}}, true

	case update.Message != nil:
		msg := update.Message
		if msg.From == nil {
			a.log.Debug("Ignoring message without sender")
			return channel.Update{}, false
		}
		senderID := strconv.FormatInt(msg.From.ID, 10)
		if !a.senderAllowed(senderID) {
			a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
			return channel.Update{}, false
		}
		converted := convertMessage(msg, msg.From.ID, true)
		a.log.Info("Received message", "chat_id", msg.Chat.ID, "sender_id", senderID, "content", previewText(converted.Text))
		return channel.Update{ID: update.UpdateID, Message: converted}, true

	case update.ChannelPost != nil:
		post := update.ChannelPost
		chatID := strconv.FormatInt(post.Chat.ID, 10)
		if !a.senderAllowed(chatID) {
			a.log.Debug("Ignoring post from unauthorized channel", "chat_id", chatID)
			return channel.Update{}, false
		}
		converted := convertMessage(post, post.Chat.ID, true)
		converted.ChatType = channel.ChatChannel
		return channel.Update{ID: update.UpdateID, Message: converted}, true

	default:
		return channel.Update{}, false
	}
}

func convertMessage(msg *telego.Message, senderID int64, withReply bool) *channel.Message {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	converted := &channel.Message{
		ChatID:    msg.Chat.ID,
		ChatType:  msg.Chat.Type,
		MessageID: msg.MessageID,
		SenderID:  senderID,
		Text:      text,
		GroupID:   msg.MediaGroupID,
		Date:      time.Unix(msg.Date, 0),
		Raw:       msg,
	}
	if ref, ok := media.Normalize(msg); ok {
		converted.Media = &ref
	}
	if withReply && msg.ReplyToMessage != nil {
		converted.ReplyTo = convertMessage(msg.ReplyToMessage, 0, false)
	}

	return converted
}

// panelMedia finds the item a pressed panel refers to: the media the panel shows, or the
// message it replies to.
func panelMedia(msg *telego.Message) *media.Ref {
	if ref, ok := media.Normalize(msg); ok {
		return &ref
	}
	if msg.ReplyToMessage != nil {
		if ref, ok := media.Normalize(msg.ReplyToMessage); ok {
			return &ref
		}
	}
	return nil
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
