package gateway

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediarelay/pkg/batch"
	"mediarelay/pkg/catalog"
	"mediarelay/pkg/channel"
	"mediarelay/pkg/chat"
	"mediarelay/pkg/logger"
	"mediarelay/pkg/panel"
	"mediarelay/pkg/router"
)

const defaultInfoTTL = 12 * time.Second

// Batches is the media-group coordination used by message intake.
type Batches interface {
	Accept(ctx context.Context, d batch.Delivery) (bool, error)
	Reset(ctx context.Context) (int, error)
}

// Presses handles button presses and opens random viewers.
type Presses interface {
	Handle(ctx context.Context, p router.Press)
	ShowRandom(ctx context.Context, ref chat.MessageRef, scope string, correlation string, edit bool)
}

// HandlerOptions tunes a Handler.
type HandlerOptions struct {
	Location *time.Location
	// InfoTTL is how long /info replies stay before they and the command are deleted.
	InfoTTL time.Duration
}

// Handler routes relay updates: commands, media intake and button presses.
type Handler struct {
	messenger chat.Messenger
	catalog   catalog.Source
	batches   Batches
	presses   Presses
	location  *time.Location
	infoTTL   time.Duration
	log       *slog.Logger

	after func(d time.Duration, fn func())
}

func NewHandler(messenger chat.Messenger, source catalog.Source, batches Batches, presses Presses, opts HandlerOptions, log *slog.Logger) *Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.InfoTTL <= 0 {
		opts.InfoTTL = defaultInfoTTL
	}
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		messenger: messenger,
		catalog:   source,
		batches:   batches,
		presses:   presses,
		location:  opts.Location,
		infoTTL:   opts.InfoTTL,
		log:       log.With("component", "gateway.handler"),
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// Handle processes one update. It matches channel.Handler.
func (h *Handler) Handle(ctx context.Context, u channel.Update) {
	ctx = logger.WithTraceID(ctx, uuid.NewString())
	log := h.log.With("update_id", u.ID)

	switch {
	case u.Callback != nil:
		cb := u.Callback
		h.presses.Handle(ctx, router.Press{
			CallbackID: cb.ID,
			Message:    cb.Message,
			Data:       cb.Data,
			Media:      cb.Media,
		})
	case u.Message != nil:
		if u.Message.ChatType == channel.ChatPrivate {
			h.private(ctx, log, u.Message)
			return
		}
		h.public(ctx, log, u.Message)
	}
}

// command extracts the command name from text, dropping any @bot suffix and arguments.
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return name
}

func (h *Handler) private(ctx context.Context, log *slog.Logger, msg *channel.Message) {
	chatID := msg.ChatID
	correlation := strconv.Itoa(msg.MessageID)

	switch command(msg.Text) {
	case "/init":
		h.send(ctx, log, chatID, chat.Text{Body: panel.CommandsRefreshing})
		if err := RegisterCommands(ctx, h.messenger, chatID); err != nil {
			log.WarnContext(ctx, "Command menu refresh failed", "error", err)
			h.send(ctx, log, chatID, chat.Text{Body: panel.CommandsFailed(err)})
			return
		}
		h.send(ctx, log, chatID, chat.Text{Body: panel.CommandsRefreshed})
		return

	case "/list":
		dirs := h.catalog.Directories()
		if len(dirs) == 0 {
			h.send(ctx, log, chatID, chat.Text{Body: panel.NoDirectories})
			return
		}
		h.send(ctx, log, chatID, chat.Text{Body: panel.BrowserPrompt, Keyboard: panel.DirectoryBrowser(dirs, correlation)})
		return

	case "/reset":
		h.send(ctx, log, chatID, chat.Text{Body: panel.ResetPending})
		count, err := h.batches.Reset(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Reset failed", "deleted", count, "error", err)
			h.send(ctx, log, chatID, chat.Text{Body: panel.ResetFailed(err)})
			return
		}
		log.InfoContext(ctx, "Upload state reset", "deleted", count)
		h.send(ctx, log, chatID, chat.Text{Body: panel.ResetDone(count)})
		return

	case "/clean":
		if msg.ReplyTo != nil {
			h.delete(ctx, log, chat.MessageRef{ChatID: chatID, MessageID: msg.ReplyTo.MessageID})
		}
		h.delete(ctx, log, msg.Ref())
		return

	case "/random":
		pendingID, ok := h.send(ctx, log, chatID, chat.Text{Body: panel.RandomPending, Keyboard: panel.PendingClose(correlation)})
		if !ok {
			return
		}
		h.presses.ShowRandom(ctx, chat.MessageRef{ChatID: chatID, MessageID: pendingID}, panel.AllDirectories, correlation, false)
		return
	}

	if msg.Media == nil {
		return
	}

	if msg.GroupID != "" {
		created, err := h.batches.Accept(ctx, batch.Delivery{
			ChatID:    chatID,
			MessageID: msg.MessageID,
			GroupID:   msg.GroupID,
			Ref:       *msg.Media,
		})
		if err != nil {
			log.WarnContext(ctx, "Group intake failed", "group", msg.GroupID, "error", err)
			return
		}
		log.DebugContext(ctx, "Group item accepted", "group", msg.GroupID, "panel_created", created)
		return
	}

	offer := panel.SingleUpload(*msg.Media, h.catalog.Channels(), h.catalog.Directories())
	if _, err := h.messenger.SendMedia(ctx, chatID, offer); err != nil {
		log.WarnContext(ctx, "Send upload panel failed", "kind", msg.Media.Kind, "error", err)
	}
}

// public handles groups and channels, where only /info is served and media is never offered for upload.
func (h *Handler) public(ctx context.Context, log *slog.Logger, msg *channel.Message) {
	if command(msg.Text) != "/info" {
		return
	}

	target := msg
	if msg.ReplyTo != nil {
		target = msg.ReplyTo
	}

	body := panel.InfoText(panel.Info{
		MessageID: target.MessageID,
		Date:      target.Date,
		Media:     target.Media,
		Raw:       target.Raw,
	}, h.location)

	replyID, ok := h.send(ctx, log, msg.ChatID, chat.Text{Body: body, ReplyTo: target.MessageID})
	if !ok {
		return
	}

	cleanup := context.WithoutCancel(ctx)
	refs := []chat.MessageRef{{ChatID: msg.ChatID, MessageID: replyID}, msg.Ref()}
	h.after(h.infoTTL, func() {
		for _, ref := range refs {
			h.delete(cleanup, log, ref)
		}
	})
}

func (h *Handler) send(ctx context.Context, log *slog.Logger, chatID int64, msg chat.Text) (int, bool) {
	id, err := h.messenger.SendText(ctx, chatID, msg)
	if err != nil {
		log.WarnContext(ctx, "Send message failed", "chat_id", chatID, "error", err)
		return 0, false
	}
	return id, true
}

func (h *Handler) delete(ctx context.Context, log *slog.Logger, ref chat.MessageRef) {
	if err := h.messenger.Delete(ctx, ref); err != nil {
		log.DebugContext(ctx, "Delete message failed", "message_id", ref.MessageID, "error", err)
	}
}
