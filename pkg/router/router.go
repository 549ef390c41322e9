// Package router drives button presses through the interaction state machine.
//
// Every press is answered exactly once, whatever the handler does. Handlers may answer
// early with a toast; otherwise a neutral answer is sent when the handler returns.
package router

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"mediarelay/pkg/batch"
	"mediarelay/pkg/catalog"
	"mediarelay/pkg/chat"
	"mediarelay/pkg/media"
	"mediarelay/pkg/panel"
	"mediarelay/pkg/storage"
	"mediarelay/pkg/token"
	"mediarelay/pkg/upload"
)

const (
	defaultPageSize = 6

	toastExpired = "Task expired"
	toastFailed  = "Something went wrong"
)

// Batches is the coordination state consulted by group panels.
type Batches interface {
	Resolve(ctx context.Context, ref chat.MessageRef) (string, error)
	Items(ctx context.Context, group string) ([]media.Ref, error)
	Forget(ctx context.Context, ref chat.MessageRef) error
}

// Dispatcher relays media to storage.
type Dispatcher interface {
	Dispatch(ctx context.Context, ref media.Ref, directory string, channel string) (storage.Result, error)
	DispatchBatch(ctx context.Context, refs []media.Ref, directory string, channel string) upload.Report
}

// Library reads the storage backend for browsing and random picks.
type Library interface {
	List(ctx context.Context, dir string, start int, count int) (storage.Listing, error)
	Random(ctx context.Context, dir string) (string, error)
	OriginURL(path string) string
	AccessURL(origin string) string
}

// Press is one button press.
type Press struct {
	CallbackID string
	Message    chat.MessageRef
	Data       string
	// Media is the item shown by the pressed message or the message it replies to.
	Media *media.Ref
}

// Options tunes a Router.
type Options struct {
	PageSize int
	Location *time.Location
}

// Router dispatches decoded tokens to their handlers.
type Router struct {
	messenger  chat.Messenger
	catalog    catalog.Source
	batches    Batches
	dispatcher Dispatcher
	library    Library
	pageSize   int
	location   *time.Location
	log        *slog.Logger
}

func New(messenger chat.Messenger, source catalog.Source, batches Batches, dispatcher Dispatcher, library Library, opts Options, log *slog.Logger) *Router {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		messenger:  messenger,
		catalog:    source,
		batches:    batches,
		dispatcher: dispatcher,
		library:    library,
		pageSize:   opts.PageSize,
		location:   opts.Location,
		log:        log.With("component", "router"),
	}
}

type acker struct {
	once      sync.Once
	messenger chat.Messenger
	id        string
	log       *slog.Logger
}

func (a *acker) ack(ctx context.Context, text string) {
	a.once.Do(func() {
		if err := a.messenger.AnswerCallback(ctx, a.id, text); err != nil {
			a.log.DebugContext(ctx, "Answer callback failed", "error", err)
		}
	})
}

// Handle processes one press. It never fails: errors are logged and surfaced to the user.
func (r *Router) Handle(ctx context.Context, p Press) {
	t := token.Decode(p.Data)
	log := r.log.With("action", t.Action.String(), "chat_id", p.Message.ChatID, "message_id", p.Message.MessageID)
	a := &acker{messenger: r.messenger, id: p.CallbackID, log: log}
	defer a.ack(ctx, "")

	log.DebugContext(ctx, "Handling press")

	switch t.Action {
	case token.SwitchChannel:
		r.switchChannel(ctx, log, a, p, t)
	case token.ModeSelect:
		r.selectMode(ctx, log, a, p, t)
	case token.SingleUpload:
		r.singleUpload(ctx, log, a, p, t)
	case token.BatchUpload:
		r.batchUpload(ctx, log, a, p, t)
	case token.Cancel:
		a.ack(ctx, "Cancelled")
		if t.Batch {
			if err := r.batches.Forget(ctx, p.Message); err != nil {
				log.WarnContext(ctx, "Failed to drop group state", "error", err)
			}
		}
		r.delete(ctx, log, p.Message)
	case token.ClosePanel:
		r.delete(ctx, log, p.Message)
		if id, err := strconv.Atoi(t.Correlation); err == nil && id > 0 {
			r.delete(ctx, log, chat.MessageRef{ChatID: p.Message.ChatID, MessageID: id})
		}
	case token.RandomNext:
		r.ShowRandom(ctx, p.Message, t.Directory, t.Correlation, true)
	case token.RandomPick:
		r.pickRandomScope(ctx, log, a, p, t)
	case token.RandomSet:
		a.ack(ctx, "Switching to: "+t.Directory)
		if err := r.messenger.EditCaption(ctx, p.Message, panel.RandomSwitching(t.Directory), panel.Loading()); err != nil {
			log.DebugContext(ctx, "Loading state failed", "error", err)
		}
		r.ShowRandom(ctx, p.Message, t.Directory, t.Correlation, true)
	case token.Browse:
		a.ack(ctx, "Loading...")
		r.ShowListing(ctx, p.Message, t.Directory, t.Page, t.Correlation)
	case token.ListRefreshRoot:
		a.ack(ctx, "Refreshing...")
		r.render(log, r.messenger.EditText(ctx, p.Message, chat.Text{
			Body:     panel.BrowserPrompt,
			Keyboard: panel.DirectoryBrowser(r.catalog.Directories(), t.Correlation),
		}))
	default:
		log.DebugContext(ctx, "Ignoring press")
	}
}

// render swallows edit failures, which mean nothing to the user.
func (r *Router) render(log *slog.Logger, err error) {
	if err == nil {
		return
	}
	if chat.IsNotModified(err) {
		log.Debug("Render skipped, message not modified")
		return
	}
	log.Warn("Render failed", "error", err)
}

func (r *Router) delete(ctx context.Context, log *slog.Logger, ref chat.MessageRef) {
	if err := r.messenger.Delete(ctx, ref); err != nil {
		log.DebugContext(ctx, "Delete failed", "target", ref.MessageID, "error", err)
	}
}

func (r *Router) switchChannel(ctx context.Context, log *slog.Logger, a *acker, p Press, t token.Token) {
	channels := r.catalog.Channels()
	kb := panel.Unified(channels, r.catalog.Directories(), t.Channel, t.Batch)

	err := r.messenger.EditKeyboard(ctx, p.Message, kb)
	switch {
	case err == nil:
		a.ack(ctx, panel.ChannelSwitched(catalog.ChannelName(channels, t.Channel)))
	case chat.IsNotModified(err):
		a.ack(ctx, "Channel already selected")
	default:
		r.render(log, err)
	}
}

func (r *Router) resolveGroup(ctx context.Context, log *slog.Logger, a *acker, ref chat.MessageRef) (string, bool) {
	group, err := r.batches.Resolve(ctx, ref)
	if errors.Is(err, batch.ErrExpired) {
		a.ack(ctx, toastExpired)
		return "", false
	}
	if err != nil {
		log.ErrorContext(ctx, "Resolve group failed", "error", err)
		a.ack(ctx, toastFailed)
		return "", false
	}
	return group, true
}

func (r *Router) selectMode(ctx context.Context, log *slog.Logger, a *acker, p Press, t token.Token) {
	group, ok := r.resolveGroup(ctx, log, a, p.Message)
	if !ok {
		return
	}
	log = log.With("group", group, "mode", t.Mode)

	channels := r.catalog.Channels()
	dirs := r.catalog.Directories()

	if t.Mode == token.ModeUnify {
		r.render(log, r.messenger.EditText(ctx, p.Message, chat.Text{
			Body:     panel.BatchUnifyPrompt,
			Keyboard: panel.Unified(channels, dirs, catalog.DefaultChannel(channels), true),
		}))
		a.ack(ctx, "Pick the settings")
		return
	}

	a.ack(ctx, "Expanding...")
	r.render(log, r.messenger.EditText(ctx, p.Message, chat.Text{Body: panel.SeparatedNotice}))

	// Items received by now are expanded; later ones are not.
	items, err := r.batches.Items(ctx, group)
	if err != nil {
		log.ErrorContext(ctx, "Load group items failed", "error", err)
		return
	}
	for _, item := range items {
		if _, err := r.messenger.SendMedia(ctx, p.Message.ChatID, panel.SingleUpload(item, channels, dirs)); err != nil {
			log.WarnContext(ctx, "Send item panel failed", "name", item.Name, "error", err)
		}
	}
}

func (r *Router) singleUpload(ctx context.Context, log *slog.Logger, a *acker, p Press, t token.Token) {
	a.ack(ctx, "Uploading...")

	if p.Media == nil {
		if _, err := r.messenger.SendText(ctx, p.Message.ChatID, chat.Text{Body: panel.MediaExpired}); err != nil {
			log.WarnContext(ctx, "Send expiry notice failed", "error", err)
		}
		r.delete(ctx, log, p.Message)
		return
	}

	channelName := catalog.ChannelName(r.catalog.Channels(), t.Channel)
	r.render(log, r.messenger.EditCaption(ctx, p.Message, panel.Uploading(t.Directory, channelName, false), nil))

	result, err := r.dispatcher.Dispatch(ctx, *p.Media, t.Directory, t.Channel)
	if err != nil {
		log.WarnContext(ctx, "Upload failed", "name", p.Media.Name, "error", err)
		r.render(log, r.messenger.EditCaption(ctx, p.Message, panel.SingleFailure(err), nil))
		return
	}
	r.render(log, r.messenger.EditCaption(ctx, p.Message, panel.SingleSuccess(t.Directory, channelName, result), nil))
}

func (r *Router) batchUpload(ctx context.Context, log *slog.Logger, a *acker, p Press, t token.Token) {
	group, ok := r.resolveGroup(ctx, log, a, p.Message)
	if !ok {
		return
	}
	log = log.With("group", group)
	a.ack(ctx, "Starting upload...")

	channelName := catalog.ChannelName(r.catalog.Channels(), t.Channel)
	r.render(log, r.messenger.EditText(ctx, p.Message, chat.Text{Body: panel.Uploading(t.Directory, channelName, true)}))

	items, err := r.batches.Items(ctx, group)
	if err != nil {
		log.ErrorContext(ctx, "Load group items failed", "error", err)
		r.render(log, r.messenger.EditText(ctx, p.Message, chat.Text{Body: panel.SingleFailure(err)}))
		return
	}
	if len(items) == 0 {
		r.render(log, r.messenger.EditText(ctx, p.Message, chat.Text{Body: panel.NoBatchFiles}))
		return
	}

	report := r.dispatcher.DispatchBatch(ctx, items, t.Directory, t.Channel)
	log.InfoContext(ctx, "Batch upload finished", "succeeded", report.Succeeded, "failed", report.Failed)

	r.render(log, r.messenger.EditText(ctx, p.Message, chat.Text{
		Body:           panel.BatchReport(report, channelName),
		DisablePreview: true,
	}))
}

func (r *Router) pickRandomScope(ctx context.Context, log *slog.Logger, a *acker, p Press, t token.Token) {
	kb := panel.RandomDirectories(r.catalog.Directories(), t.Directory, t.Correlation)
	r.render(log, r.messenger.EditCaption(ctx, p.Message, panel.RandomPickPrompt, kb))
	a.ack(ctx, "Pick a directory")
}

// ShowRandom picks a random file in scope and shows it. With edit set the media of ref is
// replaced; otherwise the pick is sent as a new message and ref, a pending text, is deleted.
// Failures turn ref into an error with a rescue keyboard.
func (r *Router) ShowRandom(ctx context.Context, ref chat.MessageRef, scope string, correlation string, edit bool) {
	log := r.log.With("scope", scope, "message_id", ref.MessageID)

	dir := scope
	if dir == panel.AllDirectories {
		dir = ""
	}

	err := r.showRandom(ctx, ref, dir, scope, correlation, edit)
	if err == nil {
		return
	}

	log.WarnContext(ctx, "Random pick failed", "error", err)
	rescue := panel.RandomRescue(scope, correlation)
	if edit {
		r.render(log, r.messenger.EditCaption(ctx, ref, panel.RandomFailure(err), rescue))
		return
	}
	r.render(log, r.messenger.EditText(ctx, ref, chat.Text{Body: panel.RandomFailure(err), Keyboard: rescue}))
}

func (r *Router) showRandom(ctx context.Context, ref chat.MessageRef, dir string, scope string, correlation string, edit bool) error {
	link, err := r.library.Random(ctx, dir)
	if err != nil {
		return err
	}

	pick := panel.RandomPick(link, scope, correlation)
	if edit {
		return r.messenger.EditMedia(ctx, ref, pick)
	}

	if _, err := r.messenger.SendMedia(ctx, ref.ChatID, pick); err != nil {
		return err
	}
	r.delete(ctx, r.log, ref)
	return nil
}

// ShowListing renders one page of dir into ref.
func (r *Router) ShowListing(ctx context.Context, ref chat.MessageRef, dir string, page int, correlation string) {
	page = min(max(page, 0), token.MaxPage)
	log := r.log.With("dir", dir, "page", page)

	listing, err := r.library.List(ctx, dir, page*r.pageSize, r.pageSize)
	if err != nil {
		log.WarnContext(ctx, "Listing failed", "error", err)
		if _, sendErr := r.messenger.SendText(ctx, ref.ChatID, chat.Text{Body: panel.ListingFailure(err)}); sendErr != nil {
			log.WarnContext(ctx, "Send listing failure failed", "error", sendErr)
		}
		return
	}

	view := panel.ListingPage{
		Directory: dir,
		Page:      page,
		PageSize:  r.pageSize,
		Listing:   listing,
		Channels:  r.catalog.Channels(),
		Location:  r.location,
		OriginURL: r.library.OriginURL,
		AccessURL: r.library.AccessURL,
	}

	r.render(log, r.messenger.EditText(ctx, ref, chat.Text{
		Body:           panel.Listing(view),
		Keyboard:       panel.ListingNav(dir, page, view.TotalPages(), correlation),
		DisablePreview: true,
	}))
}
