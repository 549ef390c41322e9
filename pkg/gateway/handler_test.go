package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/pkg/batch"
	"mediarelay/pkg/catalog"
	"mediarelay/pkg/channel"
	"mediarelay/pkg/chat"
	"mediarelay/pkg/chat/chattest"
	"mediarelay/pkg/logger"
	"mediarelay/pkg/media"
	"mediarelay/pkg/panel"
	"mediarelay/pkg/router"
	"mediarelay/pkg/token"
)

type fakeBatches struct {
	mu         sync.Mutex
	deliveries []batch.Delivery
	resetCount int
	resetErr   error
}

func (b *fakeBatches) Accept(_ context.Context, d batch.Delivery) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliveries = append(b.deliveries, d)
	return len(b.deliveries) == 1, nil
}

func (b *fakeBatches) Reset(context.Context) (int, error) {
	return b.resetCount, b.resetErr
}

type randomCall struct {
	ref         chat.MessageRef
	scope       string
	correlation string
	edit        bool
}

type fakePresses struct {
	mu       sync.Mutex
	presses  []router.Press
	traceIDs []string
	randoms  []randomCall
}

func (p *fakePresses) Handle(ctx context.Context, press router.Press) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presses = append(p.presses, press)
	p.traceIDs = append(p.traceIDs, logger.TraceID(ctx))
}

func (p *fakePresses) ShowRandom(_ context.Context, ref chat.MessageRef, scope string, correlation string, edit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.randoms = append(p.randoms, randomCall{ref: ref, scope: scope, correlation: correlation, edit: edit})
}

type handlerFixture struct {
	handler   *Handler
	messenger *chattest.Recorder
	batches   *fakeBatches
	presses   *fakePresses
	scheduled []time.Duration
}

func newHandlerFixture(t *testing.T, dirs ...string) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		messenger: chattest.New(),
		batches:   &fakeBatches{},
		presses:   &fakePresses{},
	}
	source := catalog.Static{
		ChannelList:   []catalog.Channel{{Name: "TG", Code: "telegram"}, {Name: "R2", Code: "cfr2"}},
		DirectoryList: dirs,
	}
	f.handler = NewHandler(f.messenger, source, f.batches, f.presses, HandlerOptions{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.handler.after = func(d time.Duration, fn func()) {
		f.scheduled = append(f.scheduled, d)
		fn()
	}
	return f
}

func privateMessage(id int, text string) *channel.Message {
	return &channel.Message{ChatID: 7, ChatType: channel.ChatPrivate, MessageID: id, SenderID: 7, Text: text}
}

func TestCommand(t *testing.T) {
	tests := map[string]string{
		"/list":            "/list",
		"/list photos":     "/list",
		"/info@relay_bot":  "/info",
		"  /random  ":      "/random",
		"hello":            "",
		"":                 "",
		"see /list please": "",
	}
	for text, want := range tests {
		assert.Equal(t, want, command(text), "command(%q)", text)
	}
}

func TestListCommandOpensBrowser(t *testing.T) {
	f := newHandlerFixture(t, "photos", "memes")

	f.handler.Handle(context.Background(), channel.Update{Message: privateMessage(40, "/list")})

	sent := f.messenger.Method("SendText")
	require.Len(t, sent, 1)
	assert.Equal(t, panel.BrowserPrompt, sent[0].Text)
	require.NotEmpty(t, sent[0].Keyboard)

	first := token.Decode(sent[0].Keyboard[0][0].Data)
	assert.Equal(t, token.Browse, first.Action)
	assert.Equal(t, "photos", first.Directory)
	assert.Equal(t, "40", first.Correlation)
}

func TestListCommandWithoutDirectories(t *testing.T) {
	f := newHandlerFixture(t)

	f.handler.Handle(context.Background(), channel.Update{Message: privateMessage(40, "/list")})

	sent := f.messenger.Method("SendText")
	require.Len(t, sent, 1)
	assert.Equal(t, panel.NoDirectories, sent[0].Text)
}

func TestResetCommandReportsCount(t *testing.T) {
	f := newHandlerFixture(t)
	f.batches.resetCount = 5

	f.handler.Handle(context.Background(), channel.Update{Message: privateMessage(1, "/reset")})

	sent := f.messenger.Method("SendText")
	require.Len(t, sent, 2)
	assert.Equal(t, panel.ResetPending, sent[0].Text)
	assert.Equal(t, panel.ResetDone(5), sent[1].Text)
}

func TestResetCommandFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.batches.resetErr = errors.New("store down")

	f.handler.Handle(context.Background(), channel.Update{Message: privateMessage(1, "/reset")})

	sent := f.messenger.Method("SendText")
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Text, "store down")
}

func TestCleanCommandDeletesReplyAndCommand(t *testing.T) {
	f := newHandlerFixture(t)
	msg := privateMessage(12, "/clean")
	msg.ReplyTo = privateMessage(11, "")

	f.handler.Handle(context.Background(), channel.Update{Message: msg})

	deletes := f.messenger.Method("Delete")
	require.Len(t, deletes, 2)
	assert.Equal(t, chat.MessageRef{ChatID: 7, MessageID: 11}, deletes[0].Ref)
	assert.Equal(t, chat.MessageRef{ChatID: 7, MessageID: 12}, deletes[1].Ref)
}

func TestRandomCommandSendsPendingThenShows(t *testing.T) {
	f := newHandlerFixture(t)

	f.handler.Handle(context.Background(), channel.Update{Message: privateMessage(30, "/random")})

	sent := f.messenger.Method("SendText")
	require.Len(t, sent, 1)
	assert.Equal(t, panel.RandomPending, sent[0].Text)
	assert.Equal(t, panel.PendingClose("30"), sent[0].Keyboard)

	require.Len(t, f.presses.randoms, 1)
	assert.Equal(t, randomCall{
		ref:         chat.MessageRef{ChatID: 7, MessageID: 1001},
		scope:       panel.AllDirectories,
		correlation: "30",
	}, f.presses.randoms[0])
}

func TestRandomCommandStopsWhenPendingFails(t *testing.T) {
	f := newHandlerFixture(t)
	f.messenger.SetError("SendText", errors.New("blocked"))

	f.handler.Handle(context.Background(), channel.Update{Message: privateMessage(30, "/random")})

	assert.Empty(t, f.presses.randoms)
}

func TestInitCommandRegistersMenus(t *testing.T) {
	f := newHandlerFixture(t)

	f.handler.Handle(context.Background(), channel.Update{Message: privateMessage(2, "/init")})

	menus := f.messenger.Method("SetCommands")
	require.Len(t, menus, 5)
	assert.Equal(t, chat.Scope{Type: chat.ScopeChat, ChatID: 7}, menus[4].Scope)
	assert.Equal(t, PrivateCommands, menus[4].Commands)

	sent := f.messenger.Method("SendText")
	require.Len(t, sent, 2)
	assert.Equal(t, panel.CommandsRefreshed, sent[1].Text)
}

func TestInitCommandReportsFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.messenger.SetError("SetCommands", errors.New("forbidden"))

	f.handler.Handle(context.Background(), channel.Update{Message: privateMessage(2, "/init")})

	assert.Len(t, f.messenger.Method("SetCommands"), 5, "every scope is attempted")
	sent := f.messenger.Method("SendText")
	require.Len(t, sent, 2)
	assert.True(t, strings.HasPrefix(sent[1].Text, "❌"))
}

func TestSingleMediaGetsUploadPanel(t *testing.T) {
	f := newHandlerFixture(t, "photos")
	msg := privateMessage(50, "")
	msg.Media = &media.Ref{SourceID: "file-1", Kind: media.KindVideo, Name: "clip.mp4"}

	f.handler.Handle(context.Background(), channel.Update{Message: msg})

	sent := f.messenger.Method("SendMedia")
	require.Len(t, sent, 1)
	assert.Equal(t, media.KindVideo, sent[0].Media.Kind)
	assert.Equal(t, "file-1", sent[0].Media.Source)
	assert.Equal(t, panel.SinglePrompt, sent[0].Media.Caption)
	assert.Equal(t, panel.Unified(catalog.Static{ChannelList: []catalog.Channel{{Name: "TG", Code: "telegram"}, {Name: "R2", Code: "cfr2"}}}.Channels(), []string{"photos"}, "telegram", false), sent[0].Keyboard)
	assert.Empty(t, f.batches.deliveries)
}

func TestGroupedMediaGoesToCoordinator(t *testing.T) {
	f := newHandlerFixture(t)
	msg := privateMessage(51, "")
	msg.GroupID = "album-1"
	msg.Media = &media.Ref{SourceID: "p1", Kind: media.KindPhoto, Name: "a.jpg"}

	f.handler.Handle(context.Background(), channel.Update{Message: msg})

	require.Len(t, f.batches.deliveries, 1)
	assert.Equal(t, batch.Delivery{ChatID: 7, MessageID: 51, GroupID: "album-1", Ref: *msg.Media}, f.batches.deliveries[0])
	assert.Empty(t, f.messenger.Calls())
}

func TestPlainTextIsIgnored(t *testing.T) {
	f := newHandlerFixture(t)

	f.handler.Handle(context.Background(), channel.Update{Message: privateMessage(1, "hello")})

	assert.Empty(t, f.messenger.Calls())
}

func TestPublicMediaIsNeverOffered(t *testing.T) {
	f := newHandlerFixture(t)
	msg := &channel.Message{ChatID: -100, ChatType: "supergroup", MessageID: 3, Text: "/random"}
	msg.Media = &media.Ref{SourceID: "p1", Kind: media.KindPhoto}

	f.handler.Handle(context.Background(), channel.Update{Message: msg})

	assert.Empty(t, f.messenger.Calls())
	assert.Empty(t, f.presses.randoms)
}

func TestInfoCommandRepliesAndSchedulesCleanup(t *testing.T) {
	f := newHandlerFixture(t)
	target := &channel.Message{
		ChatID:    -100,
		ChatType:  channel.ChatChannel,
		MessageID: 8,
		Date:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Media:     &media.Ref{SourceID: "doc-1", Kind: media.KindDocument, Name: "report.pdf"},
		Raw:       map[string]any{"message_id": 8},
	}
	cmd := &channel.Message{ChatID: -100, ChatType: channel.ChatChannel, MessageID: 9, Text: "/info", ReplyTo: target}

	f.handler.Handle(context.Background(), channel.Update{Message: cmd})

	sent := f.messenger.Method("SendText")
	require.Len(t, sent, 1)
	assert.Equal(t, 8, sent[0].Ref.MessageID, "reply goes to the target message")
	assert.Contains(t, sent[0].Text, "report.pdf")
	assert.Contains(t, sent[0].Text, "2024-05-01 12:00:00")

	assert.Equal(t, []time.Duration{defaultInfoTTL}, f.scheduled)
	deletes := f.messenger.Method("Delete")
	require.Len(t, deletes, 2)
	assert.Equal(t, 1001, deletes[0].Ref.MessageID)
	assert.Equal(t, 9, deletes[1].Ref.MessageID)
}

func TestInfoCommandWithoutReplyDescribesItself(t *testing.T) {
	f := newHandlerFixture(t)
	cmd := &channel.Message{ChatID: -5, ChatType: "group", MessageID: 21, Text: "/info"}

	f.handler.Handle(context.Background(), channel.Update{Message: cmd})

	sent := f.messenger.Method("SendText")
	require.Len(t, sent, 1)
	assert.Equal(t, 21, sent[0].Ref.MessageID)
	assert.Contains(t, sent[0].Text, "<code>21</code>")
}

func TestCallbackIsRoutedAsPress(t *testing.T) {
	f := newHandlerFixture(t)
	ref := &media.Ref{SourceID: "p9", Kind: media.KindPhoto}

	f.handler.Handle(context.Background(), channel.Update{Callback: &channel.Callback{
		ID:       "cb-1",
		SenderID: 7,
		Message:  chat.MessageRef{ChatID: 7, MessageID: 77},
		Data:     "ig",
		Media:    ref,
	}})

	require.Len(t, f.presses.presses, 1)
	assert.Equal(t, router.Press{
		CallbackID: "cb-1",
		Message:    chat.MessageRef{ChatID: 7, MessageID: 77},
		Data:       "ig",
		Media:      ref,
	}, f.presses.presses[0])
}

func TestEachUpdateGetsItsOwnTraceID(t *testing.T) {
	f := newHandlerFixture(t)
	press := channel.Update{Callback: &channel.Callback{
		ID:      "cb-1",
		Message: chat.MessageRef{ChatID: 7, MessageID: 77},
		Data:    "ig",
	}}

	f.handler.Handle(context.Background(), press)
	f.handler.Handle(context.Background(), press)

	require.Len(t, f.presses.traceIDs, 2)
	assert.NotEmpty(t, f.presses.traceIDs[0])
	assert.NotEmpty(t, f.presses.traceIDs[1])
	assert.NotEqual(t, f.presses.traceIDs[0], f.presses.traceIDs[1])
}

func TestRegisterCommandsWithoutChat(t *testing.T) {
	messenger := chattest.New()

	require.NoError(t, RegisterCommands(context.Background(), messenger, 0))

	menus := messenger.Method("SetCommands")
	require.Len(t, menus, 4)
	assert.Equal(t, chat.ScopeAllPrivateChats, menus[0].Scope.Type)
	assert.Equal(t, PrivateCommands, menus[0].Commands)
	for _, m := range menus[1:] {
		assert.Equal(t, PublicCommands, m.Commands)
	}
}
