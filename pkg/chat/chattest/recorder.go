// Package chattest provides a recording chat.Messenger for tests.
package chattest

import (
	"context"
	"fmt"
	"sync"

	"mediarelay/pkg/chat"
)

// Call is one recorded Messenger invocation.
type Call struct {
	Method     string
	ChatID     int64
	Ref        chat.MessageRef
	Text       string
	Keyboard   chat.Keyboard
	Media      chat.Media
	CallbackID string
	Scope      chat.Scope
	Commands   []chat.Command
}

// Recorder records every call. Sent messages get increasing ids starting at 1001.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	nextID int

	// Errors maps a method name to the error it returns.
	Errors map[string]error
	// FileURLs maps file ids to download URLs.
	FileURLs map[string]string
}

var _ chat.Messenger = (*Recorder)(nil)

func New() *Recorder {
	return &Recorder{
		nextID:   1000,
		Errors:   map[string]error{},
		FileURLs: map[string]string{},
	}
}

func (r *Recorder) record(call Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, call)
	return r.Errors[call.Method]
}

func (r *Recorder) sent(call Call) (int, error) {
	if err := r.record(call); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID, nil
}

// SetError makes method fail with err from now on.
func (r *Recorder) SetError(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors[method] = err
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Method returns the recorded calls of one method.
func (r *Recorder) Method(name string) []Call {
	var out []Call
	for _, call := range r.Calls() {
		if call.Method == name {
			out = append(out, call)
		}
	}
	return out
}

// Answers returns the texts of every AnswerCallback call.
func (r *Recorder) Answers() []string {
	var out []string
	for _, call := range r.Method("AnswerCallback") {
		out = append(out, call.Text)
	}
	return out
}

func (r *Recorder) SendText(_ context.Context, chatID int64, msg chat.Text) (int, error) {
	return r.sent(Call{Method: "SendText", ChatID: chatID, Text: msg.Body, Keyboard: msg.Keyboard, Ref: chat.MessageRef{ChatID: chatID, MessageID: msg.ReplyTo}})
}

func (r *Recorder) SendMedia(_ context.Context, chatID int64, m chat.Media) (int, error) {
	return r.sent(Call{Method: "SendMedia", ChatID: chatID, Text: m.Caption, Keyboard: m.Keyboard, Media: m})
}

func (r *Recorder) EditText(_ context.Context, ref chat.MessageRef, msg chat.Text) error {
	return r.record(Call{Method: "EditText", ChatID: ref.ChatID, Ref: ref, Text: msg.Body, Keyboard: msg.Keyboard})
}

func (r *Recorder) EditCaption(_ context.Context, ref chat.MessageRef, caption string, kb chat.Keyboard) error {
	return r.record(Call{Method: "EditCaption", ChatID: ref.ChatID, Ref: ref, Text: caption, Keyboard: kb})
}

func (r *Recorder) EditKeyboard(_ context.Context, ref chat.MessageRef, kb chat.Keyboard) error {
	return r.record(Call{Method: "EditKeyboard", ChatID: ref.ChatID, Ref: ref, Keyboard: kb})
}

func (r *Recorder) EditMedia(_ context.Context, ref chat.MessageRef, m chat.Media) error {
	return r.record(Call{Method: "EditMedia", ChatID: ref.ChatID, Ref: ref, Text: m.Caption, Keyboard: m.Keyboard, Media: m})
}

func (r *Recorder) Delete(_ context.Context, ref chat.MessageRef) error {
	return r.record(Call{Method: "Delete", ChatID: ref.ChatID, Ref: ref})
}

func (r *Recorder) AnswerCallback(_ context.Context, callbackID string, text string) error {
	return r.record(Call{Method: "AnswerCallback", CallbackID: callbackID, Text: text})
}

func (r *Recorder) FileURL(_ context.Context, fileID string) (string, error) {
	if err := r.record(Call{Method: "FileURL", Text: fileID}); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if link, ok := r.FileURLs[fileID]; ok {
		return link, nil
	}
	return "", fmt.Errorf("unknown file id %q", fileID)
}

func (r *Recorder) SetCommands(_ context.Context, scope chat.Scope, commands []chat.Command) error {
	return r.record(Call{Method: "SetCommands", Scope: scope, Commands: commands})
}
