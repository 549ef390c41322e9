// Package channel defines how chat transports deliver updates to the relay.
package channel

import (
	"context"
	"time"

	"mediarelay/pkg/chat"
	"mediarelay/pkg/media"
)

// Chat types of inbound messages.
const (
	ChatPrivate = "private"
	ChatChannel = "channel"
)

// Message is an inbound message or channel post.
type Message struct {
	ChatID    int64
	ChatType  string
	MessageID int
	SenderID  int64
	Text      string
	// GroupID is the media group the message belongs to, if any.
	GroupID string
	Date    time.Time
	// Media is the normalized item carried by the message, if any.
	Media   *media.Ref
	ReplyTo *Message
	// Raw is the transport's own representation, used for diagnostics.
	Raw any
}

// Ref addresses m.
func (m *Message) Ref() chat.MessageRef {
	return chat.MessageRef{ChatID: m.ChatID, MessageID: m.MessageID}
}

// Callback is a button press.
type Callback struct {
	ID       string
	SenderID int64
	Message  chat.MessageRef
	Data     string
	// Media is the item shown by the pressed message or the message it replies to.
	Media *media.Ref
}

// Update is one authorized inbound event. Exactly one field is set.
type Update struct {
	ID       int
	Message  *Message
	Callback *Callback
}

// Handler processes one update. Adapters run each call on its own goroutine and do not
// wait for it before accepting the next update.
type Handler func(context.Context, Update)

// Adapter bridges one external transport into the relay.
type Adapter interface {
	Name() string
	Messenger() chat.Messenger
	Run(context.Context, Handler) error
}
