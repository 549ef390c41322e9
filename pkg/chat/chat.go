// Package chat is the transport-neutral contract between the relay and the chat platform.
package chat

import (
	"context"
	"strings"

	"mediarelay/pkg/media"
)

// Button is one inline button. Data is an encoded callback token.
type Button struct {
	Text string
	Data string
}

// Keyboard is an inline keyboard, row by row.
type Keyboard [][]Button

// MessageRef addresses one message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Text is an outgoing HTML text message.
type Text struct {
	Body           string
	Keyboard       Keyboard
	ReplyTo        int
	DisablePreview bool
}

// Media is an outgoing photo, video or document. Source is a platform file id or a URL.
type Media struct {
	Kind      media.Kind
	Source    string
	Caption   string
	Keyboard  Keyboard
	Streaming bool
}

// Command is one entry of a command menu.
type Command struct {
	Command     string
	Description string
}

// ScopeType selects which chats a command menu applies to.
type ScopeType string

const (
	ScopeDefault         ScopeType = "default"
	ScopeAllPrivateChats ScopeType = "all_private_chats"
	ScopeAllGroupChats   ScopeType = "all_group_chats"
	ScopeAllChatAdmins   ScopeType = "all_chat_administrators"
	ScopeChat            ScopeType = "chat"
)

// Scope is a command menu scope. ChatID is used with ScopeChat only.
type Scope struct {
	Type   ScopeType
	ChatID int64
}

// Messenger performs chat operations. Edits with a nil keyboard remove the inline keyboard.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, msg Text) (int, error)
	SendMedia(ctx context.Context, chatID int64, m Media) (int, error)
	EditText(ctx context.Context, ref MessageRef, msg Text) error
	EditCaption(ctx context.Context, ref MessageRef, caption string, kb Keyboard) error
	EditKeyboard(ctx context.Context, ref MessageRef, kb Keyboard) error
	EditMedia(ctx context.Context, ref MessageRef, m Media) error
	Delete(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	// FileURL resolves a platform file id to a download URL.
	FileURL(ctx context.Context, fileID string) (string, error)
	SetCommands(ctx context.Context, scope Scope, commands []Command) error
}

// IsNotModified reports whether err is the platform's rejection of an edit that changes nothing.
func IsNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
