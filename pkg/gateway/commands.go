package gateway

import (
	"context"
	"errors"

	"mediarelay/pkg/chat"
)

// PrivateCommands is the menu shown in private chats.
var PrivateCommands = []chat.Command{
	{Command: "list", Description: "📂 Browse storage directories"},
	{Command: "random", Description: "🎲 Random file viewer"},
	{Command: "clean", Description: "🧹 Delete a message and this command"},
	{Command: "reset", Description: "🔄 Reset upload state"},
	{Command: "init", Description: "⚙️ Refresh the command menu"},
}

// PublicCommands is the menu shown in groups and channels.
var PublicCommands = []chat.Command{
	{Command: "info", Description: "ℹ️ Show message metadata"},
}

// RegisterCommands installs both command menus on every scope. With a non-zero chatID the
// private menu is also forced onto that chat. Every scope is attempted; failures are joined.
func RegisterCommands(ctx context.Context, messenger chat.Messenger, chatID int64) error {
	type menu struct {
		scope    chat.Scope
		commands []chat.Command
	}

	menus := []menu{
		{chat.Scope{Type: chat.ScopeAllPrivateChats}, PrivateCommands},
		{chat.Scope{Type: chat.ScopeAllChatAdmins}, PublicCommands},
		{chat.Scope{Type: chat.ScopeAllGroupChats}, PublicCommands},
		{chat.Scope{Type: chat.ScopeDefault}, PublicCommands},
	}
	if chatID != 0 {
		menus = append(menus, menu{chat.Scope{Type: chat.ScopeChat, ChatID: chatID}, PrivateCommands})
	}

	var errs []error
	for _, m := range menus {
		if err := messenger.SetCommands(ctx, m.scope, m.commands); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
