package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"mediarelay/pkg/chat"
	"mediarelay/pkg/media"
)

// Messenger implements chat.Messenger on the Telegram Bot API. Every text and caption
// is sent in HTML parse mode.
type Messenger struct {
	bot *telego.Bot
}

var _ chat.Messenger = (*Messenger)(nil)

// NewMessenger wraps bot.
func NewMessenger(bot *telego.Bot) *Messenger {
	return &Messenger{bot: bot}
}

func (m *Messenger) SendText(ctx context.Context, chatID int64, msg chat.Text) (int, error) {
	params := &telego.SendMessageParams{
		ChatID:    tu.ID(chatID),
		Text:      msg.Body,
		ParseMode: telego.ModeHTML,
	}
	if kb := inlineKeyboard(msg.Keyboard); kb != nil {
		params.ReplyMarkup = kb
	}
	if msg.ReplyTo != 0 {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: msg.ReplyTo, AllowSendingWithoutReply: true}
	}
	if msg.DisablePreview {
		params.LinkPreviewOptions = &telego.LinkPreviewOptions{IsDisabled: true}
	}

	sent, err := m.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

func (m *Messenger) SendMedia(ctx context.Context, chatID int64, item chat.Media) (int, error) {
	var (
		sent *telego.Message
		err  error
	)

	file := inputFile(item.Source)
	kb := inlineKeyboard(item.Keyboard)

	switch item.Kind {
	case media.KindVideo:
		params := &telego.SendVideoParams{
			ChatID:            tu.ID(chatID),
			Video:             file,
			Caption:           item.Caption,
			ParseMode:         telego.ModeHTML,
			SupportsStreaming: item.Streaming,
		}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		sent, err = m.bot.SendVideo(ctx, params)
	case media.KindDocument:
		params := &telego.SendDocumentParams{
			ChatID:    tu.ID(chatID),
			Document:  file,
			Caption:   item.Caption,
			ParseMode: telego.ModeHTML,
		}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		sent, err = m.bot.SendDocument(ctx, params)
	default:
		params := &telego.SendPhotoParams{
			ChatID:    tu.ID(chatID),
			Photo:     file,
			Caption:   item.Caption,
			ParseMode: telego.ModeHTML,
		}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		sent, err = m.bot.SendPhoto(ctx, params)
	}
	if err != nil {
		return 0, fmt.Errorf("send %s: %w", item.Kind, err)
	}
	return sent.MessageID, nil
}

func (m *Messenger) EditText(ctx context.Context, ref chat.MessageRef, msg chat.Text) error {
	params := &telego.EditMessageTextParams{
		ChatID:      tu.ID(ref.ChatID),
		MessageID:   ref.MessageID,
		Text:        msg.Body,
		ParseMode:   telego.ModeHTML,
		ReplyMarkup: replyMarkup(msg.Keyboard),
	}
	if msg.DisablePreview {
		params.LinkPreviewOptions = &telego.LinkPreviewOptions{IsDisabled: true}
	}

	if _, err := m.bot.EditMessageText(ctx, params); err != nil {
		return fmt.Errorf("edit message text: %w", err)
	}
	return nil
}

func (m *Messenger) EditCaption(ctx context.Context, ref chat.MessageRef, caption string, kb chat.Keyboard) error {
	_, err := m.bot.EditMessageCaption(ctx, &telego.EditMessageCaptionParams{
		ChatID:      tu.ID(ref.ChatID),
		MessageID:   ref.MessageID,
		Caption:     caption,
		ParseMode:   telego.ModeHTML,
		ReplyMarkup: replyMarkup(kb),
	})
	if err != nil {
		return fmt.Errorf("edit message caption: %w", err)
	}
	return nil
}

func (m *Messenger) EditKeyboard(ctx context.Context, ref chat.MessageRef, kb chat.Keyboard) error {
	_, err := m.bot.EditMessageReplyMarkup(ctx, &telego.EditMessageReplyMarkupParams{
		ChatID:      tu.ID(ref.ChatID),
		MessageID:   ref.MessageID,
		ReplyMarkup: replyMarkup(kb),
	})
	if err != nil {
		return fmt.Errorf("edit message keyboard: %w", err)
	}
	return nil
}

func (m *Messenger) EditMedia(ctx context.Context, ref chat.MessageRef, item chat.Media) error {
	_, err := m.bot.EditMessageMedia(ctx, &telego.EditMessageMediaParams{
		ChatID:      tu.ID(ref.ChatID),
		MessageID:   ref.MessageID,
		Media:       inputMedia(item),
		ReplyMarkup: replyMarkup(item.Keyboard),
	})
	if err != nil {
		return fmt.Errorf("edit message media: %w", err)
	}
	return nil
}

func (m *Messenger) Delete(ctx context.Context, ref chat.MessageRef) error {
	err := m.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(ref.ChatID),
		MessageID: ref.MessageID,
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (m *Messenger) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	err := m.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func (m *Messenger) FileURL(ctx context.Context, fileID string) (string, error) {
	file, err := m.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("get file %s: no download path", fileID)
	}
	return m.bot.FileDownloadURL(file.FilePath), nil
}

func (m *Messenger) SetCommands(ctx context.Context, scope chat.Scope, commands []chat.Command) error {
	botCommands := make([]telego.BotCommand, 0, len(commands))
	for _, c := range commands {
		botCommands = append(botCommands, telego.BotCommand{Command: c.Command, Description: c.Description})
	}

	err := m.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: botCommands,
		Scope:    commandScope(scope),
	})
	if err != nil {
		return fmt.Errorf("set commands for %s: %w", scope.Type, err)
	}
	return nil
}

func commandScope(scope chat.Scope) telego.BotCommandScope {
	switch scope.Type {
	case chat.ScopeAllPrivateChats:
		return &telego.BotCommandScopeAllPrivateChats{Type: string(scope.Type)}
	case chat.ScopeAllGroupChats:
		return &telego.BotCommandScopeAllGroupChats{Type: string(scope.Type)}
	case chat.ScopeAllChatAdmins:
		return &telego.BotCommandScopeAllChatAdministrators{Type: string(scope.Type)}
	case chat.ScopeChat:
		return &telego.BotCommandScopeChat{Type: string(scope.Type), ChatID: tu.ID(scope.ChatID)}
	default:
		return &telego.BotCommandScopeDefault{Type: string(chat.ScopeDefault)}
	}
}

// inlineKeyboard converts kb, returning nil for an empty keyboard.
func inlineKeyboard(kb chat.Keyboard) *telego.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}

	rows := make([][]telego.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]telego.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, telego.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		rows = append(rows, buttons)
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// replyMarkup is inlineKeyboard for edits, where an empty markup removes the keyboard.
func replyMarkup(kb chat.Keyboard) *telego.InlineKeyboardMarkup {
	if markup := inlineKeyboard(kb); markup != nil {
		return markup
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: [][]telego.InlineKeyboardButton{}}
}

func inputFile(source string) telego.InputFile {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return tu.FileFromURL(source)
	}
	return tu.FileFromID(source)
}

func inputMedia(item chat.Media) telego.InputMedia {
	file := inputFile(item.Source)
	switch item.Kind {
	case media.KindVideo:
		return &telego.InputMediaVideo{
			Type:              "video",
			Media:             file,
			Caption:           item.Caption,
			ParseMode:         telego.ModeHTML,
			SupportsStreaming: item.Streaming,
		}
	case media.KindDocument:
		return &telego.InputMediaDocument{
			Type:      "document",
			Media:     file,
			Caption:   item.Caption,
			ParseMode: telego.ModeHTML,
		}
	default:
		return &telego.InputMediaPhoto{
			Type:      "photo",
			Media:     file,
			Caption:   item.Caption,
			ParseMode: telego.ModeHTML,
		}
	}
}
