// Package panel renders inline keyboards and HTML texts.
//
// Keyboards are pure projections of their inputs: the same arguments always yield the same
// keyboard, so re-rendering replaces a panel instead of patching it. Buttons whose token
// would exceed the callback limit are left out.
package panel

import (
	"mediarelay/pkg/catalog"
	"mediarelay/pkg/chat"
	"mediarelay/pkg/token"
)

// AllDirectories is the random-viewer scope covering every directory.
const AllDirectories = "all"

const (
	channelsPerRow    = 3
	directoriesPerRow = 2
)

func button(text string, t token.Token) (chat.Button, bool) {
	data, err := token.Encode(t)
	if err != nil {
		return chat.Button{}, false
	}
	return chat.Button{Text: text, Data: data}, true
}

func rows(buttons []chat.Button, perRow int) chat.Keyboard {
	var kb chat.Keyboard
	for start := 0; start < len(buttons); start += perRow {
		end := min(start+perRow, len(buttons))
		kb = append(kb, buttons[start:end:end])
	}
	return kb
}

func single(text string, t token.Token) []chat.Button {
	if b, ok := button(text, t); ok {
		return []chat.Button{b}
	}
	return nil
}

func appendRow(kb chat.Keyboard, row []chat.Button) chat.Keyboard {
	if len(row) == 0 {
		return kb
	}
	return append(kb, row)
}

// Unified is the upload panel: channel radio buttons, the default directory, the configured
// directories, then cancel and close.
func Unified(channels []catalog.Channel, dirs []string, selected string, batch bool) chat.Keyboard {
	channelButtons := make([]chat.Button, 0, len(channels))
	for _, ch := range channels {
		marker := "⬜ "
		if ch.Code == selected {
			marker = "✅ "
		}
		if b, ok := button(marker+ch.Name, token.Token{Action: token.SwitchChannel, Channel: ch.Code, Batch: batch}); ok {
			channelButtons = append(channelButtons, b)
		}
	}
	kb := rows(channelButtons, channelsPerRow)

	action := token.SingleUpload
	if batch {
		action = token.BatchUpload
	}

	kb = appendRow(kb, single("📂 Default ("+catalog.DefaultDirectory+")", token.Token{Action: action, Directory: catalog.DefaultDirectory, Channel: selected}))

	dirButtons := make([]chat.Button, 0, len(dirs))
	for _, dir := range dirs {
		if b, ok := button(dir, token.Token{Action: action, Directory: dir, Channel: selected}); ok {
			dirButtons = append(dirButtons, b)
		}
	}
	kb = append(kb, rows(dirButtons, directoriesPerRow)...)

	return append(kb, []chat.Button{
		{Text: "❌ Cancel", Data: token.MustEncode(token.Token{Action: token.Cancel, Batch: batch})},
		{Text: "🗑 Close", Data: token.MustEncode(token.Token{Action: token.ClosePanel})},
	})
}

// ModeChoice asks how a media group should be handled.
func ModeChoice() chat.Keyboard {
	return chat.Keyboard{
		{{Text: "📦 Upload together (recommended)", Data: token.MustEncode(token.Token{Action: token.ModeSelect, Mode: token.ModeUnify})}},
		{{Text: "📑 Upload one by one", Data: token.MustEncode(token.Token{Action: token.ModeSelect, Mode: token.ModeSeparate})}},
		{{Text: "❌ Cancel", Data: token.MustEncode(token.Token{Action: token.Cancel, Batch: true})}},
	}
}

func closeRow(correlation string) []chat.Button {
	return single("❌ Close", token.Token{Action: token.ClosePanel, Correlation: correlation})
}

// DirectoryBrowser lists directories to browse. correlation is the command message id.
func DirectoryBrowser(dirs []string, correlation string) chat.Keyboard {
	buttons := make([]chat.Button, 0, len(dirs))
	for _, dir := range dirs {
		if b, ok := button("📂 "+dir, token.Token{Action: token.Browse, Directory: dir, Correlation: correlation}); ok {
			buttons = append(buttons, b)
		}
	}
	return appendRow(rows(buttons, directoriesPerRow), closeRow(correlation))
}

// ListingNav is the navigation under one page of a directory listing.
func ListingNav(dir string, page int, totalPages int, correlation string) chat.Keyboard {
	var nav []chat.Button
	if page > 0 {
		nav = append(nav, single("⬅️ Previous", token.Token{Action: token.Browse, Directory: dir, Page: page - 1, Correlation: correlation})...)
	}
	if page < totalPages-1 {
		nav = append(nav, single("Next ➡️", token.Token{Action: token.Browse, Directory: dir, Page: page + 1, Correlation: correlation})...)
	}

	var kb chat.Keyboard
	kb = appendRow(kb, nav)
	kb = appendRow(kb, single("🔙 Back to directories", token.Token{Action: token.ListRefreshRoot, Correlation: correlation}))
	return appendRow(kb, closeRow(correlation))
}

func randomScope(scope string) string {
	if scope == "" {
		return AllDirectories
	}
	return scope
}

// RandomControls sits under a random pick.
func RandomControls(scope string, correlation string) chat.Keyboard {
	scope = randomScope(scope)
	row := single("📂 Switch directory", token.Token{Action: token.RandomPick, Directory: scope, Correlation: correlation})
	row = append(row, single("🔄 Next", token.Token{Action: token.RandomNext, Directory: scope, Correlation: correlation})...)

	var kb chat.Keyboard
	kb = appendRow(kb, row)
	return appendRow(kb, single("🗑 Close", token.Token{Action: token.ClosePanel, Correlation: correlation}))
}

// RandomRescue replaces the controls when a pick failed.
func RandomRescue(scope string, correlation string) chat.Keyboard {
	var kb chat.Keyboard
	kb = appendRow(kb, single("📂 Switch directory", token.Token{Action: token.RandomPick, Directory: randomScope(scope), Correlation: correlation}))
	return appendRow(kb, single("🗑 Close", token.Token{Action: token.ClosePanel, Correlation: correlation}))
}

// PendingClose is shown while the first random pick is fetched.
func PendingClose(correlation string) chat.Keyboard {
	return appendRow(nil, single("🗑 Close", token.Token{Action: token.ClosePanel, Correlation: correlation}))
}

// RandomDirectories picks the random scope; the current one is marked.
func RandomDirectories(dirs []string, current string, correlation string) chat.Keyboard {
	current = randomScope(current)

	mark := func(selected bool, label string) string {
		if selected {
			return "✅ " + label
		}
		return label
	}

	var kb chat.Keyboard
	kb = appendRow(kb, single(mark(current == AllDirectories, "🌟 All directories"), token.Token{Action: token.RandomSet, Directory: AllDirectories, Correlation: correlation}))

	buttons := make([]chat.Button, 0, len(dirs))
	for _, dir := range dirs {
		if b, ok := button(mark(dir == current, dir), token.Token{Action: token.RandomSet, Directory: dir, Correlation: correlation}); ok {
			buttons = append(buttons, b)
		}
	}
	kb = append(kb, rows(buttons, directoriesPerRow)...)

	return appendRow(kb, single("🔙 Back", token.Token{Action: token.RandomNext, Directory: current, Correlation: correlation}))
}

// Loading is a placeholder keyboard whose only button does nothing.
func Loading() chat.Keyboard {
	return chat.Keyboard{{{Text: "⏳ Loading...", Data: token.MustEncode(token.Token{Action: token.Ignore})}}}
}
