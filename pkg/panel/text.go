package panel

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"mediarelay/pkg/catalog"
	"mediarelay/pkg/media"
	"mediarelay/pkg/storage"
	"mediarelay/pkg/upload"
)

const (
	divider       = "━━━━━━━━━━━━━━━"
	rawJSONLimit  = 3000
	timestampForm = "2006-01-02 15:04:05"
)

// Escape makes s safe inside HTML parse mode.
func Escape(s string) string {
	return html.EscapeString(s)
}

const (
	SinglePrompt     = "⚙️ <b>Upload settings</b>\nPick a directory to upload to:"
	BatchPrompt      = "📚 <b>Received a media group</b>\nChoose how to handle it:"
	BatchUnifyPrompt = "📦 <b>[Batch]</b> Confirm the channel and pick a directory:"
	SeparatedNotice  = "📑 Switched to one-by-one mode, see the new messages below."
	BrowserPrompt    = "📂 <b>File manager</b>\nPick a directory to browse:"
	RandomPending    = "⏳ <b>Picking a random file...</b>"
	RandomPickPrompt = "📂 <b>Pick the random scope:</b>"
	NoBatchFiles     = "❌ No files found for this group."
	MediaExpired     = "❌ File information expired."
	NoDirectories    = "❌ No directories configured."

	CommandsRefreshing = "🔄 Refreshing the command menu..."
	CommandsRefreshed  = "✅ <b>Command menu refreshed.</b>\n\nIf the menu did not change, restart the Telegram app or reopen this chat."
	ResetPending       = "⏳ Resetting upload state..."
)

// CommandsFailed reports a failed command menu refresh.
func CommandsFailed(err error) string {
	return "❌ Some command menus were not updated: " + Escape(err.Error())
}

// Uploading is shown while a single item or batch is relayed.
func Uploading(directory string, channelName string, batch bool) string {
	what := "Uploading"
	if batch {
		what = "Uploading batch"
	}
	return fmt.Sprintf("⏳ %s to <code>%s</code>\n📡 Channel: <code>%s</code>...", what, Escape(directory), Escape(channelName))
}

// SingleSuccess reports one relayed file.
func SingleSuccess(directory string, channelName string, result storage.Result) string {
	var b strings.Builder
	b.WriteString("✅ <b>Upload succeeded!</b>\n\n")
	fmt.Fprintf(&b, "📂 Directory: <code>%s</code>\n", Escape(directory))
	fmt.Fprintf(&b, "📡 Channel: <code>%s</code>\n\n", Escape(channelName))
	fmt.Fprintf(&b, "🏠 <b>Origin</b>: <code>%s</code>\n", Escape(result.OriginURL))
	fmt.Fprintf(&b, "🚀 <b>Link</b>: <code>%s</code>", Escape(result.AccessURL))
	return b.String()
}

// SingleFailure reports a failed relay with the provider detail.
func SingleFailure(err error) string {
	return "❌ <b>Upload failed</b>: " + Escape(err.Error())
}

// BatchReport renders an aggregated batch result, one entry per item in input order.
func BatchReport(report upload.Report, channelName string) string {
	var b strings.Builder
	b.WriteString("✅ <b>Batch upload finished</b>\n")
	fmt.Fprintf(&b, "📂 <b>Directory:</b> %s\n", Escape(report.Directory))
	fmt.Fprintf(&b, "📡 <b>Channel:</b> %s\n", Escape(channelName))
	b.WriteString(divider + "\n")

	for i, item := range report.Items {
		name := Escape(item.Ref.Name)
		if item.Err != nil {
			fmt.Fprintf(&b, "<b>%d. %s</b> ❌ Failed: %s\n\n", i+1, name, Escape(item.Err.Error()))
			continue
		}
		fmt.Fprintf(&b, "<b>%d. %s</b>\n<a href=\"%s\">🔗 Open or copy</a>\n\n", i+1, name, Escape(item.Result.AccessURL))
	}

	fmt.Fprintf(&b, "📊 Succeeded: %d | Failed: %d", report.Succeeded, report.Failed)
	return b.String()
}

// ChannelSwitched is the toast after a channel press.
func ChannelSwitched(name string) string {
	return "Switched to: " + name
}

// FormatSize renders bytes with binary units and at most two decimals.
func FormatSize(bytes float64) string {
	if math.IsNaN(bytes) || bytes <= 0 {
		return "0 B"
	}

	units := []string{"B", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(bytes) / math.Log(1024)))
	if i < 0 {
		i = 0
	}
	if i >= len(units) {
		return ">PB"
	}

	value := math.Round(bytes/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + units[i]
}

// FormatTimestamp renders t in loc, or "Unknown Time" for the zero time.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "Unknown Time"
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(timestampForm)
}

func fileIcon(name string) string {
	switch media.Extension(name) {
	case "jpg", "jpeg", "png", "gif", "webp", "bmp":
		return "🖼"
	case "mp4", "mov", "webm", "mkv":
		return "📹"
	case "zip", "rar", "7z", "tar", "gz":
		return "📦"
	default:
		return "📄"
	}
}

// ListingPage describes one rendered page of a directory listing.
type ListingPage struct {
	Directory string
	Page      int
	PageSize  int
	Listing   storage.Listing
	Channels  []catalog.Channel
	Location  *time.Location
	// OriginURL and AccessURL map a stored path to its links.
	OriginURL func(path string) string
	AccessURL func(origin string) string
}

// TotalPages is at least one so an empty directory still renders page 1/1.
func (p ListingPage) TotalPages() int {
	if p.PageSize <= 0 {
		return 1
	}
	return max(1, (p.Listing.TotalCount+p.PageSize-1)/p.PageSize)
}

// Listing renders one page of files.
func Listing(p ListingPage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📂 <b>Directory: %s</b>\n", Escape(p.Directory))
	fmt.Fprintf(&b, "📄 Page: %d / %d (%d files)\n%s\n", p.Page+1, p.TotalPages(), p.Listing.TotalCount, divider)

	if len(p.Listing.Files) == 0 {
		b.WriteString("\n📭 This directory is empty.\n")
	}

	start := p.Page * p.PageSize
	for i, file := range p.Listing.Files {
		origin := p.OriginURL(file.Name)
		access := p.AccessURL(origin)
		name := file.BaseName()

		fmt.Fprintf(&b, "\n<b>%d. %s <a href=\"%s\">%s</a></b>", start+i+1, fileIcon(name), Escape(access), Escape(name))
		fmt.Fprintf(&b, "\n└ 🕒 <code>%s</code> · 📡 <code>%s</code> · 📏 <code>%s</code>",
			FormatTimestamp(file.Timestamp(), p.Location),
			Escape(catalog.DisplayChannel(p.Channels, file.ChannelCode())),
			FormatSize(file.SizeBytes()))
		fmt.Fprintf(&b, "\n└ 🔗 <a href=\"%s\">Origin</a> · 📂 <code>%s</code>\n", Escape(origin), Escape(file.Directory()))
	}

	return b.String()
}

// ListingFailure reports a failed listing.
func ListingFailure(err error) string {
	return "❌ Failed to load the listing: " + Escape(err.Error())
}

func scopeLabel(scope string) string {
	if scope == "" || scope == AllDirectories {
		return "All"
	}
	return scope
}

// RandomCaption is the caption of a random pick.
func RandomCaption(scope string) string {
	return fmt.Sprintf("🎲 <b>Random pick</b>\n\n📂 Scope: <code>%s</code>", Escape(scopeLabel(scope)))
}

// RandomSwitching is shown while a new scope loads.
func RandomSwitching(scope string) string {
	return fmt.Sprintf("⏳ <b>Switching directory...</b>\n\n📂 Target: <code>%s</code>\n📡 Fetching...", Escape(scopeLabel(scope)))
}

// RandomFailure reports a failed pick.
func RandomFailure(err error) string {
	return fmt.Sprintf("❌ <b>Pick failed</b>: %s\nTry another directory or retry.", Escape(err.Error()))
}

// ResetDone reports how many coordination keys were removed.
func ResetDone(count int) string {
	return fmt.Sprintf("✅ Upload state reset.\n🗑 Removed %d cached entries.", count)
}

// ResetFailed reports a reset that stopped early.
func ResetFailed(err error) string {
	return "❌ Reset failed: " + Escape(err.Error())
}

// Info describes a message for the /info command.
type Info struct {
	MessageID int
	Date      time.Time
	Media     *media.Ref
	Raw       any
}

// InfoText renders message metadata with a truncated raw JSON dump.
func InfoText(info Info, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("ℹ️ <b>Message metadata</b>\n\n")
	fmt.Fprintf(&b, "🆔 <b>Msg ID:</b> <code>%d</code>\n", info.MessageID)
	fmt.Fprintf(&b, "📅 <b>Date:</b> <code>%s</code>\n", FormatTimestamp(info.Date, loc))
	if info.Media != nil {
		fmt.Fprintf(&b, "📎 <b>File Name:</b> <code>%s</code>\n", Escape(info.Media.Name))
		fmt.Fprintf(&b, "🔑 <b>File ID:</b> <code>%s</code>\n", Escape(info.Media.SourceID))
		fmt.Fprintf(&b, "📂 <b>Type:</b> <code>%s</code>\n", Escape(string(info.Media.Kind)))
	}

	raw, err := json.MarshalIndent(info.Raw, "", "  ")
	if err != nil {
		raw = []byte(err.Error())
	}
	dump := string(raw)
	if len(dump) > rawJSONLimit {
		dump = truncateUTF8(dump, rawJSONLimit) + "...(truncated)"
	}
	fmt.Fprintf(&b, "\n📋 <b>Raw JSON:</b>\n<pre><code class=\"language-json\">%s</code></pre>", Escape(dump))

	return b.String()
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
