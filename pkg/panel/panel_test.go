package panel

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/pkg/catalog"
	"mediarelay/pkg/chat"
	"mediarelay/pkg/media"
	"mediarelay/pkg/storage"
	"mediarelay/pkg/token"
	"mediarelay/pkg/upload"
)

var testChannels = []catalog.Channel{
	{Name: "TG", Code: "telegram"},
	{Name: "HF", Code: "huggingface|main"},
	{Name: "R2", Code: "cfr2"},
	{Name: "S3", Code: "s3"},
}

func decodeAll(kb chat.Keyboard) [][]token.Token {
	out := make([][]token.Token, 0, len(kb))
	for _, row := range kb {
		decoded := make([]token.Token, 0, len(row))
		for _, b := range row {
			decoded = append(decoded, token.Decode(b.Data))
		}
		out = append(out, decoded)
	}
	return out
}

func TestUnifiedLayout(t *testing.T) {
	kb := Unified(testChannels, []string{"memes", "wallpapers", "misc"}, "huggingface|main", true)

	require.Len(t, kb, 6)
	assert.Len(t, kb[0], 3)
	assert.Len(t, kb[1], 1)
	assert.Equal(t, "⬜ TG", kb[0][0].Text)
	assert.Equal(t, "✅ HF", kb[0][1].Text)

	tokens := decodeAll(kb)
	assert.Equal(t, token.Token{Action: token.SwitchChannel, Channel: "cfr2", Batch: true}, tokens[0][2])
	assert.Equal(t, token.Token{Action: token.BatchUpload, Directory: "default", Channel: "huggingface|main"}, tokens[2][0])
	assert.Len(t, kb[3], 2)
	assert.Len(t, kb[4], 1)
	assert.Equal(t, token.Token{Action: token.BatchUpload, Directory: "misc", Channel: "huggingface|main"}, tokens[4][0])
	assert.Equal(t, token.Cancel, tokens[5][0].Action)
	assert.True(t, tokens[5][0].Batch)
	assert.Equal(t, token.ClosePanel, tokens[5][1].Action)
}

func TestUnifiedReselectionIsIdempotent(t *testing.T) {
	dirs := []string{"memes", "wallpapers"}

	before := Unified(testChannels, dirs, "telegram", false)
	after := Unified(testChannels, dirs, "telegram", false)

	assert.True(t, reflect.DeepEqual(before, after))
}

func TestUnifiedSkipsOversizedDirectories(t *testing.T) {
	long := strings.Repeat("d", token.MaxLength)
	kb := Unified(testChannels[:1], []string{long, "ok"}, "telegram", false)

	for _, row := range kb {
		for _, b := range row {
			assert.NotEqual(t, long, b.Text)
		}
	}
}

func TestListingNav(t *testing.T) {
	tokens := decodeAll(ListingNav("memes", 1, 3, "42"))

	require.Len(t, tokens, 3)
	assert.Equal(t, token.Token{Action: token.Browse, Directory: "memes", Page: 0, Correlation: "42"}, tokens[0][0])
	assert.Equal(t, token.Token{Action: token.Browse, Directory: "memes", Page: 2, Correlation: "42"}, tokens[0][1])
	assert.Equal(t, token.Token{Action: token.ListRefreshRoot, Correlation: "42"}, tokens[1][0])
	assert.Equal(t, token.Token{Action: token.ClosePanel, Correlation: "42"}, tokens[2][0])

	assert.Len(t, ListingNav("memes", 0, 1, ""), 2)
}

func TestRandomDirectoriesMarksCurrent(t *testing.T) {
	kb := RandomDirectories([]string{"memes", "clips"}, "clips", "7")

	assert.Equal(t, "🌟 All directories", kb[0][0].Text)
	assert.Equal(t, "✅ clips", kb[1][1].Text)
	assert.Equal(t, token.Token{Action: token.RandomNext, Directory: "clips", Correlation: "7"}, token.Decode(kb[2][0].Data))

	kb = RandomDirectories(nil, "", "")
	assert.Equal(t, "✅ 🌟 All directories", kb[0][0].Text)
}

func TestBatchReportAttributesFailures(t *testing.T) {
	report := upload.Report{
		Directory: "memes",
		Channel:   "telegram",
		Items: []upload.Outcome{
			{Ref: media.Ref{Name: "a.jpg"}, Result: storage.Result{AccessURL: "https://cdn/a.jpg"}},
			{Ref: media.Ref{Name: "<b>.jpg"}, Err: errors.New("status 500")},
			{Ref: media.Ref{Name: "c.jpg"}, Result: storage.Result{AccessURL: "https://cdn/c.jpg"}},
		},
		Succeeded: 2,
		Failed:    1,
	}

	text := BatchReport(report, "TG")

	assert.Contains(t, text, "<b>2. &lt;b&gt;.jpg</b> ❌ Failed: status 500")
	assert.Contains(t, text, `<a href="https://cdn/c.jpg">`)
	assert.Contains(t, text, "Succeeded: 2 | Failed: 1")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "1.5 MB", FormatSize(1.5*1024*1024))
	assert.Equal(t, ">PB", FormatSize(math1024(6)))
}

func math1024(power int) float64 {
	v := 1.0
	for range power {
		v *= 1024
	}
	return v
}

func TestFormatTimestamp(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*60*60)

	assert.Equal(t, "Unknown Time", FormatTimestamp(time.Time{}, loc))
	assert.Equal(t, "2023-11-15 06:13:20", FormatTimestamp(time.UnixMilli(1700000000000), loc))
}

func TestListingRendersEntries(t *testing.T) {
	page := ListingPage{
		Directory: "memes",
		Page:      1,
		PageSize:  6,
		Listing: storage.Listing{TotalCount: 7, Files: []storage.File{
			{Name: "memes/cat.png", Metadata: map[string]any{"FileSizeBytes": float64(2048), "Channel": "huggingface|main"}},
		}},
		Channels:  testChannels,
		Location:  time.UTC,
		OriginURL: func(path string) string { return "https://img.example.com/file/" + path },
		AccessURL: func(origin string) string { return strings.Replace(origin, "img.", "cdn.", 1) },
	}

	text := Listing(page)

	assert.Contains(t, text, "Page: 2 / 2 (7 files)")
	assert.Contains(t, text, `<b>7. 🖼 <a href="https://cdn.example.com/file/memes/cat.png">cat.png</a></b>`)
	assert.Contains(t, text, "<code>HF</code>")
	assert.Contains(t, text, "<code>2 KB</code>")
	assert.Contains(t, text, "<code>UNKNOWN</code>")
}

func TestInfoTextTruncatesRawJSON(t *testing.T) {
	text := InfoText(Info{
		MessageID: 9,
		Date:      time.Unix(0, 0),
		Media:     &media.Ref{SourceID: "file-1", Kind: media.KindPhoto, Name: "a.jpg"},
		Raw:       map[string]string{"text": strings.Repeat("x", 4000)},
	}, time.UTC)

	assert.Contains(t, text, "<code>9</code>")
	assert.Contains(t, text, "<code>a.jpg</code>")
	assert.Contains(t, text, "...(truncated)")
}

func TestRandomPickDetectsVideo(t *testing.T) {
	m := RandomPick("https://img.example.com/file/clip.MOV?x=1", "all", "3")

	assert.Equal(t, media.KindVideo, m.Kind)
	assert.True(t, m.Streaming)
	assert.Contains(t, m.Caption, "<code>All</code>")

	m = RandomPick("https://img.example.com/file/cat.png", "memes", "")
	assert.Equal(t, media.KindPhoto, m.Kind)
	assert.False(t, m.Streaming)
}

func TestSingleUploadPreselectsFirstChannel(t *testing.T) {
	m := SingleUpload(media.Ref{SourceID: "https://x.example/a.png", Kind: media.KindPhoto, Name: "a.png", External: true}, testChannels, nil)

	assert.Equal(t, "https://x.example/a.png", m.Source)
	assert.Equal(t, "✅ TG", m.Keyboard[0][0].Text)
	assert.Equal(t, token.Token{Action: token.SingleUpload, Directory: "default", Channel: "telegram"}, token.Decode(m.Keyboard[2][0].Data))
}
