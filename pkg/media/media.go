package media

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
)

// Kind is the coarse media class used to pick send and relay behavior.
type Kind string

const (
	KindPhoto    Kind = "photo"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

const (
	defaultURLExtension      = ".jpg"
	defaultDocumentExtension = ".dat"
	namePrefix               = "tg_"
	suffixLength             = 5
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// Ref is one uploadable media item.
//
// SourceID is a platform file id, or the literal source URL when External is set.
type Ref struct {
	SourceID string `json:"source_id"`
	Kind     Kind   `json:"kind"`
	Name     string `json:"name"`
	External bool   `json:"external,omitempty"`
}

// Normalizer converts inbound Telegram messages into media references.
type Normalizer struct {
	now    func() time.Time
	suffix func() string
}

// NewNormalizer returns a normalizer that synthesizes names from the wall clock and random suffixes.
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now, suffix: randomSuffix}
}

var defaultNormalizer = NewNormalizer()

// Normalize extracts a media reference from msg using the default normalizer.
func Normalize(msg *telego.Message) (Ref, bool) {
	return defaultNormalizer.Normalize(msg)
}

// Normalize extracts a media reference from msg.
//
// Priority: largest photo, video or animation, document, then the first URL in text or caption.
func (n *Normalizer) Normalize(msg *telego.Message) (Ref, bool) {
	if msg == nil {
		return Ref{}, false
	}

	switch {
	case len(msg.Photo) > 0:
		return Ref{
			SourceID: largestPhoto(msg.Photo).FileID,
			Kind:     KindPhoto,
			Name:     n.baseName() + ".jpg",
		}, true
	case msg.Video != nil:
		return Ref{SourceID: msg.Video.FileID, Kind: KindVideo, Name: n.baseName() + ".mp4"}, true
	case msg.Animation != nil:
		return Ref{SourceID: msg.Animation.FileID, Kind: KindVideo, Name: n.baseName() + ".mp4"}, true
	case msg.Document != nil:
		name := strings.TrimSpace(msg.Document.FileName)
		if name == "" {
			name = n.baseName() + defaultDocumentExtension
		}
		return Ref{SourceID: msg.Document.FileID, Kind: KindDocument, Name: name}, true
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	link := FindURL(text)
	if link == "" {
		return Ref{}, false
	}

	return Ref{
		SourceID: link,
		Kind:     KindPhoto,
		Name:     n.nameFromURL(link),
		External: true,
	}, true
}

// FindURL returns the first http(s) URL in text, or an empty string.
func FindURL(text string) string {
	return urlPattern.FindString(text)
}

// nameFromURL infers a filename from a URL path, then from its format query parameter.
func (n *Normalizer) nameFromURL(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return n.baseName() + defaultURLExtension
	}

	if last := path.Base(parsed.Path); strings.Contains(last, ".") && last != "." && last != ".." {
		return last
	}

	if format := strings.TrimSpace(parsed.Query().Get("format")); format != "" {
		return n.baseName() + "." + strings.TrimPrefix(format, ".")
	}

	return n.baseName() + defaultURLExtension
}

func (n *Normalizer) baseName() string {
	return namePrefix + strconv.FormatInt(n.now().UnixMilli(), 10) + "_" + n.suffix()
}

func largestPhoto(sizes []telego.PhotoSize) telego.PhotoSize {
	best := sizes[len(sizes)-1]
	for _, size := range sizes {
		if size.Width*size.Height > best.Width*best.Height {
			best = size
		}
	}

	return best
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLength]
}
