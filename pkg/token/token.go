// Package token encodes the interaction state carried by inline buttons.
//
// A token is the only server-visible state of a button press. The wire form is a short
// prefix followed by colon-separated positional segments, bounded by MaxLength bytes.
// Prefixes are the version namespace: a changed layout gets a new prefix, and prefixes
// this build does not know decode to Ignore.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxLength is the Telegram callback_data limit in bytes.
const MaxLength = 64

// MaxPage is the highest listing page a token may carry. Larger values decode as Ignore.
const MaxPage = 99999

const (
	separator        = ":"
	channelSeparator = "|"
)

var (
	ErrTooLong      = errors.New("token exceeds callback data limit")
	ErrInvalidField = errors.New("token field contains a reserved character or is empty")
)

// Action is the decoded state-machine input of a button press.
type Action uint8

const (
	Ignore Action = iota
	SwitchChannel
	ModeSelect
	SingleUpload
	BatchUpload
	Cancel
	ClosePanel
	RandomNext
	RandomPick
	RandomSet
	Browse
	ListRefreshRoot
)

var actionNames = map[Action]string{
	Ignore:          "ignore",
	SwitchChannel:   "switch_channel",
	ModeSelect:      "mode_select",
	SingleUpload:    "single_upload",
	BatchUpload:     "batch_upload",
	Cancel:          "cancel",
	ClosePanel:      "close_panel",
	RandomNext:      "random_next",
	RandomPick:      "random_pick",
	RandomSet:       "random_set",
	Browse:          "browse",
	ListRefreshRoot: "list_refresh_root",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}

	return "action(" + strconv.Itoa(int(a)) + ")"
}

// Mode is the batch handling choice offered by a group panel.
type Mode string

const (
	ModeUnify    Mode = "unify"
	ModeSeparate Mode = "separate"
)

// Token is the tagged interaction state. Only the fields used by Action are encoded.
type Token struct {
	Action      Action
	Directory   string
	Channel     string
	Batch       bool
	Mode        Mode
	Page        int
	Correlation string
}

type field uint8

const (
	fieldDirectory field = iota
	fieldChannel
	fieldBatch
	fieldMode
	fieldPage
	fieldCorrelation
)

type layout struct {
	prefix   string
	fields   []field
	required map[field]bool
}

var layouts = map[Action]layout{
	Ignore:          {prefix: "ig"},
	SwitchChannel:   {prefix: "sc", fields: []field{fieldChannel, fieldBatch}, required: requiredSet(fieldChannel)},
	ModeSelect:      {prefix: "md", fields: []field{fieldMode}},
	SingleUpload:    {prefix: "up", fields: []field{fieldDirectory, fieldChannel}, required: requiredSet(fieldDirectory, fieldChannel)},
	BatchUpload:     {prefix: "bu", fields: []field{fieldDirectory, fieldChannel}, required: requiredSet(fieldDirectory, fieldChannel)},
	Cancel:          {prefix: "cx", fields: []field{fieldBatch}},
	ClosePanel:      {prefix: "cp", fields: []field{fieldCorrelation}},
	RandomNext:      {prefix: "rn", fields: []field{fieldDirectory, fieldCorrelation}},
	RandomPick:      {prefix: "rp", fields: []field{fieldDirectory, fieldCorrelation}},
	RandomSet:       {prefix: "rs", fields: []field{fieldDirectory, fieldCorrelation}, required: requiredSet(fieldDirectory)},
	Browse:          {prefix: "br", fields: []field{fieldDirectory, fieldPage, fieldCorrelation}, required: requiredSet(fieldDirectory)},
	ListRefreshRoot: {prefix: "lr", fields: []field{fieldCorrelation}},
}

var actionsByPrefix = func() map[string]Action {
	index := make(map[string]Action, len(layouts))
	for action, l := range layouts {
		index[l.prefix] = action
	}
	return index
}()

func requiredSet(fields ...field) map[field]bool {
	set := make(map[field]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// Encode renders t into its wire form.
func Encode(t Token) (string, error) {
	l, ok := layouts[t.Action]
	if !ok {
		return "", fmt.Errorf("encode %s: unknown action", t.Action)
	}

	segments := make([]string, 0, len(l.fields)+1)
	segments = append(segments, l.prefix)
	for _, f := range l.fields {
		value, err := encodeField(f, t)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", t.Action, err)
		}
		if value == "" && l.required[f] {
			return "", fmt.Errorf("encode %s: %w", t.Action, ErrInvalidField)
		}
		segments = append(segments, value)
	}

	data := strings.Join(segments, separator)
	if len(data) > MaxLength {
		return "", fmt.Errorf("encode %s (%d bytes): %w", t.Action, len(data), ErrTooLong)
	}

	return data, nil
}

// MustEncode is Encode for tokens built from constants; it panics on error.
func MustEncode(t Token) string {
	data, err := Encode(t)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode parses wire data. It never fails: anything it cannot parse exactly is Ignore.
func Decode(data string) Token {
	if data == "" || len(data) > MaxLength {
		return Token{Action: Ignore}
	}

	segments := strings.Split(data, separator)
	action, ok := actionsByPrefix[segments[0]]
	if !ok {
		return Token{Action: Ignore}
	}

	l := layouts[action]
	if len(segments)-1 != len(l.fields) {
		return Token{Action: Ignore}
	}

	t := Token{Action: action}
	for i, f := range l.fields {
		value := segments[i+1]
		if value == "" && l.required[f] {
			return Token{Action: Ignore}
		}
		if !decodeField(f, value, &t) {
			return Token{Action: Ignore}
		}
	}

	return t
}

func encodeField(f field, t Token) (string, error) {
	switch f {
	case fieldDirectory:
		if !validSegment(t.Directory) {
			return "", ErrInvalidField
		}
		return t.Directory, nil
	case fieldChannel:
		if t.Channel != "" && !validChannel(t.Channel) {
			return "", ErrInvalidField
		}
		return t.Channel, nil
	case fieldBatch:
		if t.Batch {
			return "b", nil
		}
		return "s", nil
	case fieldMode:
		switch t.Mode {
		case ModeUnify:
			return "u", nil
		case ModeSeparate:
			return "s", nil
		default:
			return "", ErrInvalidField
		}
	case fieldPage:
		if t.Page < 0 || t.Page > MaxPage {
			return "", ErrInvalidField
		}
		return strconv.Itoa(t.Page), nil
	case fieldCorrelation:
		if !validCorrelation(t.Correlation) {
			return "", ErrInvalidField
		}
		return t.Correlation, nil
	default:
		return "", ErrInvalidField
	}
}

func decodeField(f field, value string, t *Token) bool {
	switch f {
	case fieldDirectory:
		t.Directory = value
		return true
	case fieldChannel:
		if value != "" && !validChannel(value) {
			return false
		}
		t.Channel = value
		return true
	case fieldBatch:
		switch value {
		case "b":
			t.Batch = true
		case "s":
			t.Batch = false
		default:
			return false
		}
		return true
	case fieldMode:
		switch value {
		case "u":
			t.Mode = ModeUnify
		case "s":
			t.Mode = ModeSeparate
		default:
			return false
		}
		return true
	case fieldPage:
		page, err := strconv.Atoi(value)
		if err != nil || page < 0 || page > MaxPage || strconv.Itoa(page) != value {
			return false
		}
		t.Page = page
		return true
	case fieldCorrelation:
		if !validCorrelation(value) {
			return false
		}
		t.Correlation = value
		return true
	default:
		return false
	}
}

// ValidSegment reports whether value can travel as a directory segment.
func ValidSegment(value string) bool {
	return validSegment(value)
}

func validSegment(value string) bool {
	return !strings.Contains(value, separator)
}

// ValidChannel reports whether value is "provider" or "provider|subchannel" without reserved characters.
func ValidChannel(value string) bool {
	return validChannel(value)
}

func validChannel(value string) bool {
	if !validSegment(value) {
		return false
	}

	parts := strings.Split(value, channelSeparator)
	if len(parts) > 2 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
	}

	return true
}

func validCorrelation(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
