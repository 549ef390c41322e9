// Package catalog provides the upload channels and directories offered on panels.
//
// Lists are read on every call. Nothing here caches, so edits to the environment show up on
// the next button press.
package catalog

import (
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	"mediarelay/pkg/config"
	"mediarelay/pkg/token"
)

const (
	EnvChannelList   = "MEDIARELAY_CHANNEL_LIST"
	EnvDirectoryList = "MEDIARELAY_DIR_LIST"

	// DefaultChannelCode is used when no channel is configured at all.
	DefaultChannelCode = "telegram"
	// DefaultDirectory is always offered on upload panels, ahead of the configured list.
	DefaultDirectory = "default"
)

// Channel is one storage channel: the label shown on buttons and the code sent upstream.
// Code is "provider" or "provider|subchannel".
type Channel struct {
	Name string
	Code string
}

// Source yields the current channel and directory lists.
type Source interface {
	Channels() []Channel
	Directories() []string
}

// ParseChannels parses "Name:provider[:sub],..." entries. A bare "Name" uses the name as the
// provider. Entries whose code cannot travel in a callback token are dropped.
func ParseChannels(raw string) []Channel {
	channels := make([]Channel, 0)
	for _, item := range config.ParseCSV(raw) {
		parts := strings.Split(item, ":")
		name := strings.TrimSpace(parts[0])
		provider := name
		if len(parts) > 1 {
			provider = strings.TrimSpace(parts[1])
		}
		code := provider
		if len(parts) > 2 {
			if sub := strings.TrimSpace(parts[2]); sub != "" {
				code = provider + "|" + sub
			}
		}
		if name == "" || len(parts) > 3 || !token.ValidChannel(code) {
			continue
		}
		channels = append(channels, Channel{Name: name, Code: code})
	}
	return channels
}

// ParseDirectories parses a comma-separated directory list, dropping entries that contain
// the token separator.
func ParseDirectories(raw string) []string {
	dirs := make([]string, 0)
	for _, dir := range config.ParseCSV(raw) {
		if !token.ValidSegment(dir) {
			continue
		}
		dirs = append(dirs, dir)
	}
	return dirs
}

// EnvSource reads the lists from the environment on every call and falls back to the
// config file values.
type EnvSource struct {
	cfg config.CatalogConfig
	log *slog.Logger
}

var _ Source = (*EnvSource)(nil)

// envLists mirrors EnvChannelList and EnvDirectoryList.
type envLists struct {
	Channels    string `env:"MEDIARELAY_CHANNEL_LIST"`
	Directories string `env:"MEDIARELAY_DIR_LIST"`
}

func NewEnvSource(cfg config.CatalogConfig, log *slog.Logger) *EnvSource {
	if log == nil {
		log = slog.Default()
	}
	return &EnvSource{
		cfg: cfg,
		log: log.With("component", "catalog.env"),
	}
}

// current parses the environment afresh. Blank variables fall back to the config values.
func (s *EnvSource) current() envLists {
	var lists envLists
	if err := env.Parse(&lists); err != nil {
		s.log.Warn("Reading catalog environment failed, using config values", "error", err)
		lists = envLists{}
	}
	if strings.TrimSpace(lists.Channels) == "" {
		lists.Channels = s.cfg.Channels
	}
	if strings.TrimSpace(lists.Directories) == "" {
		lists.Directories = s.cfg.Directories
	}
	return lists
}

// Channels never returns an empty list; without configuration it offers the telegram provider.
func (s *EnvSource) Channels() []Channel {
	raw := s.current().Channels
	channels := ParseChannels(raw)
	if len(channels) == 0 {
		s.log.Warn("No usable channels configured, using default", "raw", raw)
		return []Channel{{Name: "TG", Code: DefaultChannelCode}}
	}
	return channels
}

func (s *EnvSource) Directories() []string {
	return ParseDirectories(s.current().Directories)
}

// Static is a fixed Source.
type Static struct {
	ChannelList   []Channel
	DirectoryList []string
}

func (s Static) Channels() []Channel   { return s.ChannelList }
func (s Static) Directories() []string { return s.DirectoryList }

// DefaultChannel returns the code preselected on new panels.
func DefaultChannel(channels []Channel) string {
	if len(channels) == 0 {
		return DefaultChannelCode
	}
	return channels[0].Code
}

// ChannelName returns the configured label of code, or code itself.
func ChannelName(channels []Channel, code string) string {
	for _, ch := range channels {
		if ch.Code == code {
			return ch.Name
		}
	}
	return code
}

// DisplayChannel labels a channel reported by the storage listing. Configured channels are
// matched case-insensitively on their code, telegram variants collapse to "TG", and anything
// else is shown upper-cased.
func DisplayChannel(channels []Channel, raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		lower = DefaultChannelCode
	}
	for _, ch := range channels {
		if strings.ToLower(ch.Code) == lower {
			return ch.Name
		}
	}
	if strings.Contains(lower, "telegram") {
		return "TG"
	}
	return strings.ToUpper(lower)
}
