// Package logger builds the process slog.Logger. Text output goes through charmbracelet/log,
// JSON output through a flat entry encoder. Both carry the per-update trace id stored on the
// context by WithTraceID.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	charmLog "github.com/charmbracelet/log"

	"mediarelay/pkg/config"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// New returns a logger writing to stderr. Environment overrides are already folded into cfg
// by the config loader.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return build(cfg, os.Stderr)
}

func build(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	format, err := resolveFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	level, err := resolveLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var h slog.Handler
	switch format {
	case FormatJSON:
		h = newEntryHandler(w, level, cfg.AddSource)
	default:
		h = charmLog.NewWithOptions(w, charmLog.Options{
			Level:           toCharm(level),
			ReportTimestamp: true,
			ReportCaller:    cfg.AddSource,
			Formatter:       charmLog.TextFormatter,
		})
	}

	return slog.New(traceHandler{next: h}), nil
}

func resolveFormat(raw string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(raw)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported log format %q", raw)
	}
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func resolveLevel(raw string) (slog.Level, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return slog.LevelInfo, nil
	}
	level, ok := levels[name]
	if !ok {
		return 0, fmt.Errorf("unsupported log level %q", raw)
	}
	return level, nil
}

func toCharm(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}
