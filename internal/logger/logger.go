// Package logger configures the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// L is the process logger. It is replaced by Init.
var L = slog.Default()

// Init builds the process logger from a level ("debug", "info", "warn", "error")
// and a format ("text" or "json"), writing to stderr.
func Init(level, format string) {
	L = New(os.Stderr, level, format)
	slog.SetDefault(L)
}

// New builds a logger writing to w.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
