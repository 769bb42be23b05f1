package logging

import (
	"log/slog"
	"os"
	"strings"
)

func New() *slog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel accepts debug, info, warn or error; anything else falls back to info.
func NewWithLevel(level string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(h)
}

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
