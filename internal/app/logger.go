package app

import (
	"io"
	"log/slog"
	"strings"
)

// newLogger builds the app's slog.Logger. It never touches the global
// default, so each App instance logs in isolation.
func newLogger(levelStr, formatStr string, errW io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(formatStr, "json") {
		handler = slog.NewJSONHandler(errW, opts)
	} else {
		handler = slog.NewTextHandler(errW, opts)
	}
	return slog.New(handler)
}
