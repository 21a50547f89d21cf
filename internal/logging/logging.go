// Package logging builds the logger used by the command line tool.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New returns a logger writing to w. Level is one of DEBUG, INFO, WARN or
// ERROR, defaulting to INFO. Format "json" selects the JSON handler, anything
// else the text handler.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel converts a level name. Unknown names are [slog.LevelInfo].
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
