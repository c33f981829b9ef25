// Package log configures the process-wide slog logger.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Setup installs the default logger with the given level and output format.
// Unknown levels fall back to info; format "json" selects the JSON handler,
// anything else the text handler.
func Setup(logLevel string, format ...string) {
	slog.SetDefault(New(os.Stderr, logLevel, format...))
}

// New builds a logger writing to w without touching the default logger.
func New(w io.Writer, logLevel string, format ...string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(logLevel)}

	if len(format) > 0 && format[0] == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func ParseLevel(logLevel string) slog.Level {
	switch logLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
