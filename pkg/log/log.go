// Package log configures structured logging for maestro binaries.
package log

import (
	"log/slog"
	"os"
)

// Setup installs the process-wide default logger writing text records to
// stderr at the given level. Unknown levels fall back to info.
func Setup(logLevel string) {
	slog.SetDefault(New(logLevel))
}

// New builds a logger at the given level without touching the default.
func New(logLevel string) *slog.Logger {
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// WithModule returns the default logger tagged with a module attribute.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
