// Package logging builds the process-wide structured logger. Every binary
// in this repo logs JSON lines to stdout so entries can be shipped as-is.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON slog logger at the given level, tagged with the
// emitting process name so merged API and pipeline log streams stay
// attributable to their source.
func New(level, service string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
	})
	return slog.New(h).With(slog.String("service", service))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
