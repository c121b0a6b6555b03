package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON structured logger writing to stdout. Components receive
// it through constructor injection; there is no package-level singleton.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
