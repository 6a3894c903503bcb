package logger

import (
	"log/slog"
	"os"
)

// New returns the root structured logger. Services receive it via options and
// must tolerate a nil logger (see service constructors).
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
