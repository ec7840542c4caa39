package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON structured logger writing to stdout. The level can be
// lowered to debug with SOLICITUDES_LOG_LEVEL=debug.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("SOLICITUDES_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
