package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the service logger. The secretariat gateway ships stdout
// to the log pipeline, which expects JSON lines in production; "pretty" (the
// dev default) stays human readable.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "parcerias"))
}
