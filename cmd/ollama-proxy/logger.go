package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx/fxevent"

	"ollama-proxy-go/internal/config"
)

// newLogger writes to stderr so stdout stays free for piping.
func newLogger(cfg *config.Config) *slog.Logger {
	return buildLogger(os.Stderr, cfg.Log)
}

func buildLogger(w io.Writer, lc config.LogConfig) *slog.Logger {
	var level slog.Level
	// Validated at load time; an unknown value leaves the zero level, info.
	_ = level.UnmarshalText([]byte(lc.Level))

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// fxLogger routes fx lifecycle events through the application logger at
// debug level, keeping startup quiet by default.
func fxLogger(logger *slog.Logger) fxevent.Logger {
	l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
	l.UseLogLevel(slog.LevelDebug)
	return l
}
