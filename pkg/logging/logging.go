// Package logging builds the structured loggers used across the engine.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Options controls handler construction.
type Options struct {
	Level     slog.Level
	NoColor   bool
	AddSource bool
}

// New returns a colorized slog logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      opts.Level,
		TimeFormat: time.RFC3339,
		AddSource:  opts.AddSource,
		NoColor:    opts.NoColor,
	}))
}

// Default returns an Info-level logger on stderr.
func Default() *slog.Logger {
	return New(os.Stderr, Options{Level: slog.LevelInfo})
}
