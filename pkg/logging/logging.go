// Package logging wraps log/slog with the field names used across the
// support point packages.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with support-geometry specific helpers.
type Logger struct {
	*slog.Logger
}

// New creates a Logger with the given handler.
// If handler is nil, a text handler writing to stderr at info level is used.
func New(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewText creates a Logger that writes human-readable text to w.
func NewText(w io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))}
}

// NewJSON creates a Logger that writes JSON records to w.
func NewJSON(w io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))}
}

// Noop returns a Logger that discards everything.
func Noop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))}
}

// OrNoop returns l, or a no-op logger when l is nil.
func OrNoop(l *Logger) *Logger {
	if l == nil {
		return Noop()
	}
	return l
}

// WithComponent tags every record with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

// LogBatch logs the outcome of a batch operation over count items.
func (l *Logger) LogBatch(ctx context.Context, op string, count, skipped int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, op+" failed",
			"count", count,
			"error", err,
		)
	case skipped > 0:
		l.WarnContext(ctx, op+" completed with skipped items",
			"count", count,
			"skipped", skipped,
		)
	default:
		l.DebugContext(ctx, op+" completed",
			"count", count,
		)
	}
}
