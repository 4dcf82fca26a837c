// Package logging builds the study's slog loggers.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// New creates a logger writing to w. Unknown levels fall back to info and
// any format other than "json" is text.
func New(levelStr, formatStr string, w io.Writer) *slog.Logger {
	return slog.New(handler(levelStr, formatStr, w))
}

func handler(levelStr, formatStr string, w io.Writer) slog.Handler {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Open creates a logger writing to console and appending, as text, to the
// study log at fp. Close the returned file when the study ends.
func Open(levelStr, formatStr string, console io.Writer, fp string) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(fp, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open %s: %w", fp, err)
	}
	return slog.New(tee{handler(levelStr, formatStr, console), handler(levelStr, "text", f)}), f, nil
}

// tee forwards each record to every handler enabled for its level.
type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t tee) WithAttrs(as []slog.Attr) slog.Handler {
	n := make(tee, len(t))
	for i, h := range t {
		n[i] = h.WithAttrs(as)
	}
	return n
}

func (t tee) WithGroup(name string) slog.Handler {
	n := make(tee, len(t))
	for i, h := range t {
		n[i] = h.WithGroup(name)
	}
	return n
}
