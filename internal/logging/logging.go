// Package logging configures structured logging with credential redaction.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// redactedKeys marks attribute keys whose values must never reach a log sink.
// Device passwords travel through most layers of crestctl, so matching is by
// substring on the lowercased key.
var redactedKeys = []string{
	"password",
	"passphrase",
	"secret",
	"token",
	"credential",
}

// RedactingHandler wraps a slog.Handler and replaces sensitive attribute
// values with a placeholder.
type RedactingHandler struct {
	inner slog.Handler
}

// NewRedactingHandler wraps handler with credential redaction.
func NewRedactingHandler(handler slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: handler}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(out)}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, sensitive := range redactedKeys {
		if strings.Contains(key, sensitive) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		out := make([]slog.Attr, len(members))
		for i, m := range members {
			out[i] = redactAttr(m)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	return a
}

// Options controls logger construction.
type Options struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string
	// JSON selects the JSON handler; the default text handler is meant for
	// interactive use where device output shares the terminal.
	JSON bool
	// Writer defaults to os.Stderr.
	Writer io.Writer
}

// Setup installs the global logger. Interactive commands default to warn so
// log records never interleave with remote console output on the terminal.
func Setup(opts Options) {
	level := ParseLevel(opts.Level)

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	var inner slog.Handler
	if opts.JSON {
		inner = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		inner = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}

	slog.SetDefault(slog.New(NewRedactingHandler(inner)))
}

// ParseLevel maps a config string to a slog level, defaulting to warn.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
