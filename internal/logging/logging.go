// Package logging installs the process-wide slog logger and carries
// per-event fields on context so every line logged while handling an event
// is attributable to it.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type contextKey struct{}

// Fields are attached to every record logged with a context that carries them.
type Fields struct {
	EventID   string
	ChannelID string
	EventKind string
	Strategy  string
}

// WithFields merges f into the fields already on ctx; non-empty values win.
func WithFields(ctx context.Context, f Fields) context.Context {
	merged := FieldsFrom(ctx)
	if f.EventID != "" {
		merged.EventID = f.EventID
	}
	if f.ChannelID != "" {
		merged.ChannelID = f.ChannelID
	}
	if f.EventKind != "" {
		merged.EventKind = f.EventKind
	}
	if f.Strategy != "" {
		merged.Strategy = f.Strategy
	}
	return context.WithValue(ctx, contextKey{}, merged)
}

func FieldsFrom(ctx context.Context) Fields {
	if f, ok := ctx.Value(contextKey{}).(Fields); ok {
		return f
	}
	return Fields{}
}

// ContextHandler adds Fields from the record's context before delegating.
type ContextHandler struct {
	slog.Handler
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	f := FieldsFrom(ctx)
	if f.EventID != "" {
		r.AddAttrs(slog.String("event_id", f.EventID))
	}
	if f.ChannelID != "" {
		r.AddAttrs(slog.String("channel_id", f.ChannelID))
	}
	if f.EventKind != "" {
		r.AddAttrs(slog.String("event_kind", f.EventKind))
	}
	if f.Strategy != "" {
		r.AddAttrs(slog.String("strategy", f.Strategy))
	}
	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// New builds a logger writing to w. format is "json" or "text"; level is one
// of debug, info, warn, error and defaults to info.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(ContextHandler{Handler: h})
}

// Setup installs New(w, level, format) as the slog default.
func Setup(w io.Writer, level, format string) {
	slog.SetDefault(New(w, level, format))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
