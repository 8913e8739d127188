package logging

import (
	"context"
	"log/slog"
)

// teeHandler writes every record to each handler that accepts its level. The
// run log uses it to mirror the interactive logger into a JSON file.
type teeHandler []slog.Handler

func newTeeHandler(handlers ...slog.Handler) slog.Handler {
	var live teeHandler
	for _, h := range handlers {
		if _, noop := h.(NoopHandler); h == nil || noop {
			continue
		}
		live = append(live, h)
	}
	switch len(live) {
	case 0:
		return NoopHandler{}
	case 1:
		return live[0]
	}
	return live
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle reports the first handler error but still offers the record to the
// remaining handlers.
func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var first error
	for _, h := range t {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) each(fn func(slog.Handler) slog.Handler) teeHandler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = fn(h)
	}
	return next
}

// TeeLogger returns a logger writing to base's handler and every extra handler.
func TeeLogger(base *slog.Logger, extra ...slog.Handler) *slog.Logger {
	handlers := extra
	if base != nil {
		handlers = append([]slog.Handler{base.Handler()}, extra...)
	}
	return slog.New(newTeeHandler(handlers...))
}
