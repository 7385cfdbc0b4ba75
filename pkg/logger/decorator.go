package logger

import (
	"context"
	"log/slog"
)

// ContextExtractor pulls a request-scoped attribute out of a context. It
// reports false when the context carries nothing to log.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// WithExtractors wraps a handler so that every log call runs the given
// extractors against the record's context and appends whatever they find.
// Extraction happens per call, so values such as request IDs are always
// current. Nil extractors are ignored.
func WithExtractors(next slog.Handler, extractors ...ContextExtractor) slog.Handler {
	active := extractors[:0:0]
	for _, ex := range extractors {
		if ex != nil {
			active = append(active, ex)
		}
	}
	if len(active) == 0 {
		return next
	}
	return &contextHandler{next: next, extractors: active}
}

type contextHandler struct {
	next       slog.Handler
	extractors []ContextExtractor
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	for _, ex := range h.extractors {
		if attr, ok := ex(ctx); ok {
			rec.AddAttrs(attr)
		}
	}
	return h.next.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs), extractors: h.extractors}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name), extractors: h.extractors}
}
