package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	draftIDKey ctxKey = iota
	pipelineKey
	stepIDKey
)

// WithDraftID returns a context with the draft ID set.
func WithDraftID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, draftIDKey, id)
}

// WithPipeline returns a context with the pipeline name set.
func WithPipeline(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, pipelineKey, name)
}

// WithStepID returns a context with the step ID set.
func WithStepID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, stepIDKey, id)
}

// DraftID extracts the draft ID from the context, or "" if absent.
func DraftID(ctx context.Context) string {
	v, _ := ctx.Value(draftIDKey).(string)
	return v
}

// Pipeline extracts the pipeline name from the context, or "" if absent.
func Pipeline(ctx context.Context) string {
	v, _ := ctx.Value(pipelineKey).(string)
	return v
}

// StepID extracts the step ID from the context, or "" if absent.
func StepID(ctx context.Context) string {
	v, _ := ctx.Value(stepIDKey).(string)
	return v
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := DraftID(ctx); id != "" {
		logger = logger.With(slog.String("draft_id", id))
	}
	if name := Pipeline(ctx); name != "" {
		logger = logger.With(slog.String("pipeline", name))
	}
	if id := StepID(ctx); id != "" {
		logger = logger.With(slog.String("step_id", id))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := DraftID(ctx); v != "" {
		r.AddAttrs(slog.String("draft_id", v))
	}
	if v := Pipeline(ctx); v != "" {
		r.AddAttrs(slog.String("pipeline", v))
	}
	if v := StepID(ctx); v != "" {
		r.AddAttrs(slog.String("step_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
