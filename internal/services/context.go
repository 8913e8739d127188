package services

import "context"

type contextKey string

const (
	runIDKey        contextKey = "run_id"
	requestIndexKey contextKey = "request_index"
	stageKey        contextKey = "stage"
	sourceIDKey     contextKey = "source_id"
)

// WithRunID annotates context with the pipeline run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the pipeline run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestIndex annotates context with the 1-based position of the segment
// request being processed.
func WithRequestIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, requestIndexKey, index)
}

// RequestIndexFromContext extracts the request position if present.
func RequestIndexFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(requestIndexKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithSourceID annotates context with the resolved source identifier.
func WithSourceID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sourceIDKey, id)
}

// SourceIDFromContext returns the source identifier if present.
func SourceIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sourceIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
