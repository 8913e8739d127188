package logging

import (
	"context"
	"log/slog"

	"clipstitch/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one pipeline run.
	FieldRunID = "run_id"
	// FieldRequestIndex is the 1-based position of a segment request in the task list.
	FieldRequestIndex = "request_index"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldSourceID is the 11-character source video identifier.
	FieldSourceID = "source_id"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to do next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// contextFields extracts the run, request, stage and source attributes carried by ctx.
func contextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if idx, ok := services.RequestIndexFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldRequestIndex, idx))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if sid, ok := services.SourceIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSourceID, sid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	logger = orNop(logger)
	fields := contextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
