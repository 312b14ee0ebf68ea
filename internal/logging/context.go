package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldOperation names the operator-facing operation (verify, repair, export).
	FieldOperation = "operation"
	// FieldRunID correlates every line emitted by a single operation run.
	FieldRunID = "run_id"
	// FieldScriptID is the standardized key for script identifiers.
	FieldScriptID = "script_id"
	// FieldSceneID is the standardized key for scene identifiers (e.g. act0-scene1).
	FieldSceneID = "scene_id"
	// FieldAssetKind is the standardized key for image/video/audio.
	FieldAssetKind = "asset_kind"
	// FieldAssetID is the standardized key for asset identifiers.
	FieldAssetID = "asset_id"
	// FieldMappingID is the standardized key for mapping row identifiers.
	FieldMappingID = "mapping_id"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact states the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey int

const (
	operationKey contextKey = iota
	runIDKey
)

// WithOperation tags ctx with an operation name and run identifier.
func WithOperation(ctx context.Context, operation, runID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, operationKey, operation)
	return context.WithValue(ctx, runIDKey, runID)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if op, ok := ctx.Value(operationKey).(string); ok && op != "" {
		fields = append(fields, slog.String(FieldOperation, op))
	}
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
