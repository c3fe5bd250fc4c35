package services

import "context"

type contextKey string

const (
	druidKey contextKey = "druid"
	stageKey contextKey = "stage"
	runIDKey contextKey = "run_id"
)

// WithDruid annotates context with the roll identifier being processed.
func WithDruid(ctx context.Context, druid string) context.Context {
	if druid == "" {
		return ctx
	}
	return context.WithValue(ctx, druidKey, druid)
}

// DruidFromContext returns the roll identifier if present.
func DruidFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(druidKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
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
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with the invocation correlation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the correlation identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
