package core

import (
	"context"
	"maps"
	"slices"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}

// LogInfo emits a structured info entry; fields are attached via FieldsLogger
// when the logger supports it, and flattened into args otherwise.
func LogInfo(ctx context.Context, logger Logger, message string, fields map[string]any) {
	if emit := prepare(ctx, logger, fields); emit != nil {
		emit.logger.Info(message, emit.args...)
	}
}

func LogError(ctx context.Context, logger Logger, message string, fields map[string]any) {
	if emit := prepare(ctx, logger, fields); emit != nil {
		emit.logger.Error(message, emit.args...)
	}
}

type emission struct {
	logger Logger
	args   []any
}

func prepare(ctx context.Context, logger Logger, fields map[string]any) *emission {
	if logger == nil {
		return nil
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	return &emission{logger: logger, args: flattenFields(fields)}
}

func cloneFields(fields map[string]any) map[string]any {
	out := map[string]any{}
	maps.Copy(out, fields)
	return out
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return args
}
