package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type loggerCtxKey struct{}
type moduleCtxKey struct{}
type eventCtxKey struct{}

// ContextFields extracts correlation data from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := ModuleIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("module.id", id))
	}
	if id := EventIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("event.id", id))
	}
	return fields
}

// WithModuleID tags ctx with the module whose code runs under it.
func WithModuleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, moduleCtxKey{}, id)
}

// ModuleIDFromContext returns the module ID, or "".
func ModuleIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(moduleCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithEventID tags ctx with the event being dispatched.
func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, eventCtxKey{}, id)
}

// EventIDFromContext returns the event ID, or "".
func EventIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(eventCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger from ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
