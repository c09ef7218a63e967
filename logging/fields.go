package logging

import (
	"context"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/rpcguard/reqcontext"
)

// TraceID returns a field carrying the trace identifier.
func TraceID(id string) zap.Field {
	return zap.String("trace_id", id)
}

// SpanID returns a field carrying the span identifier.
func SpanID(id string) zap.Field {
	return zap.String("span_id", id)
}

// Dependency returns a field naming the guarded dependency.
func Dependency(name string) zap.Field {
	return zap.String("dependency", name)
}

// Operation returns a field naming the call operation.
func Operation(name string) zap.Field {
	return zap.String("operation", name)
}

// Attempt returns a field carrying the attempt number.
func Attempt(n int) zap.Field {
	return zap.Int("attempt", n)
}

// FieldsFromContext extracts trace correlation fields from the request
// context carried by ctx, if any.
func FieldsFromContext(ctx context.Context) []zap.Field {
	rc, ok := reqcontext.FromGoContext(ctx)
	if !ok {
		return nil
	}

	fields := []zap.Field{
		TraceID(rc.TraceID().String()),
		SpanID(rc.SpanID().String()),
	}
	if parent, ok := rc.ParentSpanID(); ok {
		fields = append(fields, zap.String("parent_span_id", parent.String()))
	}
	return fields
}
