package reqcontext

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// DeadlineHeader carries the absolute call deadline across the wire.
// Trace identity travels in the standard W3C traceparent header.
const DeadlineHeader = "rpcguard-deadline"

// Inject serializes the trace identity and deadline into carrier. The
// transport layer is responsible for placing the carrier's entries on the
// wire envelope.
func (c *Context) Inject(carrier propagation.TextMapCarrier) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    c.traceID,
		SpanID:     c.spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	propagation.TraceContext{}.Inject(ctx, carrier)

	if !c.deadline.IsZero() {
		carrier.Set(DeadlineHeader, c.deadline.UTC().Format(time.RFC3339Nano))
	}
}

// Extract reads propagated trace headers from carrier and returns the
// remote caller's Context. When no valid trace headers are present a new
// trace is started. A malformed deadline header is ignored.
func Extract(carrier propagation.TextMapCarrier) *Context {
	ctx := propagation.TraceContext{}.Extract(context.Background(), carrier)
	sc := trace.SpanContextFromContext(ctx)

	var deadline time.Time
	if raw := carrier.Get(DeadlineHeader); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			deadline = t
		}
	}

	if !sc.HasTraceID() || !sc.HasSpanID() {
		rc := New()
		if !deadline.IsZero() {
			rc = rc.WithDeadline(deadline)
		}
		return rc
	}

	return Continue(sc.TraceID(), sc.SpanID(), deadline)
}
