package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/rpcguard/reqcontext"
)

// Tracer starts spans bound to request contexts and reports finished
// spans to its sink. When an OpenTelemetry tracer is attached, each span
// is mirrored so OTLP export works alongside the sink.
type Tracer struct {
	sink Sink
	otel trace.Tracer
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithSink sets the sink that receives finished spans.
func WithSink(sink Sink) TracerOption {
	return func(t *Tracer) {
		if sink != nil {
			t.sink = sink
		}
	}
}

// WithOTel mirrors every span into the given OpenTelemetry tracer.
func WithOTel(tracer trace.Tracer) TracerOption {
	return func(t *Tracer) {
		t.otel = tracer
	}
}

// NewTracer creates a Tracer. Without options spans are discarded.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{sink: NopSink{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSpan derives a child request context from the one carried by ctx
// (starting a new trace when none is present) and starts a span on it.
// The returned context carries the child; the caller must arrange for
// Finish to run on every exit path.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	ctx, parent := reqcontext.Ensure(ctx)
	child := parent.DeriveChild()

	span := &Span{
		tracer: t,
		rc:     child,
		name:   name,
		start:  time.Now(),
	}

	if t.otel != nil {
		// Anchor the mirrored span to the propagated identity so exported
		// traces link up with remote parents.
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    parent.TraceID(),
			SpanID:     parent.SpanID(),
			TraceFlags: trace.FlagsSampled,
		})
		otelCtx := trace.ContextWithSpanContext(ctx, sc)
		_, otelSpan := t.otel.Start(otelCtx, name,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("rpcguard.span_id", child.SpanID().String()),
			),
		)
		span.otelSpan = otelSpan
	}

	return reqcontext.Inject(ctx, child), span
}
