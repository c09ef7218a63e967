package middleware

import (
	"context"

	"github.com/vyrodovalexey/rpcguard/outcome"
	"github.com/vyrodovalexey/rpcguard/tracing"
)

// Tracing opens a span around the whole call. The span's context is a
// fresh child of whatever request context arrived with ctx, so every
// layer below (and the downstream peer, via header injection) sees the
// call's own span identity. The span finishes on every exit path and
// records the call's classified outcome exactly once.
func Tracing(tracer *tracing.Tracer, classifier outcome.Classifier) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (interface{}, error) {
			ctx, span := tracer.StartSpan(ctx, call.Name())
			defer span.Finish()

			span.SetTag("dependency", call.Dependency)
			span.SetTag("operation", call.Operation)
			span.SetTag("idempotent", call.Idempotent)

			result, err := next(ctx, call)

			if call.attempt > 0 {
				span.AddCounter("attempts", int64(call.attempt))
			}
			span.SetOutcome(SpanOutcome(err, classifier))

			return result, err
		}
	}
}

// SpanOutcome maps an error to the span outcome and error kind, seeing
// through the chain's wrapper types. Server-side interceptors use it too
// so client and server spans share one kind vocabulary.
func SpanOutcome(err error, classifier outcome.Classifier) (tracing.OutcomeCode, string) {
	kind := ErrorKind(err, classifier)
	switch kind {
	case outcome.KindSuccess:
		return tracing.OutcomeSuccess, ""
	case outcome.KindTimeout:
		return tracing.OutcomeTimeout, ""
	default:
		return tracing.OutcomeError, kind.String()
	}
}
