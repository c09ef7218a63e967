package middleware

import (
	"context"

	"github.com/vyrodovalexey/rpcguard/breaker"
	"github.com/vyrodovalexey/rpcguard/outcome"
)

// CircuitBreak guards each logical call with the dependency's circuit
// breaker. The breaker is consulted once per call, before any attempt is
// dispatched, and records the call's final classified outcome: retries
// happen inside this interceptor, so a call that eventually succeeds
// counts as one success.
//
// Only dependency failures count against the breaker. Caller errors and
// local rejections leave its counters untouched.
func CircuitBreak(registry *breaker.Registry, classifier outcome.Classifier) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (interface{}, error) {
			br := registry.GetOrCreate(call.Dependency)

			done, err := br.Allow()
			if err != nil {
				return nil, &CircuitOpenError{
					Dependency: call.Dependency,
					Operation:  call.Operation,
				}
			}

			result, callErr := next(ctx, call)

			if ErrorKind(callErr, classifier).IsFailure() {
				done(callErr)
			} else {
				done(nil)
			}

			return result, callErr
		}
	}
}
