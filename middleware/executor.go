package middleware

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/rpcguard/outcome"
	"github.com/vyrodovalexey/rpcguard/reqcontext"
)

// Executor returns the terminal handler that dispatches the downstream
// invocation once. It refuses to dispatch when the deadline has already
// passed, and wraps raw errors in the chain's error taxonomy so the
// outer interceptors can classify them without re-parsing.
func Executor(invoke Invoker, classifier outcome.Classifier, logger *zap.Logger) Handler {
	if classifier == nil {
		classifier = outcome.Auto()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(ctx context.Context, call *Call) (interface{}, error) {
		start := time.Now()

		if err := ctx.Err(); err != nil {
			return nil, dispatchRefused(call, err)
		}
		if rc, ok := reqcontext.FromGoContext(ctx); ok && rc.Expired(start) {
			return nil, &DeadlineExceededError{
				Dependency: call.Dependency,
				Operation:  call.Operation,
				Attempts:   call.attempt,
			}
		}

		result, err := invoke(ctx)
		if err == nil {
			return result, nil
		}

		elapsed := time.Since(start)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Debug("attempt timed out",
				zap.String("call", call.Name()),
				zap.Int("attempt", call.attempt),
				zap.Duration("elapsed", elapsed),
			)
			return nil, &DeadlineExceededError{
				Dependency: call.Dependency,
				Operation:  call.Operation,
				Attempts:   call.attempt,
				Elapsed:    elapsed,
			}
		}

		kind := classifier.Classify(err)
		if kind == outcome.KindCaller {
			return nil, &CallerError{
				Dependency: call.Dependency,
				Operation:  call.Operation,
				Err:        err,
			}
		}
		if kind == outcome.KindUnknown {
			// Unclassifiable downstream errors are treated as non-retryable
			// so a retry never repeats a side effect of unknown standing.
			kind = outcome.KindNonRetryable
		}

		logger.Debug("attempt failed",
			zap.String("call", call.Name()),
			zap.Int("attempt", call.attempt),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)

		return nil, &DownstreamError{
			Dependency: call.Dependency,
			Operation:  call.Operation,
			Kind:       kind,
			Attempt:    call.attempt,
			Err:        err,
		}
	}
}

// dispatchRefused maps a pre-dispatch context error to the taxonomy.
func dispatchRefused(call *Call, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &DeadlineExceededError{
			Dependency: call.Dependency,
			Operation:  call.Operation,
			Attempts:   call.attempt,
		}
	}
	return &CallerError{
		Dependency: call.Dependency,
		Operation:  call.Operation,
		Err:        err,
	}
}
