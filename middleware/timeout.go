package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/vyrodovalexey/rpcguard/reqcontext"
)

// Timeout bounds the whole call, retries included, to at most d. The
// deadline can only shrink: an already tighter caller deadline wins.
// The request context carried by ctx is narrowed in lockstep so the
// deadline propagates downstream over the wire.
func Timeout(d time.Duration) Interceptor {
	return func(next Handler) Handler {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, call *Call) (interface{}, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			if rc, ok := reqcontext.FromGoContext(ctx); ok {
				if dl, ok := ctx.Deadline(); ok {
					ctx = reqcontext.Inject(ctx, rc.WithDeadline(dl))
				}
			}

			result, err := next(ctx, call)
			if err != nil && !isTaxonomyError(err) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &DeadlineExceededError{
					Dependency: call.Dependency,
					Operation:  call.Operation,
					Attempts:   call.attempt,
				}
			}
			return result, err
		}
	}
}

// isTaxonomyError reports whether err is already one of the chain's
// wrapper types.
func isTaxonomyError(err error) bool {
	var (
		circuitOpen *CircuitOpenError
		deadline    *DeadlineExceededError
		downstream  *DownstreamError
		exhausted   *RetriesExhaustedError
		caller      *CallerError
		rateLimited *RateLimitedError
	)
	return errors.As(err, &circuitOpen) ||
		errors.As(err, &deadline) ||
		errors.As(err, &downstream) ||
		errors.As(err, &exhausted) ||
		errors.As(err, &caller) ||
		errors.As(err, &rateLimited)
}
