package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/rpcguard/outcome"
)

// Recovery converts a panic anywhere below it into a non-retryable
// downstream failure instead of unwinding into the caller. It sits
// outermost so a panicking invoker still finishes its span and settles
// its breaker callback on the way out.
func Recovery(logger *zap.Logger) Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (result interface{}, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic recovered in call",
						zap.String("call", call.Name()),
						zap.Any("panic", r),
						zap.Stack("stack"),
					)
					result = nil
					err = &DownstreamError{
						Dependency: call.Dependency,
						Operation:  call.Operation,
						Kind:       outcome.KindNonRetryable,
						Attempt:    call.attempt,
						Err:        fmt.Errorf("panic: %v", r),
					}
				}
			}()

			return next(ctx, call)
		}
	}
}
