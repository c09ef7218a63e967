package middleware

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/rpcguard/retry"
)

// Retry re-dispatches failed attempts within the policy's budget. It is
// the innermost interceptor above the executor so the breaker and span
// around it observe the whole retry sequence as one call.
//
// Non-idempotent calls get exactly one attempt regardless of the policy:
// retrying work that may have taken effect is never safe by default.
func Retry(policy *retry.Policy, logger *zap.Logger) Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (interface{}, error) {
			start := time.Now()
			deadline, _ := ctx.Deadline()

			for attempt := 1; ; attempt++ {
				call.attempt = attempt
				if attempt > 1 {
					retry.RecordAttempt(call.Dependency, attempt)
				}

				result, err := next(ctx, call)
				if err == nil {
					if attempt > 1 {
						retry.RecordSuccess(call.Dependency)
						logger.Debug("call succeeded after retry",
							zap.String("call", call.Name()),
							zap.Int("attempts", attempt),
						)
					}
					return result, nil
				}
				if !call.Idempotent {
					return nil, err
				}

				if !policy.ShouldRetry(attempt, deadline, err) {
					if exhaustedBudget(policy, attempt, err) {
						retry.RecordExhausted(call.Dependency)
						return nil, &RetriesExhaustedError{
							Dependency: call.Dependency,
							Operation:  call.Operation,
							Attempts:   attempt,
							Elapsed:    time.Since(start),
							LastErr:    err,
						}
					}
					return nil, err
				}

				waitStart := time.Now()
				if werr := policy.Wait(ctx, attempt); werr != nil {
					if errors.Is(werr, context.DeadlineExceeded) {
						return nil, &DeadlineExceededError{
							Dependency: call.Dependency,
							Operation:  call.Operation,
							Attempts:   attempt,
							Elapsed:    time.Since(start),
						}
					}
					return nil, &CallerError{
						Dependency: call.Dependency,
						Operation:  call.Operation,
						Err:        werr,
					}
				}
				retry.RecordBackoff(call.Dependency, time.Since(waitStart).Seconds())

				logger.Debug("retrying call",
					zap.String("call", call.Name()),
					zap.Int("next_attempt", attempt+1),
					zap.Error(err),
				)
			}
		}
	}
}

// exhaustedBudget reports whether the retry sequence stopped because the
// attempt budget ran out, as opposed to the error being non-retryable or
// the deadline declining another attempt.
func exhaustedBudget(policy *retry.Policy, attempt int, err error) bool {
	if attempt < policy.MaxAttempts {
		return false
	}
	return ErrorKind(err, policy.Classifier).Retryable()
}
