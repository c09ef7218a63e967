package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/rpcguard/breaker"
	"github.com/vyrodovalexey/rpcguard/outcome"
	"github.com/vyrodovalexey/rpcguard/retry"
	"github.com/vyrodovalexey/rpcguard/tracing"
)

var errTransient = errors.New("connection reset")

// retryableAlways classifies every error as retryable.
func retryableAlways() outcome.Classifier {
	return outcome.ClassifierFunc(func(err error) outcome.Kind {
		if err == nil {
			return outcome.KindSuccess
		}
		return outcome.KindRetryable
	})
}

func testPolicy(maxAttempts int, delays ...time.Duration) *retry.Policy {
	return &retry.Policy{
		MaxAttempts:      maxAttempts,
		Backoff:          retry.NewScheduleBackoff(delays...),
		MinAttemptBudget: time.Millisecond,
		Classifier:       Classifier(retryableAlways()),
	}
}

func TestChain_ComposesOutsideIn(t *testing.T) {
	var order []string
	tag := func(name string) Interceptor {
		return func(next Handler) Handler {
			return func(ctx context.Context, call *Call) (interface{}, error) {
				order = append(order, name)
				return next(ctx, call)
			}
		}
	}

	handler := Build(func(ctx context.Context, call *Call) (interface{}, error) {
		order = append(order, "terminal")
		return nil, nil
	}, tag("a"), tag("b"), tag("c"))

	_, err := handler(context.Background(), &Call{Dependency: "dep"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "terminal"}, order)
}

func TestRetry_SucceedsOnThirdAttempt(t *testing.T) {
	attempts := 0
	var attemptTimes []time.Time

	terminal := Executor(func(ctx context.Context) (interface{}, error) {
		attempts++
		attemptTimes = append(attemptTimes, time.Now())
		if attempts < 3 {
			return nil, errTransient
		}
		return "ok", nil
	}, retryableAlways(), zap.NewNop())

	handler := Retry(testPolicy(3, 10*time.Millisecond, 20*time.Millisecond), zap.NewNop())(terminal)

	call := &Call{Dependency: "payments", Operation: "charge", Idempotent: true}
	result, err := handler(context.Background(), call)

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, call.Attempt())

	// Backoff schedule: ~10ms before attempt 2, ~20ms before attempt 3.
	require.Len(t, attemptTimes, 3)
	assert.GreaterOrEqual(t, attemptTimes[1].Sub(attemptTimes[0]), 10*time.Millisecond)
	assert.GreaterOrEqual(t, attemptTimes[2].Sub(attemptTimes[1]), 20*time.Millisecond)
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	attempts := 0
	terminal := Executor(func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, errTransient
	}, retryableAlways(), zap.NewNop())

	handler := Retry(testPolicy(3, time.Millisecond, time.Millisecond), zap.NewNop())(terminal)

	call := &Call{Dependency: "payments", Idempotent: true}
	_, err := handler(context.Background(), call)

	assert.Equal(t, 3, attempts)

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Greater(t, exhausted.Elapsed, time.Duration(0))
	assert.ErrorIs(t, err, errTransient)
}

func TestRetry_NonIdempotentGetsOneAttempt(t *testing.T) {
	attempts := 0
	terminal := Executor(func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, errTransient
	}, retryableAlways(), zap.NewNop())

	handler := Retry(testPolicy(5, time.Millisecond), zap.NewNop())(terminal)

	call := &Call{Dependency: "payments", Idempotent: false}
	_, err := handler(context.Background(), call)

	assert.Equal(t, 1, attempts)

	var downstream *DownstreamError
	require.ErrorAs(t, err, &downstream)

	var exhausted *RetriesExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestRetry_NonRetryableErrorNotRetried(t *testing.T) {
	attempts := 0
	classifier := outcome.ClassifierFunc(func(err error) outcome.Kind {
		if err == nil {
			return outcome.KindSuccess
		}
		return outcome.KindNonRetryable
	})

	terminal := Executor(func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, errors.New("schema mismatch")
	}, classifier, zap.NewNop())

	policy := testPolicy(5, time.Millisecond)
	policy.Classifier = Classifier(classifier)
	handler := Retry(policy, zap.NewNop())(terminal)

	call := &Call{Dependency: "payments", Idempotent: true}
	_, err := handler(context.Background(), call)

	assert.Equal(t, 1, attempts)
	var downstream *DownstreamError
	require.ErrorAs(t, err, &downstream)
	assert.Equal(t, outcome.KindNonRetryable, downstream.Kind)
}

func TestTimeout_AttemptOverrunsDeadline(t *testing.T) {
	attempts := 0
	terminal := Executor(func(ctx context.Context) (interface{}, error) {
		attempts++
		select {
		case <-time.After(60 * time.Millisecond):
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, retryableAlways(), zap.NewNop())

	handler := Build(terminal,
		Timeout(50*time.Millisecond),
		Retry(testPolicy(3, time.Millisecond), zap.NewNop()),
	)

	call := &Call{Dependency: "payments", Idempotent: true}
	start := time.Now()
	_, err := handler(context.Background(), call)

	// One attempt, a timeout error, no retry past the deadline.
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	var deadline *DeadlineExceededError
	require.ErrorAs(t, err, &deadline)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTimeout_ExpiredDeadlineRefusesDispatch(t *testing.T) {
	attempts := 0
	terminal := Executor(func(ctx context.Context) (interface{}, error) {
		attempts++
		return "ok", nil
	}, retryableAlways(), zap.NewNop())

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := terminal(ctx, &Call{Dependency: "payments"})

	assert.Equal(t, 0, attempts)
	var deadline *DeadlineExceededError
	assert.ErrorAs(t, err, &deadline)
}

func TestCircuitBreak_OpenCircuitRejectsAndIsNotRetried(t *testing.T) {
	registry := breaker.NewRegistry(&breaker.Config{
		TripThreshold: 1,
		SampleSize:    1,
		Cooldown:      time.Minute,
	}, zap.NewNop())

	attempts := 0
	terminal := Executor(func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, errTransient
	}, retryableAlways(), zap.NewNop())

	handler := Build(terminal,
		CircuitBreak(registry, retryableAlways()),
		Retry(testPolicy(1), zap.NewNop()),
	)

	call := &Call{Dependency: "payments", Idempotent: true}

	// First call fails and trips the breaker.
	_, err := handler(context.Background(), call)
	require.Error(t, err)
	require.Equal(t, 1, attempts)

	// Second call is rejected without dispatch.
	_, err = handler(context.Background(), call)
	assert.Equal(t, 1, attempts)

	var open *CircuitOpenError
	require.ErrorAs(t, err, &open)
	assert.ErrorIs(t, err, breaker.ErrCircuitOpen)

	// The retry policy refuses to burn attempts on a circuit rejection.
	policy := testPolicy(5, time.Millisecond)
	assert.False(t, policy.ShouldRetry(1, time.Time{}, err))
}

func TestCircuitBreak_WholeRetrySequenceCountsOnce(t *testing.T) {
	registry := breaker.NewRegistry(&breaker.Config{
		TripThreshold: 2,
		SampleSize:    2,
		Cooldown:      time.Minute,
	}, zap.NewNop())

	terminal := Executor(func(ctx context.Context) (interface{}, error) {
		return nil, errTransient
	}, retryableAlways(), zap.NewNop())

	handler := Build(terminal,
		CircuitBreak(registry, retryableAlways()),
		Retry(testPolicy(3, time.Millisecond, time.Millisecond), zap.NewNop()),
	)

	call := &Call{Dependency: "payments", Idempotent: true}
	_, err := handler(context.Background(), call)
	require.Error(t, err)

	// Three failed attempts, but the breaker saw one logical failure.
	cb, ok := registry.Get("payments").(*breaker.CircuitBreaker)
	require.True(t, ok)
	assert.Equal(t, 1, cb.Stats().Total)
	assert.Equal(t, 1, cb.Stats().Failures)
}

func TestCircuitBreak_CallerErrorsDoNotCount(t *testing.T) {
	registry := breaker.NewRegistry(&breaker.Config{
		TripThreshold: 1,
		SampleSize:    1,
		Cooldown:      time.Minute,
	}, zap.NewNop())

	callerClassifier := outcome.ClassifierFunc(func(err error) outcome.Kind {
		if err == nil {
			return outcome.KindSuccess
		}
		return outcome.KindCaller
	})

	terminal := Executor(func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("invalid argument")
	}, callerClassifier, zap.NewNop())

	handler := CircuitBreak(registry, callerClassifier)(terminal)

	call := &Call{Dependency: "payments"}
	_, err := handler(context.Background(), call)

	var caller *CallerError
	require.ErrorAs(t, err, &caller)

	cb, ok := registry.Get("payments").(*breaker.CircuitBreaker)
	require.True(t, ok)
	assert.Equal(t, breaker.StateClosed, cb.State())
	assert.Equal(t, 0, cb.Stats().Failures)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	limiters := NewLimiterSet()
	limiters.Set("payments", 1, 1)

	attempts := 0
	terminal := func(ctx context.Context, call *Call) (interface{}, error) {
		attempts++
		return "ok", nil
	}

	handler := RateLimit(limiters)(terminal)
	call := &Call{Dependency: "payments"}

	_, err := handler(context.Background(), call)
	require.NoError(t, err)

	// The bucket of one is empty now.
	_, err = handler(context.Background(), call)
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, attempts)
}

func TestRateLimit_UnconfiguredDependencyUnlimited(t *testing.T) {
	limiters := NewLimiterSet()

	handler := RateLimit(limiters)(func(ctx context.Context, call *Call) (interface{}, error) {
		return "ok", nil
	})

	for i := 0; i < 100; i++ {
		_, err := handler(context.Background(), &Call{Dependency: "payments"})
		require.NoError(t, err)
	}
}

func TestRecovery_ConvertsPanic(t *testing.T) {
	handler := Recovery(zap.NewNop())(func(ctx context.Context, call *Call) (interface{}, error) {
		panic("boom")
	})

	result, err := handler(context.Background(), &Call{Dependency: "payments"})

	assert.Nil(t, result)
	var downstream *DownstreamError
	require.ErrorAs(t, err, &downstream)
	assert.Equal(t, outcome.KindNonRetryable, downstream.Kind)
	assert.Contains(t, err.Error(), "boom")
}

func TestTracing_SpanPerCallWithOutcome(t *testing.T) {
	sink := tracing.NewCaptureSink()
	tracer := tracing.NewTracer(tracing.WithSink(sink))

	terminal := Executor(func(ctx context.Context) (interface{}, error) {
		return nil, errTransient
	}, retryableAlways(), zap.NewNop())

	handler := Build(terminal,
		Tracing(tracer, retryableAlways()),
		Retry(testPolicy(2, time.Millisecond), zap.NewNop()),
	)

	call := &Call{Dependency: "payments", Operation: "charge", Idempotent: true}
	_, err := handler(context.Background(), call)
	require.Error(t, err)

	spans := sink.Spans()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, "payments/charge", span.Name)
	assert.Equal(t, tracing.OutcomeError, span.Outcome)
	assert.Equal(t, "retryable", span.ErrorKind)
	assert.Equal(t, "payments", span.Tags["dependency"])
	assert.Equal(t, int64(2), span.Counters["attempts"])
}

func TestTracing_TimeoutOutcome(t *testing.T) {
	sink := tracing.NewCaptureSink()
	tracer := tracing.NewTracer(tracing.WithSink(sink))

	terminal := Executor(func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, retryableAlways(), zap.NewNop())

	handler := Build(terminal,
		Tracing(tracer, retryableAlways()),
		Timeout(10*time.Millisecond),
	)

	_, err := handler(context.Background(), &Call{Dependency: "payments"})
	require.Error(t, err)

	spans := sink.Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, tracing.OutcomeTimeout, spans[0].Outcome)
}

func TestErrorKind_WrapperTypes(t *testing.T) {
	classifier := retryableAlways()

	assert.Equal(t, outcome.KindSuccess, ErrorKind(nil, classifier))
	assert.Equal(t, outcome.KindRejected,
		ErrorKind(&CircuitOpenError{Dependency: "d"}, classifier))
	assert.Equal(t, outcome.KindRejected,
		ErrorKind(&RateLimitedError{Dependency: "d"}, classifier))
	assert.Equal(t, outcome.KindTimeout,
		ErrorKind(&DeadlineExceededError{Dependency: "d"}, classifier))
	assert.Equal(t, outcome.KindCaller,
		ErrorKind(&CallerError{Dependency: "d", Err: errors.New("bad")}, classifier))
	assert.Equal(t, outcome.KindNonRetryable,
		ErrorKind(&DownstreamError{Kind: outcome.KindNonRetryable, Err: errTransient}, classifier))
	assert.Equal(t, outcome.KindRetryable,
		ErrorKind(&RetriesExhaustedError{
			LastErr: &DownstreamError{Kind: outcome.KindRetryable, Err: errTransient},
		}, classifier))
	assert.Equal(t, outcome.KindCaller, ErrorKind(context.Canceled, classifier))
}

func TestCall_Name(t *testing.T) {
	assert.Equal(t, "payments/charge", (&Call{Dependency: "payments", Operation: "charge"}).Name())
	assert.Equal(t, "payments", (&Call{Dependency: "payments"}).Name())
}
