package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/rpcguard/breaker"
	"github.com/vyrodovalexey/rpcguard/outcome"
)

// ErrRateLimited is the sentinel wrapped by RateLimitedError.
var ErrRateLimited = errors.New("rate limit exceeded")

// CircuitOpenError is returned when a call is rejected without being
// dispatched because the dependency's circuit is open.
type CircuitOpenError struct {
	Dependency string
	Operation  string
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("call to %s/%s rejected: %v", e.Dependency, e.Operation, breaker.ErrCircuitOpen)
}

// Unwrap returns breaker.ErrCircuitOpen so errors.Is matching works.
func (e *CircuitOpenError) Unwrap() error {
	return breaker.ErrCircuitOpen
}

// DeadlineExceededError is returned when the call's deadline expired,
// either before dispatch or while an attempt was in flight.
type DeadlineExceededError struct {
	Dependency string
	Operation  string

	// Attempts is the number of attempts made before the budget ran out.
	Attempts int

	// Elapsed is the total time spent on the call.
	Elapsed time.Duration
}

// Error implements the error interface.
func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("call to %s/%s exceeded its deadline after %d attempt(s) in %s",
		e.Dependency, e.Operation, e.Attempts, e.Elapsed)
}

// Unwrap returns context.DeadlineExceeded so errors.Is matching works.
func (e *DeadlineExceededError) Unwrap() error {
	return context.DeadlineExceeded
}

// DownstreamError wraps a failure reported by the dependency itself,
// carrying its classification and the attempt that produced it.
type DownstreamError struct {
	Dependency string
	Operation  string
	Kind       outcome.Kind
	Attempt    int
	Err        error
}

// Error implements the error interface.
func (e *DownstreamError) Error() string {
	return fmt.Sprintf("call to %s/%s failed (%s, attempt %d): %v",
		e.Dependency, e.Operation, e.Kind, e.Attempt, e.Err)
}

// Unwrap returns the underlying downstream error.
func (e *DownstreamError) Unwrap() error {
	return e.Err
}

// RetriesExhaustedError is returned when every permitted attempt failed
// with a retryable error.
type RetriesExhaustedError struct {
	Dependency string
	Operation  string
	Attempts   int
	Elapsed    time.Duration
	LastErr    error
}

// Error implements the error interface.
func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("call to %s/%s failed after %d attempt(s) in %s: %v",
		e.Dependency, e.Operation, e.Attempts, e.Elapsed, e.LastErr)
}

// Unwrap returns the last attempt's error.
func (e *RetriesExhaustedError) Unwrap() error {
	return e.LastErr
}

// CallerError wraps an error attributed to the caller rather than the
// dependency. It is never retried and never counted against a breaker.
type CallerError struct {
	Dependency string
	Operation  string
	Err        error
}

// Error implements the error interface.
func (e *CallerError) Error() string {
	return fmt.Sprintf("caller error on %s/%s: %v", e.Dependency, e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *CallerError) Unwrap() error {
	return e.Err
}

// RateLimitedError is returned when the per-dependency rate limiter
// rejects a call before dispatch.
type RateLimitedError struct {
	Dependency string
	Operation  string
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("call to %s/%s rejected: %v", e.Dependency, e.Operation, ErrRateLimited)
}

// Unwrap returns ErrRateLimited so errors.Is matching works.
func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// ErrorKind classifies an error produced by a chain, consulting the
// wrapper types first and falling back to the given classifier for raw
// downstream errors.
func ErrorKind(err error, fallback outcome.Classifier) outcome.Kind {
	if err == nil {
		return outcome.KindSuccess
	}

	var downstream *DownstreamError
	if errors.As(err, &downstream) {
		return downstream.Kind
	}
	var exhausted *RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return ErrorKind(exhausted.LastErr, fallback)
	}
	var caller *CallerError
	if errors.As(err, &caller) {
		return outcome.KindCaller
	}
	if errors.Is(err, breaker.ErrCircuitOpen) || errors.Is(err, ErrRateLimited) {
		return outcome.KindRejected
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return outcome.KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return outcome.KindCaller
	}

	if fallback != nil {
		return fallback.Classify(err)
	}
	return outcome.KindUnknown
}

// Classifier adapts ErrorKind to the outcome.Classifier interface so the
// retry policy sees through the chain's wrapper types.
func Classifier(fallback outcome.Classifier) outcome.Classifier {
	return outcome.ClassifierFunc(func(err error) outcome.Kind {
		return ErrorKind(err, fallback)
	})
}
