// Package middleware assembles per-call interceptor chains around a
// downstream invocation: recovery, metrics, tracing, circuit breaking,
// rate limiting, deadline enforcement, and retries.
package middleware

import "context"

// Call describes one logical downstream call. Dependency selects the
// circuit breaker and configuration; Operation names the specific
// endpoint for observability. Idempotent must be set explicitly by the
// caller before retries are permitted.
type Call struct {
	Dependency string
	Operation  string
	Idempotent bool

	attempt int
}

// Attempt returns the one-based number of the attempt currently in
// flight, or the final attempt count once the call has returned. It is
// zero before the first attempt starts.
func (c *Call) Attempt() int {
	return c.attempt
}

// Name returns "dependency/operation" for span and log naming.
func (c *Call) Name() string {
	if c.Operation == "" {
		return c.Dependency
	}
	return c.Dependency + "/" + c.Operation
}

// Invoker is the user-supplied downstream invocation.
type Invoker func(ctx context.Context) (interface{}, error)

// Handler is one link of the interceptor chain.
type Handler func(ctx context.Context, call *Call) (interface{}, error)

// Interceptor wraps a Handler with one cross-cutting concern.
type Interceptor func(next Handler) Handler

// Chain composes interceptors into one. The first interceptor is the
// outermost: Chain(a, b, c) produces a(b(c(next))).
func Chain(interceptors ...Interceptor) Interceptor {
	return func(next Handler) Handler {
		for i := len(interceptors) - 1; i >= 0; i-- {
			next = interceptors[i](next)
		}
		return next
	}
}

// Build wraps the terminal handler with the given interceptors, first
// interceptor outermost.
func Build(terminal Handler, interceptors ...Interceptor) Handler {
	return Chain(interceptors...)(terminal)
}
