package middleware

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// LimiterSet holds one token bucket per dependency. Dependencies without
// a configured limit pass through unlimited.
type LimiterSet struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewLimiterSet creates an empty limiter set.
func NewLimiterSet() *LimiterSet {
	return &LimiterSet{limiters: make(map[string]*rate.Limiter)}
}

// Set configures the limit for a dependency. rps <= 0 removes the limit.
func (ls *LimiterSet) Set(dependency string, rps float64, burst int) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if rps <= 0 {
		delete(ls.limiters, dependency)
		return
	}
	if burst < 1 {
		burst = 1
	}
	ls.limiters[dependency] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Get returns the limiter for a dependency, or nil if unlimited.
func (ls *LimiterSet) Get(dependency string) *rate.Limiter {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.limiters[dependency]
}

// RateLimit rejects calls that exceed the dependency's configured rate
// before they reach the breaker's admission or the downstream. The
// rejection is local, so it never counts against the circuit breaker.
func RateLimit(limiters *LimiterSet) Interceptor {
	return func(next Handler) Handler {
		if limiters == nil {
			return next
		}
		return func(ctx context.Context, call *Call) (interface{}, error) {
			if limiter := limiters.Get(call.Dependency); limiter != nil && !limiter.Allow() {
				RecordRateLimited(call.Dependency)
				return nil, &RateLimitedError{
					Dependency: call.Dependency,
					Operation:  call.Operation,
				}
			}
			return next(ctx, call)
		}
	}
}
