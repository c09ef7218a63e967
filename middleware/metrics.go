package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/rpcguard/outcome"
)

var (
	// CallsTotal counts finished calls by classified outcome.
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcguard_calls_total",
			Help: "Total number of guarded calls by outcome",
		},
		[]string{"dependency", "operation", "outcome"},
	)

	// CallDuration measures wall time of whole calls, retries included.
	CallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpcguard_call_duration_seconds",
			Help:    "Duration of guarded calls in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"dependency", "operation"},
	)

	// CallsInFlight tracks concurrently executing calls.
	CallsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rpcguard_calls_in_flight",
			Help: "Number of guarded calls currently executing",
		},
		[]string{"dependency"},
	)

	// RateLimitedTotal counts local rate limit rejections.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcguard_ratelimit_rejections_total",
			Help: "Total number of calls rejected by the local rate limiter",
		},
		[]string{"dependency"},
	)
)

// RecordRateLimited records a local rate limit rejection.
func RecordRateLimited(dependency string) {
	RateLimitedTotal.WithLabelValues(dependency).Inc()
}

// Metrics records duration, in-flight count, and classified outcome for
// every call passing through the chain.
func Metrics(classifier outcome.Classifier) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (interface{}, error) {
			CallsInFlight.WithLabelValues(call.Dependency).Inc()
			start := time.Now()

			result, err := next(ctx, call)

			CallsInFlight.WithLabelValues(call.Dependency).Dec()
			CallDuration.WithLabelValues(call.Dependency, call.Operation).
				Observe(time.Since(start).Seconds())
			CallsTotal.WithLabelValues(call.Dependency, call.Operation,
				ErrorKind(err, classifier).String()).Inc()

			return result, err
		}
	}
}
