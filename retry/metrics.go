package retry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetryAttemptsTotal counts attempts beyond the first.
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcguard_retry_attempts_total",
			Help: "Total number of retry attempts",
		},
		[]string{"dependency", "attempt"},
	)

	// RetrySuccessTotal counts calls that succeeded after retrying.
	RetrySuccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcguard_retry_success_total",
			Help: "Total number of calls that succeeded after at least one retry",
		},
		[]string{"dependency"},
	)

	// RetryExhaustedTotal counts calls that failed with the budget spent.
	RetryExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcguard_retry_exhausted_total",
			Help: "Total number of calls that failed after all permitted attempts",
		},
		[]string{"dependency"},
	)

	// RetryBackoffDuration measures backoff wait times.
	RetryBackoffDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpcguard_retry_backoff_duration_seconds",
			Help:    "Duration of backoff waits in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"dependency"},
	)
)

// RecordAttempt records a retry attempt.
func RecordAttempt(dependency string, attempt int) {
	RetryAttemptsTotal.WithLabelValues(dependency, strconv.Itoa(attempt)).Inc()
}

// RecordSuccess records a call that succeeded after retrying.
func RecordSuccess(dependency string) {
	RetrySuccessTotal.WithLabelValues(dependency).Inc()
}

// RecordExhausted records a call whose retry budget was exhausted.
func RecordExhausted(dependency string) {
	RetryExhaustedTotal.WithLabelValues(dependency).Inc()
}

// RecordBackoff records a backoff wait duration.
func RecordBackoff(dependency string, seconds float64) {
	RetryBackoffDuration.WithLabelValues(dependency).Observe(seconds)
}
