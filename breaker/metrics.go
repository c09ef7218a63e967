package breaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerState shows the current state of circuit breakers.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rpcguard_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
		},
		[]string{"dependency"},
	)

	// BreakerRequestsTotal counts admission decisions per breaker.
	BreakerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcguard_breaker_requests_total",
			Help: "Total number of calls submitted to circuit breakers",
		},
		[]string{"dependency", "result"},
	)

	// BreakerFailuresTotal counts failures recorded by circuit breakers.
	BreakerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcguard_breaker_failures_total",
			Help: "Total number of failures recorded by circuit breakers",
		},
		[]string{"dependency"},
	)

	// BreakerSuccessesTotal counts successes recorded by circuit breakers.
	BreakerSuccessesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcguard_breaker_successes_total",
			Help: "Total number of successes recorded by circuit breakers",
		},
		[]string{"dependency"},
	)

	// BreakerStateChangesTotal counts state transitions.
	BreakerStateChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpcguard_breaker_state_changes_total",
			Help: "Total number of circuit breaker state changes",
		},
		[]string{"dependency", "from", "to"},
	)
)

// RecordRequest records an admission decision for a breaker.
func RecordRequest(name string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	BreakerRequestsTotal.WithLabelValues(name, result).Inc()
}

// RecordFailure records a failure.
func RecordFailure(name string) {
	BreakerFailuresTotal.WithLabelValues(name).Inc()
}

// RecordSuccess records a success.
func RecordSuccess(name string) {
	BreakerSuccessesTotal.WithLabelValues(name).Inc()
}

// RecordStateChange records a state transition.
func RecordStateChange(name string, from, to State) {
	BreakerStateChangesTotal.WithLabelValues(name, from.String(), to.String()).Inc()
	BreakerState.WithLabelValues(name).Set(float64(to))
}
