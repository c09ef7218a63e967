// Package outcome classifies call results so that the circuit breaker and
// retry layers can agree on what a failure means. Only outcomes classified
// as dependency failures count against a breaker; caller errors never do.
package outcome

// Kind is the classification of a single call attempt result.
type Kind int

const (
	// KindUnknown means the result could not be classified.
	KindUnknown Kind = iota

	// KindSuccess means the attempt succeeded.
	KindSuccess

	// KindRetryable is a dependency failure that may succeed on retry
	// (network errors, transient unavailability).
	KindRetryable

	// KindNonRetryable is a dependency failure that will not succeed on
	// retry within the same call.
	KindNonRetryable

	// KindTimeout means the attempt exceeded its deadline.
	KindTimeout

	// KindRejected means the attempt was never dispatched (circuit open,
	// rate limited).
	KindRejected

	// KindCaller is a caller-side error (invalid usage, bad request).
	// It is never retried and never counted against a circuit breaker.
	KindCaller
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRetryable:
		return "retryable"
	case KindNonRetryable:
		return "non-retryable"
	case KindTimeout:
		return "timeout"
	case KindRejected:
		return "rejected"
	case KindCaller:
		return "caller"
	default:
		return "unknown"
	}
}

// IsFailure reports whether the kind counts as a dependency failure for
// circuit breaking purposes.
func (k Kind) IsFailure() bool {
	switch k {
	case KindRetryable, KindNonRetryable, KindTimeout:
		return true
	default:
		return false
	}
}

// Retryable reports whether an attempt with this kind may be retried.
func (k Kind) Retryable() bool {
	return k == KindRetryable
}

// Classifier maps an error to an outcome kind.
type Classifier interface {
	Classify(err error) Kind
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(err error) Kind

// Classify implements Classifier.
func (f ClassifierFunc) Classify(err error) Kind {
	return f(err)
}
