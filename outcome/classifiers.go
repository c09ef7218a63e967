package outcome

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Default returns a classifier suitable for generic network-backed calls.
// Network errors and connection resets are retryable, deadline expiry is a
// timeout, everything else is a non-retryable dependency failure.
func Default() Classifier {
	return ClassifierFunc(func(err error) Kind {
		if err == nil {
			return KindSuccess
		}

		if errors.Is(err, context.DeadlineExceeded) {
			return KindTimeout
		}
		if errors.Is(err, context.Canceled) {
			return KindCaller
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return KindTimeout
		}

		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return KindRetryable
		}

		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			if urlErr.Timeout() {
				return KindTimeout
			}
			return KindRetryable
		}

		if errors.Is(err, syscall.ECONNRESET) ||
			errors.Is(err, syscall.ECONNREFUSED) ||
			errors.Is(err, io.EOF) ||
			errors.Is(err, io.ErrUnexpectedEOF) {
			return KindRetryable
		}

		return KindNonRetryable
	})
}

// GRPC returns a classifier for gRPC status codes. Codes that indicate a
// problem with the request itself are caller errors; transient codes are
// retryable.
func GRPC() Classifier {
	return ClassifierFunc(func(err error) Kind {
		if err == nil {
			return KindSuccess
		}

		st, ok := status.FromError(err)
		if !ok {
			return KindUnknown
		}

		switch st.Code() {
		case codes.OK:
			return KindSuccess
		case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
			return KindRetryable
		case codes.DeadlineExceeded:
			return KindTimeout
		case codes.Canceled, codes.InvalidArgument, codes.NotFound,
			codes.AlreadyExists, codes.PermissionDenied,
			codes.Unauthenticated, codes.FailedPrecondition,
			codes.OutOfRange, codes.Unimplemented:
			return KindCaller
		default:
			return KindNonRetryable
		}
	})
}

// Compose returns a classifier that tries each classifier in order and
// returns the first classification that is not KindUnknown.
func Compose(classifiers ...Classifier) Classifier {
	return ClassifierFunc(func(err error) Kind {
		for _, c := range classifiers {
			if kind := c.Classify(err); kind != KindUnknown {
				return kind
			}
		}
		return KindUnknown
	})
}

// Auto combines the gRPC and generic network classifiers. It is the
// classifier used when none is configured explicitly.
func Auto() Classifier {
	return Compose(GRPC(), Default())
}
