package grpcmw

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vyrodovalexey/rpcguard"
	"github.com/vyrodovalexey/rpcguard/outcome"
	"github.com/vyrodovalexey/rpcguard/reqcontext"
	"github.com/vyrodovalexey/rpcguard/tracing"
)

func TestMetadataCarrier_RoundTrip(t *testing.T) {
	md := metadata.New(nil)
	carrier := MetadataCarrier(md)

	carrier.Set("Traceparent", "value")
	assert.Equal(t, "value", carrier.Get("traceparent"))
	assert.Equal(t, "value", carrier.Get("Traceparent"))
	assert.Contains(t, carrier.Keys(), "traceparent")

	assert.Empty(t, carrier.Get("absent"))
}

func TestUnaryClientInterceptor_PropagatesContext(t *testing.T) {
	guard, err := rpcguard.New(nil)
	require.NoError(t, err)

	var gotMD metadata.MD
	invoker := func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		opts ...grpc.CallOption,
	) error {
		gotMD, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}

	interceptor := UnaryClientInterceptor(guard, "payments")

	deadline := time.Now().Add(time.Second)
	rc := reqcontext.New().WithDeadline(deadline)
	ctx := reqcontext.Inject(context.Background(), rc)

	err = interceptor(ctx, "/payments.v1.Payments/Charge", nil, nil, nil, invoker)
	require.NoError(t, err)

	require.NotNil(t, gotMD)
	carrier := MetadataCarrier(gotMD)
	assert.NotEmpty(t, carrier.Get("traceparent"))
	assert.NotEmpty(t, carrier.Get(reqcontext.DeadlineHeader))

	// The propagated context is a child of the caller's: same trace,
	// different span.
	remote := reqcontext.Extract(carrier)
	assert.Equal(t, rc.TraceID(), remote.TraceID())
	assert.NotEqual(t, rc.SpanID(), remote.SpanID())
}

func TestUnaryClientInterceptor_ReturnsInvokerError(t *testing.T) {
	guard, err := rpcguard.New(nil)
	require.NoError(t, err)

	invoker := func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		opts ...grpc.CallOption,
	) error {
		return context.Canceled
	}

	interceptor := UnaryClientInterceptor(guard, "payments")
	err = interceptor(context.Background(), "/m", nil, nil, nil, invoker)
	assert.Error(t, err)
}

func TestUnaryServerInterceptor_ContinuesTrace(t *testing.T) {
	remote := reqcontext.New().WithDeadline(time.Now().Add(time.Second))
	md := metadata.New(nil)
	remote.Inject(MetadataCarrier(md))

	ctx := metadata.NewIncomingContext(context.Background(), md)

	var handled *reqcontext.Context
	var handlerDeadline time.Time
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		handled, _ = reqcontext.FromGoContext(ctx)
		handlerDeadline, _ = ctx.Deadline()
		return "resp", nil
	}

	interceptor := UnaryServerInterceptor(nil)
	resp, err := interceptor(ctx, "req",
		&grpc.UnaryServerInfo{FullMethod: "/payments.v1.Payments/Charge"}, handler)

	require.NoError(t, err)
	assert.Equal(t, "resp", resp)

	require.NotNil(t, handled)
	assert.Equal(t, remote.TraceID(), handled.TraceID())

	dl, ok := remote.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, dl, handlerDeadline, 5*time.Millisecond)
}

func TestUnaryServerInterceptor_NoMetadataStartsTrace(t *testing.T) {
	var handled *reqcontext.Context
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		handled, _ = reqcontext.FromGoContext(ctx)
		return nil, nil
	}

	interceptor := UnaryServerInterceptor(nil)
	_, err := interceptor(context.Background(), nil,
		&grpc.UnaryServerInfo{FullMethod: "/m"}, handler)

	require.NoError(t, err)
	require.NotNil(t, handled)
	assert.True(t, handled.TraceID().IsValid())
}

func TestUnaryServerInterceptor_SpansHandler(t *testing.T) {
	sink := tracing.NewCaptureSink()
	tracer := tracing.NewTracer(tracing.WithSink(sink))

	interceptor := UnaryServerInterceptor(&ServerConfig{Tracer: tracer})
	_, err := interceptor(context.Background(), nil,
		&grpc.UnaryServerInfo{FullMethod: "/payments.v1.Payments/Charge"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, nil
		})

	require.NoError(t, err)
	spans := sink.Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, "/payments.v1.Payments/Charge", spans[0].Name)
	assert.Equal(t, tracing.OutcomeSuccess, spans[0].Outcome)
}

func TestUnaryServerInterceptor_ClassifiesHandlerErrors(t *testing.T) {
	sink := tracing.NewCaptureSink()
	tracer := tracing.NewTracer(tracing.WithSink(sink))
	classifier := outcome.ClassifierFunc(func(err error) outcome.Kind {
		if err == nil {
			return outcome.KindSuccess
		}
		return outcome.KindRetryable
	})

	interceptor := UnaryServerInterceptor(&ServerConfig{
		Tracer:     tracer,
		Classifier: classifier,
	})

	_, err := interceptor(context.Background(), nil,
		&grpc.UnaryServerInfo{FullMethod: "/m"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, errors.New("downstream hiccup")
		})
	require.Error(t, err)

	_, err = interceptor(context.Background(), nil,
		&grpc.UnaryServerInfo{FullMethod: "/m"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, context.DeadlineExceeded
		})
	require.Error(t, err)

	spans := sink.Spans()
	require.Len(t, spans, 2)

	// Server spans carry the same kind vocabulary as client spans.
	assert.Equal(t, tracing.OutcomeError, spans[0].Outcome)
	assert.Equal(t, "retryable", spans[0].ErrorKind)
	assert.Equal(t, tracing.OutcomeTimeout, spans[1].Outcome)
}
