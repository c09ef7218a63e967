package grpcmw

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vyrodovalexey/rpcguard/logging"
	"github.com/vyrodovalexey/rpcguard/middleware"
	"github.com/vyrodovalexey/rpcguard/outcome"
	"github.com/vyrodovalexey/rpcguard/reqcontext"
	"github.com/vyrodovalexey/rpcguard/tracing"
)

// ServerConfig configures the server-side interceptor.
type ServerConfig struct {
	// Tracer spans each handled request. Nil disables server spans.
	Tracer *tracing.Tracer

	// Classifier maps handler errors to outcome kinds on server spans.
	// Defaults to outcome.Auto().
	Classifier outcome.Classifier

	// Logger logs request completion at debug level with trace fields.
	Logger *zap.Logger
}

// UnaryServerInterceptor extracts the propagated request context from
// incoming metadata, narrows the Go context to the propagated deadline,
// and opens a server span around the handler.
func UnaryServerInterceptor(cfg *ServerConfig) grpc.UnaryServerInterceptor {
	if cfg == nil {
		cfg = &ServerConfig{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = outcome.Auto()
	}

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		rc := extractRequestContext(ctx)
		ctx = reqcontext.Inject(ctx, rc)

		// Honor the propagated deadline even when the transport did not
		// carry one of its own.
		if dl, ok := rc.Deadline(); ok {
			if existing, has := ctx.Deadline(); !has || dl.Before(existing) {
				var cancel context.CancelFunc
				ctx, cancel = context.WithDeadline(ctx, dl)
				defer cancel()
			}
		}

		start := time.Now()

		var span *tracing.Span
		if cfg.Tracer != nil {
			ctx, span = cfg.Tracer.StartSpan(ctx, info.FullMethod)
			defer span.Finish()
		}

		resp, err := handler(ctx, req)

		if span != nil {
			span.SetOutcome(middleware.SpanOutcome(err, classifier))
		}

		fields := append(logging.FieldsFromContext(ctx),
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.Bool("ok", err == nil),
		)
		logger.Debug("handled request", fields...)

		return resp, err
	}
}

// extractRequestContext reads the propagated request context from
// incoming metadata, starting a fresh trace when none arrived.
func extractRequestContext(ctx context.Context) *reqcontext.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		rc := reqcontext.New()
		if dl, has := ctx.Deadline(); has {
			rc = rc.WithDeadline(dl)
		}
		return rc
	}

	rc := reqcontext.Extract(MetadataCarrier(md))
	if dl, has := ctx.Deadline(); has {
		rc = rc.WithDeadline(dl)
	}
	return rc
}
