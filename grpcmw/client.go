package grpcmw

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vyrodovalexey/rpcguard"
	"github.com/vyrodovalexey/rpcguard/reqcontext"
)

// UnaryClientInterceptor runs every outgoing unary call through the
// guard client under the given dependency name, with the full method as
// the operation. The call's request context is injected into outgoing
// metadata so the peer continues the same trace and deadline.
//
// Idempotency cannot be inferred from a method name; pass
// rpcguard.WithIdempotent() in opts only when every method on the
// connection is safe to retry, or use per-call guard calls otherwise.
func UnaryClientInterceptor(
	guard *rpcguard.Client,
	dependency string,
	opts ...rpcguard.CallOption,
) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		callOpts ...grpc.CallOption,
	) error {
		_, err := guard.Call(ctx, dependency, method,
			func(ctx context.Context) (interface{}, error) {
				ctx = injectMetadata(ctx)
				return nil, invoker(ctx, method, req, reply, cc, callOpts...)
			},
			opts...,
		)
		return err
	}
}

// injectMetadata copies the request context carried by ctx into outgoing
// gRPC metadata.
func injectMetadata(ctx context.Context) context.Context {
	rc, ok := reqcontext.FromGoContext(ctx)
	if !ok {
		return ctx
	}

	md, exists := metadata.FromOutgoingContext(ctx)
	if exists {
		md = md.Copy()
	} else {
		md = metadata.New(nil)
	}

	rc.Inject(MetadataCarrier(md))
	return metadata.NewOutgoingContext(ctx, md)
}
