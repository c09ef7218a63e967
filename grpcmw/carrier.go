// Package grpcmw bridges the guard into gRPC: client interceptors run
// calls through a guard client and propagate trace identity and deadline
// over metadata; server interceptors pick both up on the other side.
package grpcmw

import (
	"strings"

	"google.golang.org/grpc/metadata"
)

// MetadataCarrier adapts grpc metadata.MD to propagation.TextMapCarrier.
// gRPC metadata keys are lowercase on the wire, so Get normalizes.
type MetadataCarrier metadata.MD

// Get returns the value associated with the passed key.
func (mc MetadataCarrier) Get(key string) string {
	vals := metadata.MD(mc).Get(strings.ToLower(key))
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Set stores the key-value pair.
func (mc MetadataCarrier) Set(key, value string) {
	metadata.MD(mc).Set(strings.ToLower(key), value)
}

// Keys lists the keys stored in this carrier.
func (mc MetadataCarrier) Keys() []string {
	keys := make([]string, 0, len(mc))
	for k := range mc {
		keys = append(keys, k)
	}
	return keys
}
