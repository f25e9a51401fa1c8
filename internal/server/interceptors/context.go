// Package interceptors holds the unary interceptors of the gRPC ops server.
package interceptors

import (
	"context"
	"net"

	"google.golang.org/grpc/peer"
)

// PeerIP returns the caller's IP from the gRPC peer, or "unknown".
func PeerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
