package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"canny/backend/internal/logging"
)

// LoggingUnary logs each RPC at debug level, and failures other than
// NOT_FOUND or UNIMPLEMENTED at warn level.
func LoggingUnary(log logging.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = logging.Nop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		args := []any{
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", PeerIP(ctx),
		}
		switch code {
		case codes.OK, codes.NotFound, codes.Unimplemented:
			log.Debug(ctx, "grpc request", args...)
		default:
			log.Warn(ctx, "grpc request", append(args, "error", err)...)
		}
		return resp, err
	}
}
