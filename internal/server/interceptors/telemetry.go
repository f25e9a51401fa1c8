package interceptors

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"canny/backend/internal/logging"
	"canny/backend/internal/telemetry"
)

// grpcRequestMetadata is the JSON body of grpc_request events.
type grpcRequestMetadata struct {
	FullMethod string `json:"full_method"`
	StatusCode string `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// TelemetryUnary returns a unary server interceptor that emits a grpc_request event after each RPC.
// Best-effort: failures are logged and do not fail the RPC. If emitter is nil, the interceptor no-ops.
// skipMethods is the set of full method names to not emit (e.g. probe traffic).
func TelemetryUnary(emitter telemetry.EventEmitter, log logging.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		meta := grpcRequestMetadata{
			FullMethod: info.FullMethod,
			StatusCode: code.String(),
			DurationMs: time.Since(start).Milliseconds(),
			ClientIP:   PeerIP(ctx),
		}
		metaJSON, _ := json.Marshal(meta)
		telemetry.EmitAsync(ctx, emitter, &telemetry.Event{
			Type:   telemetry.EventGRPCRequest,
			Source: telemetry.SourceOps,
			Attrs: map[string]string{
				"rpc.method":           info.FullMethod,
				"rpc.grpc.status_code": code.String(),
			},
			Metadata:  metaJSON,
			CreatedAt: time.Now().UTC(),
		}, log)
		return resp, err
	}
}
