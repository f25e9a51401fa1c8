package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"canny/backend/internal/health"
	healthhandler "canny/backend/internal/health/handler"
	"canny/backend/internal/logging"
	"canny/backend/internal/server/interceptors"
	"canny/backend/internal/telemetry"
)

// healthCheckMethod is probe traffic and emits no telemetry.
const healthCheckMethod = "/grpc.health.v1.Health/Check"

// NewOpsServer returns the gRPC ops server: grpc.health.v1.Health backed by
// checker, plus server reflection. Calls are traced with otelgrpc, logged, and
// reported to emitter. emitter and log may be nil.
func NewOpsServer(checker *health.Checker, emitter telemetry.EventEmitter, log logging.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingUnary(log),
			interceptors.TelemetryUnary(emitter, log, map[string]bool{healthCheckMethod: true}),
		),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterOpsServices(s, checker)
	return s
}

// RegisterOpsServices registers the health and reflection services on s.
func RegisterOpsServices(s *grpc.Server, checker *health.Checker) {
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(checker))
	reflection.Register(s)
}
