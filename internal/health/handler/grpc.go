package handler

import (
	"context"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"canny/backend/internal/health"
)

// Server implements grpc.health.v1.Health for readiness/liveness probes on the ops port.
type Server struct {
	healthpb.UnimplementedHealthServer
	checker *health.Checker
}

// NewServer returns a Health gRPC server backed by checker. A nil checker always reports SERVING.
func NewServer(checker *health.Checker) *Server {
	return &Server{checker: checker}
}

// Check returns SERVING when the database answers, NOT_SERVING otherwise.
// A failing dependency is reported in the status, never as a gRPC error.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if err := s.checker.Check(ctx); err != nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
