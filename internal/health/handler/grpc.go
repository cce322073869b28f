package handler

import (
	"context"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer implements grpc.health.v1.Health on top of Server.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer
	checker *Server
}

// NewGRPCServer wraps checker for the gRPC health protocol.
func NewGRPCServer(checker *Server) *GRPCServer {
	return &GRPCServer{checker: checker}
}

// Check reports NOT_SERVING instead of an RPC error when a dependency is down.
func (g *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if err := g.checker.Check(ctx); err != nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
