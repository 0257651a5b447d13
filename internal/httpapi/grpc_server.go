package httpapi

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"ebdconsole.org/internal/obs"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// GRPCHealth serves grpc.health.v1 for orchestrators that probe over gRPC.
// Both the empty service name and serviceName report the readiness probe.
type GRPCHealth struct {
	grpc_health_v1.UnimplementedHealthServer

	readiness readinessChecker
}

func NewGRPCHealth(r readinessChecker) *GRPCHealth {
	return &GRPCHealth{readiness: r}
}

func (s *GRPCHealth) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != serviceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}, nil
	}
	obs.SetReady(true)
	return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_SERVING}, nil
}
