package handler

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the named service reported alongside the overall ("") status.
const ServiceName = "splan"

// Pinger checks database connectivity (e.g. *sqlx.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the permission policy evaluates (e.g. *permission.Resolver).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server implements grpc.health.v1.Health for readiness and liveness checks.
type Server struct {
	healthpb.UnimplementedHealthServer
	pinger  Pinger
	checker PolicyChecker
	log     zerolog.Logger
}

// NewServer returns a health server. pinger and checker may be nil; nil checks are skipped.
func NewServer(pinger Pinger, checker PolicyChecker, log zerolog.Logger) *Server {
	return &Server{pinger: pinger, checker: checker, log: log}
}

// Check reports SERVING when the database answers and the policy evaluates, NOT_SERVING otherwise.
// Dependency failures are reported through the status, never as a gRPC error.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			s.log.Warn().Err(err).Msg("health: database ping failed")
			return notServing(), nil
		}
	}
	if s.checker != nil {
		if err := s.checker.HealthCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("health: policy check failed")
			return notServing(), nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

func notServing() *healthpb.HealthCheckResponse {
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}
}
