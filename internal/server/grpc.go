package server

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"splan/backend/internal/server/interceptors"
)

// PublicMethods are the gRPC methods served without a token.
var PublicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// NewGRPCServer returns a gRPC server with access logging, token verification and otel
// instrumentation, serving the health service.
func NewGRPCServer(v interceptors.Verifier, health healthpb.HealthServer, log zerolog.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.TelemetryUnary(log, PublicMethods),
			interceptors.AuthUnary(v, PublicMethods, log),
		),
	)
	healthpb.RegisterHealthServer(s, health)
	return s
}
