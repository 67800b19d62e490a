package interceptors

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// TelemetryHTTP logs one line per request with status, duration and client IP.
func TelemetryHTTP(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			ev := log.Info()
			if rec.status >= http.StatusInternalServerError {
				ev = log.Error()
			}
			e := ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Str("client_ip", ClientIP(r.Context()))
			if id, ok := IdentityFromContext(r.Context()); ok {
				e = e.Int64("user_id", id.UserID)
			}
			e.Msg("http_request")
		})
	}
}

// TelemetryUnary logs one line per RPC. skipMethods is the set of full method names not to
// log (e.g. the health check).
func TelemetryUnary(log zerolog.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if skipMethods[info.FullMethod] {
			return resp, err
		}
		log.Info().
			Str("full_method", info.FullMethod).
			Str("status_code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Str("client_ip", ClientIP(ctx)).
			Msg("grpc_request")
		return resp, err
	}
}
