package interceptors

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"splan/backend/internal/auth"
)

const (
	bearerPrefix   = "bearer "
	webcalPrefix   = "/webcal/"
	headerAccess   = "x-access-token"
	headerAuthz    = "authorization"
	msgUnauth      = "missing or invalid authorization"
	msgInternalErr = "internal error"
)

// Verifier turns a raw session token into the caller's identity.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*auth.Identity, error)
}

// AuthHTTP returns middleware that verifies the session token on every request except
// exact matches in freePaths, OPTIONS requests and paths under /webcal/.
// The token is read from x-access-token, else authorization, with an optional "Bearer " prefix.
// Rejected tokens get 401; verifier faults get 500. The identity is stored in the request context.
func AuthHTTP(v Verifier, freePaths []string, log zerolog.Logger) func(http.Handler) http.Handler {
	free := make(map[string]bool, len(freePaths))
	for _, p := range freePaths {
		free[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || free[r.URL.Path] || strings.HasPrefix(r.URL.Path, webcalPrefix) {
				log.Debug().Str("path", r.URL.Path).Str("method", r.Method).Msg("auth exempt")
				next.ServeHTTP(w, r)
				return
			}

			token := tokenFrom(r.Header.Get(headerAccess), r.Header.Get(headerAuthz))
			if token == "" {
				writeAuthError(w, http.StatusUnauthorized, msgUnauth)
				return
			}
			id, err := v.Verify(r.Context(), token)
			if err != nil {
				if auth.IsUnauthenticated(err) {
					log.Warn().Err(err).Str("path", r.URL.Path).Msg("token rejected")
					writeAuthError(w, http.StatusUnauthorized, msgUnauth)
					return
				}
				log.Error().Err(err).Str("path", r.URL.Path).Msg("token verification failed")
				writeAuthError(w, http.StatusInternalServerError, msgInternalErr)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// AuthUnary is the gRPC twin of AuthHTTP. publicMethods is the set of full method names
// that do not require a token (e.g. the health service).
func AuthUnary(v Verifier, publicMethods map[string]bool, log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			log.Debug().Str("method", info.FullMethod).Msg("auth exempt")
			return handler(ctx, req)
		}
		token := extractToken(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, msgUnauth)
		}
		id, err := v.Verify(ctx, token)
		if err != nil {
			if auth.IsUnauthenticated(err) {
				log.Warn().Err(err).Str("method", info.FullMethod).Msg("token rejected")
				return nil, status.Error(codes.Unauthenticated, msgUnauth)
			}
			log.Error().Err(err).Str("method", info.FullMethod).Msg("token verification failed")
			return nil, status.Error(codes.Internal, msgInternalErr)
		}
		return handler(WithIdentity(ctx, id), req)
	}
}

// extractToken returns the token from ctx metadata, or "" if missing.
func extractToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	return tokenFrom(first(md.Get(headerAccess)), first(md.Get(headerAuthz)))
}

// tokenFrom prefers the x-access-token value and strips a case-insensitive "Bearer " prefix.
func tokenFrom(accessToken, authorization string) string {
	v := strings.TrimSpace(accessToken)
	if v == "" {
		v = strings.TrimSpace(authorization)
	}
	if strings.EqualFold(v, strings.TrimSpace(bearerPrefix)) {
		return ""
	}
	if len(v) >= len(bearerPrefix) && strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		v = strings.TrimSpace(v[len(bearerPrefix):])
	}
	return v
}

func writeAuthError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
