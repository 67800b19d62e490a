// Package rbac guards handlers with the permissions resolved for the caller.
package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"splan/backend/internal/auth"
	"splan/backend/internal/server/interceptors"
)

var (
	// ErrUnauthenticated means no verified identity is attached to the context.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrPermissionDenied means the caller lacks the permission.
	ErrPermissionDenied = errors.New("permission denied")
)

// RequirePermission returns the caller's identity when it holds perm.
func RequirePermission(ctx context.Context, perm string) (*auth.Identity, error) {
	id, ok := interceptors.IdentityFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	if !id.Can(perm) {
		return nil, ErrPermissionDenied
	}
	return id, nil
}

// Middleware rejects requests whose caller lacks perm with 401 or 403.
func Middleware(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := RequirePermission(r.Context(), perm); err != nil {
				code := http.StatusForbidden
				if errors.Is(err, ErrUnauthenticated) {
					code = http.StatusUnauthorized
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(code)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
