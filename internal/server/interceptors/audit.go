package interceptors

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"splan/backend/internal/audit"
)

// AuditHTTP returns middleware that records an audit entry after each authenticated,
// state-changing request (POST, PUT, PATCH, DELETE). Action and resource come from the
// matched route template; the response status goes into metadata. Unauthenticated requests
// are not recorded here; the login handler records its own events.
func AuditHTTP(logger audit.AuditLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			id, ok := IdentityFromContext(r.Context())
			if !ok {
				return
			}
			template := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if t, err := route.GetPathTemplate(); err == nil {
					template = t
				}
			}
			ar := audit.ParseRoute(r.Method, template)
			logger.LogEvent(r.Context(), id.UserID, ar.Action, ar.Resource, fmt.Sprintf(`{"status":%d}`, rec.status))
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.written = true
	return r.ResponseWriter.Write(b)
}
