package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"splan/backend/internal/permission"
	"splan/backend/internal/platform/rbac"
	"splan/backend/internal/server/interceptors"
)

const pathLogin = "/user/login"

// NewRouter builds the HTTP API. Every request passes client IP extraction, access logging and
// token verification before routing, so unknown paths are rejected with 401 unless they are free
// paths. Mutating requests by an authenticated caller are audited.
func NewRouter(deps Deps) http.Handler {
	deps.Audit = auditOrNop(deps.Audit)
	sessions := NewSessionHandler(deps)
	devices := NewDeviceHandler(deps)

	r := mux.NewRouter()
	r.Use(interceptors.AuditHTTP(deps.Audit))

	r.HandleFunc(pathLogin, sessions.Login).Methods(http.MethodPost)
	r.HandleFunc("/user/logout", sessions.Logout).Methods(http.MethodPost)
	r.HandleFunc("/user/me", sessions.Me).Methods(http.MethodGet)
	r.HandleFunc("/user/sessions", sessions.ListSessions).Methods(http.MethodGet)
	r.HandleFunc("/user/sessions", sessions.RevokeAllSessions).Methods(http.MethodDelete)

	manage := rbac.Middleware(permission.DevicesManage)
	r.Handle("/user/devices", manage(http.HandlerFunc(devices.List))).Methods(http.MethodGet)
	r.Handle("/user/devices", manage(http.HandlerFunc(devices.Register))).Methods(http.MethodPost)
	if deps.TelegramLinks != nil {
		r.Handle("/user/devices/telegram", manage(http.HandlerFunc(devices.LinkTelegram))).Methods(http.MethodPost)
	}
	if deps.Dispatcher != nil {
		r.Handle("/user/devices/test", manage(http.HandlerFunc(devices.TestPush))).Methods(http.MethodPost)
	}
	r.Handle("/user/devices/{id}", manage(http.HandlerFunc(devices.Delete))).Methods(http.MethodDelete)

	if deps.TOTP != nil {
		totp := NewTOTPHandler(deps)
		r.HandleFunc("/user/totp", totp.List).Methods(http.MethodGet)
		r.HandleFunc("/user/totp", totp.Enrol).Methods(http.MethodPost)
		r.HandleFunc("/user/totp/{id}/verify", totp.Verify).Methods(http.MethodPost)
		r.HandleFunc("/user/totp/{id}", totp.Remove).Methods(http.MethodDelete)
	}

	users := rbac.Middleware(permission.UsersManage)
	r.Handle("/sessions", users(http.HandlerFunc(sessions.AdminListSessions))).Methods(http.MethodGet)
	r.Handle("/users/{id:[0-9]+}/sessions", users(http.HandlerFunc(sessions.AdminRevokeSessions))).Methods(http.MethodDelete)
	if deps.AuditLogs != nil {
		r.Handle("/users/{id:[0-9]+}/audit", users(http.HandlerFunc(sessions.AdminAuditLog))).Methods(http.MethodGet)
	}
	if deps.Dispatcher != nil {
		r.Handle("/users/{id:[0-9]+}/devices/test", rbac.Middleware(permission.DevicesTest)(http.HandlerFunc(devices.AdminTestPush))).Methods(http.MethodPost)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	var h http.Handler = r
	h = interceptors.AuthHTTP(deps.Sessions, deps.FreePaths, deps.Log)(h)
	h = interceptors.TelemetryHTTP(deps.Log)(h)
	h = interceptors.ClientIPHTTP(h)
	return h
}
