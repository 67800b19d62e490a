package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"splan/backend/internal/audit"
	"splan/backend/internal/auth"
	"splan/backend/internal/server/interceptors"
	userdomain "splan/backend/internal/user/domain"
)

const (
	muxVarID           = "id"
	defaultAuditLimit  = 50
	maxAuditLimit      = 500
	msgInternalFailure = "internal error"
)

// SessionHandler serves login, logout and session management.
type SessionHandler struct {
	sessions  SessionService
	login     LoginService
	audit     audit.AuditLogger
	auditLogs AuditReader
	log       zerolog.Logger
}

func NewSessionHandler(deps Deps) *SessionHandler {
	return &SessionHandler{
		sessions:  deps.Sessions,
		login:     deps.Login,
		audit:     auditOrNop(deps.Audit),
		auditLogs: deps.AuditLogs,
		log:       deps.Log,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTP     string `json:"totp"`
}

type userView struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Firstname   string   `json:"firstname"`
	Lastname    string   `json:"lastname"`
	DisplayName string   `json:"displayName"`
	Type        string   `json:"type"`
	Permissions []string `json:"permissions,omitempty"`
}

func newUserView(u *userdomain.User, perms []string) userView {
	return userView{
		ID:          u.ID,
		Username:    u.Username,
		Firstname:   u.Firstname,
		Lastname:    u.Lastname,
		DisplayName: u.DisplayName(),
		Type:        string(u.Type),
		Permissions: perms,
	}
}

type loginResponse struct {
	Token   string   `json:"token"`
	Session string   `json:"session"`
	User    userView `json:"user"`
}

// Login checks credentials and returns a session token.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.login.Login(r.Context(), req.Username, req.Password, req.TOTP)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrSecondFactorRequired):
			writeJSON(w, h.log, http.StatusUnauthorized, map[string]interface{}{"error": err.Error(), "totpRequired": true})
		case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidSecondFactor):
			h.audit.LogEvent(r.Context(), 0, audit.ActionLoginFailure, audit.ResourceSession, fmt.Sprintf(`{"username":%q}`, req.Username))
			writeError(w, http.StatusUnauthorized, err.Error())
		default:
			h.log.Error().Err(err).Msg("login failed")
			writeError(w, http.StatusInternalServerError, msgInternalFailure)
		}
		return
	}
	h.audit.LogEvent(r.Context(), res.User.ID, audit.ActionLogin, audit.ResourceSession, "")
	writeJSON(w, h.log, http.StatusOK, loginResponse{Token: res.Token, Session: res.SessionID, User: newUserView(res.User, nil)})
}

// Logout revokes the caller's current session.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := h.sessions.Revoke(r.Context(), id.SessionID); err != nil {
		h.log.Error().Err(err).Msg("logout failed")
		writeError(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the caller's profile and permissions.
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFromContext(r.Context())
	if !ok || id.User == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, h.log, http.StatusOK, newUserView(id.User, id.Permissions))
}

type sessionView struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Current   bool      `json:"current"`
}

// ListSessions returns the caller's sessions.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	list, err := h.sessions.Sessions(r.Context(), id.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("list sessions failed")
		writeError(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}
	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		out = append(out, sessionView{ID: s.ID, CreatedAt: s.CreatedAt, Current: s.ID == id.SessionID})
	}
	writeJSON(w, h.log, http.StatusOK, out)
}

type adminSessionView struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// AdminListSessions returns every open session. Requires users.manage.
func (h *SessionHandler) AdminListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.sessions.AllSessions(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list all sessions failed")
		writeError(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}
	out := make([]adminSessionView, 0, len(list))
	for _, s := range list {
		out = append(out, adminSessionView{ID: s.ID, UserID: s.UserID, CreatedAt: s.CreatedAt})
	}
	writeJSON(w, h.log, http.StatusOK, out)
}

// RevokeAllSessions logs the caller out everywhere.
func (h *SessionHandler) RevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.revokeAll(w, r, id.UserID)
}

// AdminRevokeSessions logs another user out everywhere. Requires users.manage.
func (h *SessionHandler) AdminRevokeSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDVar(w, r)
	if !ok {
		return
	}
	h.revokeAll(w, r, userID)
}

func (h *SessionHandler) revokeAll(w http.ResponseWriter, r *http.Request, userID int64) {
	if err := h.sessions.RevokeAll(r.Context(), userID); err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("revoke all sessions failed")
		writeError(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type auditView struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AdminAuditLog lists a user's audit trail, newest first. Requires users.manage.
func (h *SessionHandler) AdminAuditLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDVar(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", defaultAuditLimit)
	if limit <= 0 || limit > maxAuditLimit {
		limit = defaultAuditLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	entries, err := h.auditLogs.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list audit log failed")
		writeError(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}
	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditView{ID: e.ID, Action: e.Action, Resource: e.Resource, IP: e.IP, Metadata: e.Metadata, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, h.log, http.StatusOK, out)
}

func userIDVar(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[muxVarID], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func auditOrNop(l audit.AuditLogger) audit.AuditLogger {
	if l == nil {
		return audit.Nop{}
	}
	return l
}
