package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"splan/backend/internal/mfa"
	"splan/backend/internal/server/interceptors"
)

// TOTPHandler serves second factor enrolment.
type TOTPHandler struct {
	factors SecondFactors
	log     zerolog.Logger
}

func NewTOTPHandler(deps Deps) *TOTPHandler {
	return &TOTPHandler{factors: deps.TOTP, log: deps.Log}
}

type factorView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

type enrolmentView struct {
	factorView
	URL string `json:"url"`
}

type verifyFactorRequest struct {
	Code string `json:"code"`
}

func (h *TOTPHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	list, err := h.factors.List(r.Context(), id.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("list factors failed")
		writeError(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}
	out := make([]factorView, 0, len(list))
	for _, f := range list {
		out = append(out, factorView{ID: f.ID, Type: f.Type, Verified: f.Verified, CreatedAt: f.CreatedAt})
	}
	writeJSON(w, h.log, http.StatusOK, out)
}

// Enrol creates an unconfirmed factor and returns its otpauth:// URL. The secret is only shown here.
func (h *TOTPHandler) Enrol(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	account := ""
	if id.User != nil {
		account = id.User.Username
	}
	e, err := h.factors.Enrol(r.Context(), id.UserID, account)
	if err != nil {
		h.log.Error().Err(err).Msg("enrol factor failed")
		writeError(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}
	f := e.Factor
	writeJSON(w, h.log, http.StatusCreated, enrolmentView{
		factorView: factorView{ID: f.ID, Type: f.Type, Verified: f.Verified, CreatedAt: f.CreatedAt},
		URL:        e.URL,
	})
}

// Verify confirms a factor with a current code.
func (h *TOTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req verifyFactorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := h.factors.Confirm(r.Context(), id.UserID, mux.Vars(r)[muxVarID], req.Code)
	if err != nil {
		h.writeFactorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TOTPHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := h.factors.Remove(r.Context(), id.UserID, mux.Vars(r)[muxVarID]); err != nil {
		h.writeFactorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TOTPHandler) writeFactorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mfa.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mfa.ErrInvalidCode):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, mfa.ErrAlreadyVerified):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Msg("factor operation failed")
		writeError(w, http.StatusInternalServerError, msgInternalFailure)
	}
}
