package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	devicedomain "splan/backend/internal/device/domain"
	"splan/backend/internal/notify"
	"splan/backend/internal/security"
	"splan/backend/internal/server/interceptors"
)

// LinkMaxAge is how long a Telegram link token from /start stays redeemable.
const LinkMaxAge = time.Hour

const (
	defaultTestTitle = "Test notification"
	defaultTestBody  = "Push delivery is working."
)

// DeviceHandler serves device registration and test pushes.
type DeviceHandler struct {
	devices    DeviceStore
	dispatcher Dispatcher
	links      LinkConsumer
	log        zerolog.Logger
}

func NewDeviceHandler(deps Deps) *DeviceHandler {
	return &DeviceHandler{
		devices:    deps.Devices,
		dispatcher: deps.Dispatcher,
		links:      deps.TelegramLinks,
		log:        deps.Log,
	}
}

type registerDeviceRequest struct {
	Platform string          `json:"platform"`
	Payload  json.RawMessage `json:"payload"`
}

type deviceView struct {
	ID        string    `json:"id"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"createdAt"`
}

func newDeviceView(d *devicedomain.Device) deviceView {
	return deviceView{ID: d.ID, Platform: string(d.Platform), CreatedAt: d.CreatedAt}
}

// List returns the caller's registered devices. Payloads are not exposed.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	list, err := h.devices.ListByUser(r.Context(), id.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("list devices failed")
		writeError(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}
	out := make([]deviceView, 0, len(list))
	for _, d := range list {
		out = append(out, newDeviceView(d))
	}
	writeJSON(w, h.log, http.StatusOK, out)
}

// Register stores an FCM token or WebPush subscription for the caller.
// The payload may be a JSON string or, for WebPush, the subscription object itself.
// It is stored in normalised form.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req registerDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	platform := devicedomain.Platform(req.Platform)
	if platform == devicedomain.PlatformTelegram {
		writeError(w, http.StatusBadRequest, "telegram chats are linked through the bot")
		return
	}
	target, err := notify.ParseTarget(platform, rawPayload(req.Payload))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.save(w, r, &devicedomain.Device{UserID: id.UserID, Platform: platform, Payload: target.Payload()})
}

type linkTelegramRequest struct {
	Token string `json:"token"`
}

// LinkTelegram redeems a token handed out by the bot and registers its chat for the caller.
func (h *DeviceHandler) LinkTelegram(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req linkTelegramRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	chatID, found, err := h.links.Consume(r.Context(), security.HashOpaqueToken(req.Token), LinkMaxAge)
	if err != nil {
		h.log.Error().Err(err).Msg("consume telegram link failed")
		writeError(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "link token unknown or expired")
		return
	}
	h.save(w, r, &devicedomain.Device{
		UserID:   id.UserID,
		Platform: devicedomain.PlatformTelegram,
		Payload:  strconv.FormatInt(chatID, 10),
	})
}

func (h *DeviceHandler) save(w http.ResponseWriter, r *http.Request, d *devicedomain.Device) {
	if err := h.devices.Save(r.Context(), d); err != nil {
		h.log.Error().Err(err).Str("platform", string(d.Platform)).Msg("save device failed")
		writeError(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}
	writeJSON(w, h.log, http.StatusCreated, newDeviceView(d))
}

// Delete removes one of the caller's devices.
func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	removed, err := h.devices.Delete(r.Context(), mux.Vars(r)[muxVarID], id.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("delete device failed")
		writeError(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type testPushRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type failureView struct {
	DeviceID string `json:"deviceId"`
	Platform string `json:"platform"`
	Error    string `json:"error"`
}

type reportView struct {
	Attempted int           `json:"attempted"`
	Delivered int           `json:"delivered"`
	Pruned    int           `json:"pruned"`
	Failures  []failureView `json:"failures"`
}

// TestPush sends a notification to all of the caller's devices.
func (h *DeviceHandler) TestPush(w http.ResponseWriter, r *http.Request) {
	id, ok := interceptors.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.testPush(w, r, id.UserID)
}

// AdminTestPush sends a notification to another user's devices. Requires devices.test.
func (h *DeviceHandler) AdminTestPush(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDVar(w, r)
	if !ok {
		return
	}
	h.testPush(w, r, userID)
}

func (h *DeviceHandler) testPush(w http.ResponseWriter, r *http.Request, userID int64) {
	req := testPushRequest{Title: defaultTestTitle, Body: defaultTestBody}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	devices, err := h.devices.ListByUser(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("list devices failed")
		writeError(w, http.StatusInternalServerError, msgInternalFailure)
		return
	}
	report := h.dispatcher.SendBulk(r.Context(), devices, req.Title, req.Body)
	out := reportView{
		Attempted: report.Attempted,
		Delivered: report.Delivered,
		Pruned:    report.Pruned,
		Failures:  make([]failureView, 0, len(report.Failures)),
	}
	for _, f := range report.Failures {
		out.Failures = append(out.Failures, failureView{DeviceID: f.DeviceID, Platform: string(f.Platform), Error: f.Err.Error()})
	}
	code := http.StatusOK
	if report.AllFailed() {
		code = http.StatusBadGateway
	}
	writeJSON(w, h.log, code, out)
}

// rawPayload unwraps a JSON string; any other JSON value is stored verbatim.
func rawPayload(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if len(raw) == 0 || !json.Valid(raw) {
		return ""
	}
	return string(raw)
}
