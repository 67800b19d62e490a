package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"splan/backend/internal/audit"
	auditdomain "splan/backend/internal/audit/domain"
	"splan/backend/internal/auth"
	devicedomain "splan/backend/internal/device/domain"
	"splan/backend/internal/mfa"
	mfadomain "splan/backend/internal/mfa/domain"
	"splan/backend/internal/notify"
	"splan/backend/internal/server/interceptors"
	sessiondomain "splan/backend/internal/session/domain"
)

// SessionService verifies tokens and manages the caller's sessions (auth.Service).
type SessionService interface {
	interceptors.Verifier
	Revoke(ctx context.Context, sessionID string) error
	RevokeAll(ctx context.Context, userID int64) error
	Sessions(ctx context.Context, userID int64) ([]*sessiondomain.Session, error)
	AllSessions(ctx context.Context) ([]*sessiondomain.Session, error)
}

// LoginService checks credentials and opens a session (auth.Authenticator).
type LoginService interface {
	Login(ctx context.Context, username, password, totpCode string) (*auth.LoginResult, error)
}

// DeviceStore is the device repository as used by the handlers.
type DeviceStore interface {
	ListByUser(ctx context.Context, userID int64) ([]*devicedomain.Device, error)
	Save(ctx context.Context, d *devicedomain.Device) error
	Delete(ctx context.Context, id string, userID int64) (bool, error)
}

// Dispatcher sends a notification to a list of devices (notify.Dispatcher).
type Dispatcher interface {
	SendBulk(ctx context.Context, devices []*devicedomain.Device, title, body string) notify.Report
}

// SecondFactors manages TOTP factors (mfa.Service).
type SecondFactors interface {
	Enrol(ctx context.Context, userID int64, accountName string) (*mfa.Enrolment, error)
	Confirm(ctx context.Context, userID int64, id, code string) error
	Remove(ctx context.Context, userID int64, id string) error
	List(ctx context.Context, userID int64) ([]*mfadomain.Factor, error)
}

// LinkConsumer redeems Telegram link tokens (telegram.LinkRepository).
type LinkConsumer interface {
	Consume(ctx context.Context, tokenHash string, maxAge time.Duration) (int64, bool, error)
}

// AuditReader lists a user's audit trail (audit repository).
type AuditReader interface {
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*auditdomain.AuditLog, error)
}

// Deps holds the services behind the HTTP API. TOTP, TelegramLinks, Dispatcher and AuditLogs
// are optional; their routes are not registered when nil.
type Deps struct {
	Sessions      SessionService
	Login         LoginService
	Devices       DeviceStore
	Dispatcher    Dispatcher
	TOTP          SecondFactors
	TelegramLinks LinkConsumer
	Audit         audit.AuditLogger
	AuditLogs     AuditReader
	// FreePaths are exact paths served without a token (AUTH_FREE_PATHS).
	FreePaths []string
	Log       zerolog.Logger
}
