package auth

import "errors"

// Sentinel errors for token verification; the middleware maps the first three to 401.
var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrRevokedSession   = errors.New("session revoked or unknown")
	ErrUnknownUser      = errors.New("user no longer exists")
	ErrStorage          = errors.New("credential store failure")
)

// Sentinel errors for login.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSecondFactorRequired = errors.New("second factor code required")
	ErrInvalidSecondFactor  = errors.New("invalid second factor code")
)

// IsUnauthenticated reports whether err means the caller presented no valid credentials,
// as opposed to a server-side fault.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrRevokedSession) ||
		errors.Is(err, ErrUnknownUser)
}
