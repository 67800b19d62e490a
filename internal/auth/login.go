package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	userdomain "splan/backend/internal/user/domain"
)

// PasswordHasher verifies stored password hashes.
type PasswordHasher interface {
	Compare(hash string, password []byte) error
	CompareDummy(password []byte)
}

// SecondFactor checks TOTP codes for users who enrolled one.
type SecondFactor interface {
	// Required reports whether the user has a confirmed second factor.
	Required(ctx context.Context, userID int64) (bool, error)
	// Check reports whether code is valid for any of the user's confirmed factors.
	Check(ctx context.Context, userID int64, code string) (bool, error)
}

// LoginResult is a successful login.
type LoginResult struct {
	Token     string
	SessionID string
	User      *userdomain.User
}

// Authenticator verifies username and password (plus TOTP when enrolled) and opens a session.
type Authenticator struct {
	service *Service
	hasher  PasswordHasher
	factors SecondFactor
}

// NewAuthenticator returns an Authenticator. factors may be nil to disable second factor checks.
func NewAuthenticator(service *Service, hasher PasswordHasher, factors SecondFactor) *Authenticator {
	return &Authenticator{service: service, hasher: hasher, factors: factors}
}

// Login checks credentials and returns a new session token.
// Unknown users, inactive users and wrong passwords all return ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, username, password, totpCode string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := a.service.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: user lookup: %w", ErrStorage, err)
	}
	if user == nil {
		a.hasher.CompareDummy([]byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := a.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrInvalidCredentials
	}

	if a.factors != nil {
		required, err := a.factors.Required(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: second factor lookup: %w", ErrStorage, err)
		}
		if required {
			if strings.TrimSpace(totpCode) == "" {
				return nil, ErrSecondFactorRequired
			}
			ok, err := a.factors.Check(ctx, user.ID, totpCode)
			if err != nil {
				return nil, fmt.Errorf("%w: second factor check: %w", ErrStorage, err)
			}
			if !ok {
				return nil, ErrInvalidSecondFactor
			}
		}
	}

	sessionID := uuid.NewString()
	token, err := a.service.Create(ctx, user.ID, string(user.Type), sessionID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, SessionID: sessionID, User: user}, nil
}
