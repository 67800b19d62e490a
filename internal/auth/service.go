// Package auth issues, verifies and revokes session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"splan/backend/internal/security"
	sessiondomain "splan/backend/internal/session/domain"
	userdomain "splan/backend/internal/user/domain"
)

// SessionRepo is the session store needed by the service.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	ListByUser(ctx context.Context, userID int64) ([]*sessiondomain.Session, error)
	ListAll(ctx context.Context) ([]*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID int64) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserRepo is the user lookup needed by the service.
type UserRepo interface {
	GetByID(ctx context.Context, id int64) (*userdomain.User, error)
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
	Permissions(ctx context.Context, userID int64) ([]string, error)
}

// PermissionResolver turns a user type and explicit grants into effective permissions.
type PermissionResolver interface {
	Resolve(ctx context.Context, userType string, grants []string) ([]string, error)
}

// Service creates, verifies and revokes session tokens.
type Service struct {
	sessions    SessionRepo
	users       UserRepo
	permissions PermissionResolver
	tokens      *security.TokenProvider
	log         zerolog.Logger
	now         func() time.Time
}

// NewService returns a Service with the given dependencies.
func NewService(sessions SessionRepo, users UserRepo, permissions PermissionResolver, tokens *security.TokenProvider, log zerolog.Logger) *Service {
	return &Service{
		sessions:    sessions,
		users:       users,
		permissions: permissions,
		tokens:      tokens,
		log:         log,
		now:         time.Now,
	}
}

// Create stores a session for the user and returns a signed token bound to it.
// An empty sessionID is replaced with a random UUID. The session row is written before
// signing; if signing fails the row is removed again.
func (s *Service) Create(ctx context.Context, userID int64, userType, sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sess := &sessiondomain.Session{ID: sessionID, UserID: userID, CreatedAt: s.now().UTC()}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return "", fmt.Errorf("%w: create session: %w", ErrStorage, err)
	}
	token, err := s.tokens.Issue(userID, sessionID, userType)
	if err != nil {
		if delErr := s.sessions.Delete(ctx, sessionID); delErr != nil {
			s.log.Error().Err(delErr).Str("session", sessionID).Msg("auth: remove session after signing failure")
		}
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks the token signature, that its session still exists and belongs to the
// token's user, and that the user still exists. It returns the caller's identity with
// resolved permissions.
func (s *Service) Verify(ctx context.Context, raw string) (*Identity, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, ErrInvalidSignature
	}

	sess, err := s.sessions.GetByID(ctx, claims.Session)
	if err != nil {
		return nil, fmt.Errorf("%w: session lookup: %w", ErrStorage, err)
	}
	if sess == nil || sess.UserID != claims.UserID {
		return nil, ErrRevokedSession
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: user lookup: %w", ErrStorage, err)
	}
	if user == nil || !user.Active {
		return nil, ErrUnknownUser
	}

	grants, err := s.users.Permissions(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: permission lookup: %w", ErrStorage, err)
	}
	userType := claims.UserType
	if userType == "" {
		userType = string(user.Type)
	}
	perms, err := s.permissions.Resolve(ctx, userType, grants)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}

	return &Identity{
		UserID:      user.ID,
		UserType:    userType,
		SessionID:   sess.ID,
		Permissions: perms,
		User:        user,
	}, nil
}

// Revoke deletes the session. Revoking an unknown session succeeds.
func (s *Service) Revoke(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: revoke session: %w", ErrStorage, err)
	}
	return nil
}

// RevokeAll deletes every session of the user.
func (s *Service) RevokeAll(ctx context.Context, userID int64) error {
	if err := s.sessions.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: revoke user sessions: %w", ErrStorage, err)
	}
	return nil
}

// Sessions lists the user's sessions, newest first.
func (s *Service) Sessions(ctx context.Context, userID int64) ([]*sessiondomain.Session, error) {
	list, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", ErrStorage, err)
	}
	return list, nil
}

// AllSessions lists every stored session, newest first.
func (s *Service) AllSessions(ctx context.Context) ([]*sessiondomain.Session, error) {
	list, err := s.sessions.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %w", ErrStorage, err)
	}
	return list, nil
}

// PruneSessions deletes sessions older than maxAge. A non-positive maxAge prunes nothing.
func (s *Service) PruneSessions(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	n, err := s.sessions.DeleteOlderThan(ctx, s.now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("%w: prune sessions: %w", ErrStorage, err)
	}
	return n, nil
}

// RunPruner calls PruneSessions every interval until ctx is done.
func (s *Service) RunPruner(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PruneSessions(ctx, maxAge)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.log.Error().Err(err).Msg("auth: session pruning failed")
				}
				continue
			}
			if n > 0 {
				s.log.Info().Int64("removed", n).Msg("auth: pruned expired sessions")
			}
		}
	}
}
