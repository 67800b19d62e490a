package repository

import (
	"context"
	"time"

	"splan/backend/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID int64) ([]*domain.Session, error)
	ListAll(ctx context.Context) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID int64) error
	// DeleteOlderThan removes sessions created before cutoff and returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
