package repository

import (
	"context"

	"splan/backend/internal/mfa/domain"
)

// Repository defines persistence for second factors.
type Repository interface {
	Create(ctx context.Context, f *domain.Factor) error
	// GetByID returns the factor, or nil if it does not exist.
	GetByID(ctx context.Context, id string) (*domain.Factor, error)
	ListByUser(ctx context.Context, userID int64) ([]*domain.Factor, error)
	MarkVerified(ctx context.Context, id string) error
	// Delete removes the factor if it belongs to userID; reports whether a row was removed.
	Delete(ctx context.Context, id string, userID int64) (bool, error)
	HasVerified(ctx context.Context, userID int64) (bool, error)
}
