package repository

import (
	"context"

	"splan/backend/internal/user/domain"
)

// Repository defines persistence for users and their permission grants.
type Repository interface {
	// GetByID returns the user for id, or nil if not found.
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// GetByUsername returns the user with the given username, or nil if not found.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// Create persists the user and sets u.ID.
	Create(ctx context.Context, u *domain.User) error
	Permissions(ctx context.Context, userID int64) ([]string, error)
	Grant(ctx context.Context, userID int64, permission string) error
}
