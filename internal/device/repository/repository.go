package repository

import (
	"context"

	"splan/backend/internal/device/domain"
)

// Repository defines persistence for push device registrations.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Device, error)
	ListByUser(ctx context.Context, userID int64) ([]*domain.Device, error)
	// Save inserts the device, or returns the existing registration with the same user, platform and payload.
	Save(ctx context.Context, d *domain.Device) error
	// Delete removes the device if it belongs to userID; reports whether a row was removed.
	Delete(ctx context.Context, id string, userID int64) (bool, error)
	// DeleteByEndpoint removes WebPush registrations whose subscription contains endpoint.
	DeleteByEndpoint(ctx context.Context, endpoint string) (int64, error)
	// DeleteByPayload removes registrations of platform with exactly this payload.
	DeleteByPayload(ctx context.Context, platform domain.Platform, payload string) (int64, error)
}
