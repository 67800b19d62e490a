package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"splan/backend/internal/db"
	"splan/backend/internal/device/domain"
)

// SQLRepository stores registrations in the devices table.
type SQLRepository struct {
	db *sqlx.DB
}

// NewSQLRepository returns a device repository that uses the given db for persistence.
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

type deviceRow struct {
	ID        string    `db:"id"`
	UserID    int64     `db:"user_id"`
	Platform  string    `db:"platform"`
	DeviceID  string    `db:"device_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (r deviceRow) toDomain() *domain.Device {
	return &domain.Device{
		ID:        r.ID,
		UserID:    r.UserID,
		Platform:  domain.Platform(r.Platform),
		Payload:   r.DeviceID,
		CreatedAt: r.CreatedAt,
	}
}

const deviceColumns = `id, user_id, platform, device_id, created_at`

// GetByID returns the device for id, or nil if not found.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.Device, error) {
	var row deviceRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+deviceColumns+` FROM devices WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ListByUser returns the user's registrations in registration order.
func (r *SQLRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Device, error) {
	var rows []deviceRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT `+deviceColumns+` FROM devices WHERE user_id = ? ORDER BY created_at, id`), userID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Device, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// Save validates and inserts d, assigning ID and CreatedAt. When the same user already
// registered the same payload on the same platform, d is filled from the existing row instead.
func (r *SQLRepository) Save(ctx context.Context, d *domain.Device) error {
	if err := d.Validate(); err != nil {
		return err
	}
	find := r.db.Rebind(`SELECT ` + deviceColumns + ` FROM devices WHERE user_id = ? AND platform = ? AND device_id = ?`)
	insert := r.db.Rebind(`INSERT INTO devices (id, user_id, platform, device_id, created_at) VALUES (?, ?, ?, ?, ?)`)
	return db.WithConn(ctx, r.db, func(conn *sqlx.Conn) error {
		var existing deviceRow
		err := conn.GetContext(ctx, &existing, find, d.UserID, string(d.Platform), d.Payload)
		if err == nil {
			*d = *existing.toDomain()
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = time.Now().UTC()
		}
		_, err = conn.ExecContext(ctx, insert, d.ID, d.UserID, string(d.Platform), d.Payload, d.CreatedAt)
		return err
	})
}

// Delete removes the device if it belongs to userID.
func (r *SQLRepository) Delete(ctx context.Context, id string, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM devices WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteByEndpoint removes WebPush registrations whose stored subscription contains endpoint.
// LIKE wildcards in the endpoint are escaped so they match literally.
func (r *SQLRepository) DeleteByEndpoint(ctx context.Context, endpoint string) (int64, error) {
	if endpoint == "" {
		return 0, nil
	}
	pattern := "%" + escapeLike(endpoint) + "%"
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM devices WHERE platform = ? AND device_id LIKE ? ESCAPE '!'`),
		string(domain.PlatformWebPush), pattern)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByPayload removes registrations of platform whose payload equals payload.
func (r *SQLRepository) DeleteByPayload(ctx context.Context, platform domain.Platform, payload string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM devices WHERE platform = ? AND device_id = ?`), string(platform), payload)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
