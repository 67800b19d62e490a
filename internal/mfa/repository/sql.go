package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"splan/backend/internal/mfa/domain"
)

// SQLRepository stores factors in the second_factors table.
type SQLRepository struct {
	db *sqlx.DB
}

// NewSQLRepository returns a second factor repository that uses the given db for persistence.
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

type factorRow struct {
	ID        string    `db:"id"`
	UserID    int64     `db:"user_id"`
	Type      string    `db:"type"`
	Secret    string    `db:"secret"`
	Verified  bool      `db:"verified"`
	CreatedAt time.Time `db:"created_at"`
}

func (r factorRow) toDomain() *domain.Factor {
	return &domain.Factor{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      r.Type,
		Secret:    r.Secret,
		Verified:  r.Verified,
		CreatedAt: r.CreatedAt,
	}
}

const factorColumns = `id, user_id, type, secret, verified, created_at`

// Create persists f, assigning ID, Type and CreatedAt when unset.
func (r *SQLRepository) Create(ctx context.Context, f *domain.Factor) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Type == "" {
		f.Type = domain.TypeTOTP
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO second_factors (`+factorColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		f.ID, f.UserID, f.Type, f.Secret, f.Verified, f.CreatedAt)
	return err
}

// GetByID returns the factor for id, or nil if not found.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.Factor, error) {
	var row factorRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+factorColumns+` FROM second_factors WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ListByUser returns the user's factors, oldest first.
func (r *SQLRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Factor, error) {
	var rows []factorRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT `+factorColumns+` FROM second_factors WHERE user_id = ? ORDER BY created_at, id`), userID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Factor, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (r *SQLRepository) MarkVerified(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE second_factors SET verified = ? WHERE id = ?`), true, id)
	return err
}

// Delete removes the factor when it belongs to userID.
func (r *SQLRepository) Delete(ctx context.Context, id string, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM second_factors WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// HasVerified reports whether the user has at least one confirmed factor.
func (r *SQLRepository) HasVerified(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM second_factors WHERE user_id = ? AND verified = ?`), userID, true)
	return n > 0, err
}
