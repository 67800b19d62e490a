package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"splan/backend/internal/session/domain"
)

// SQLRepository stores sessions in the user_token table.
type SQLRepository struct {
	db *sqlx.DB
}

// NewSQLRepository returns a session repository that uses the given db for persistence.
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

type sessionRow struct {
	TokenIdentifier string    `db:"token_identifier"`
	UserID          int64     `db:"user_id"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r sessionRow) toDomain() *domain.Session {
	return &domain.Session{ID: r.TokenIdentifier, UserID: r.UserID, CreatedAt: r.CreatedAt}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT token_identifier, user_id, created_at FROM user_token WHERE token_identifier = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ListByUser returns the user's sessions, newest first.
func (r *SQLRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Session, error) {
	var rows []sessionRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT token_identifier, user_id, created_at FROM user_token WHERE user_id = ? ORDER BY created_at DESC`), userID)
	if err != nil {
		return nil, err
	}
	return toDomainList(rows), nil
}

// ListAll returns every stored session, newest first.
func (r *SQLRepository) ListAll(ctx context.Context) ([]*domain.Session, error) {
	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT token_identifier, user_id, created_at FROM user_token ORDER BY created_at DESC`); err != nil {
		return nil, err
	}
	return toDomainList(rows), nil
}

// Create persists the session. The session must have ID set; a zero CreatedAt is set to now.
func (r *SQLRepository) Create(ctx context.Context, s *domain.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO user_token (token_identifier, user_id, created_at) VALUES (?, ?, ?)`),
		s.ID, s.UserID, s.CreatedAt)
	return err
}

// Delete removes the session row. Missing rows are not an error.
func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM user_token WHERE token_identifier = ?`), id)
	return err
}

// DeleteByUser removes every session of the user.
func (r *SQLRepository) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM user_token WHERE user_id = ?`), userID)
	return err
}

// DeleteOlderThan removes sessions created before cutoff.
func (r *SQLRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM user_token WHERE created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func toDomainList(rows []sessionRow) []*domain.Session {
	out := make([]*domain.Session, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out
}
