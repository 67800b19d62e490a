package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"splan/backend/internal/audit/domain"
)

type SQLRepository struct {
	db *sqlx.DB
}

// NewSQLRepository returns an audit log repository that uses the given db for persistence.
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

type auditRow struct {
	ID        string         `db:"id"`
	UserID    sql.NullInt64  `db:"user_id"`
	Action    string         `db:"action"`
	Resource  string         `db:"resource"`
	IP        string         `db:"ip"`
	Metadata  sql.NullString `db:"metadata"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r auditRow) toDomain() *domain.AuditLog {
	return &domain.AuditLog{
		ID:        r.ID,
		UserID:    r.UserID.Int64,
		Action:    r.Action,
		Resource:  r.Resource,
		IP:        r.IP,
		Metadata:  r.Metadata.String,
		CreatedAt: r.CreatedAt,
	}
}

const auditColumns = `id, user_id, action, resource, ip, metadata, created_at`

// GetByID returns the audit log for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	var row auditRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+auditColumns+` FROM audit_log WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ListByUser returns audit logs for the user, paginated by limit and offset.
func (r *SQLRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*domain.AuditLog, error) {
	var rows []auditRow
	q := r.db.Rebind(`SELECT ` + auditColumns + ` FROM audit_log WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &rows, q, userID, limit, offset); err != nil {
		return nil, err
	}
	out := make([]*domain.AuditLog, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// Create persists a. ID and CreatedAt must be set.
func (r *SQLRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	userID := sql.NullInt64{Int64: a.UserID, Valid: a.UserID != 0}
	metadata := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO audit_log (`+auditColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		a.ID, userID, a.Action, a.Resource, a.IP, metadata, a.CreatedAt.UTC())
	return err
}
