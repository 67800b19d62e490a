package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"splan/backend/internal/db"
	"splan/backend/internal/user/domain"
)

// SQLRepository stores users in the users and user_permissions tables.
type SQLRepository struct {
	db *sqlx.DB
}

// NewSQLRepository returns a user repository that uses the given db for persistence.
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

type userRow struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	Firstname    string `db:"firstname"`
	Lastname     string `db:"lastname"`
	Type         string `db:"type"`
	PasswordHash string `db:"password_hash"`
	Active       bool   `db:"active"`
}

const userColumns = `id, username, firstname, lastname, type, password_hash, active`

func (r userRow) toDomain() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Username:     r.Username,
		Firstname:    r.Firstname,
		Lastname:     r.Lastname,
		Type:         domain.Type(r.Type),
		PasswordHash: r.PasswordHash,
		Active:       r.Active,
	}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByUsername returns the user with the given username, or nil if not found.
func (r *SQLRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (r *SQLRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// Create validates and inserts the user, then reads back the generated id on the same
// connection. Reading by username works for every driver, including pgx which has no LastInsertId.
func (r *SQLRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	insert := r.db.Rebind(`INSERT INTO users (username, firstname, lastname, type, password_hash, active) VALUES (?, ?, ?, ?, ?, ?)`)
	lookup := r.db.Rebind(`SELECT id FROM users WHERE username = ?`)
	return db.WithConn(ctx, r.db, func(conn *sqlx.Conn) error {
		if _, err := conn.ExecContext(ctx, insert, u.Username, u.Firstname, u.Lastname, string(u.Type), u.PasswordHash, u.Active); err != nil {
			return err
		}
		return conn.GetContext(ctx, &u.ID, lookup, u.Username)
	})
}

// Permissions returns the permission names granted to the user.
func (r *SQLRepository) Permissions(ctx context.Context, userID int64) ([]string, error) {
	var perms []string
	err := r.db.SelectContext(ctx, &perms, r.db.Rebind(`SELECT permission FROM user_permissions WHERE user_id = ? ORDER BY permission`), userID)
	if err != nil {
		return nil, err
	}
	return perms, nil
}

// Grant adds a permission to the user. Granting an existing permission is a no-op.
func (r *SQLRepository) Grant(ctx context.Context, userID int64, permission string) error {
	existing := r.db.Rebind(`SELECT COUNT(*) FROM user_permissions WHERE user_id = ? AND permission = ?`)
	insert := r.db.Rebind(`INSERT INTO user_permissions (user_id, permission) VALUES (?, ?)`)
	return db.WithConn(ctx, r.db, func(conn *sqlx.Conn) error {
		var n int
		if err := conn.GetContext(ctx, &n, existing, userID, permission); err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err := conn.ExecContext(ctx, insert, userID, permission)
		return err
	})
}
