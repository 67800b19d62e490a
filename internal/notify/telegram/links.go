package telegram

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"splan/backend/internal/db"
)

// LinkRepository stores pending chat link requests in telegram_links, keyed by the hashed link token.
type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// Create records that the link token hash belongs to chatID.
func (r *LinkRepository) Create(ctx context.Context, tokenHash string, chatID int64) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO telegram_links (token, chat_id, created_at) VALUES (?, ?, ?)`),
		tokenHash, chatID, time.Now().UTC())
	return err
}

// Consume deletes the link request and returns its chat id. ok is false when the token is
// unknown or older than maxAge; a stale request is deleted either way.
func (r *LinkRepository) Consume(ctx context.Context, tokenHash string, maxAge time.Duration) (chatID int64, ok bool, err error) {
	err = db.WithConn(ctx, r.db, func(conn *sqlx.Conn) error {
		var row struct {
			ChatID    int64     `db:"chat_id"`
			CreatedAt time.Time `db:"created_at"`
		}
		err := conn.GetContext(ctx, &row, r.db.Rebind(`SELECT chat_id, created_at FROM telegram_links WHERE token = ?`), tokenHash)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		res, err := conn.ExecContext(ctx, r.db.Rebind(`DELETE FROM telegram_links WHERE token = ?`), tokenHash)
		if err != nil {
			return err
		}
		// a concurrent consumer already took it
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if maxAge > 0 && time.Since(row.CreatedAt) > maxAge {
			return nil
		}
		chatID, ok = row.ChatID, true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return chatID, ok, nil
}

// DeleteOlderThan removes link requests created before cutoff.
func (r *LinkRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM telegram_links WHERE created_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
