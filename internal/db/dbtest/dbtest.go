// Package dbtest provides an in-memory SQLite database with the application schema for repository tests.
package dbtest

import (
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT    NOT NULL UNIQUE,
    firstname     TEXT    NOT NULL DEFAULT '',
    lastname      TEXT    NOT NULL DEFAULT '',
    type          TEXT    NOT NULL DEFAULT 'student',
    password_hash TEXT    NOT NULL,
    active        BOOLEAN NOT NULL DEFAULT 1
);
CREATE TABLE user_permissions (
    user_id    INTEGER NOT NULL,
    permission TEXT    NOT NULL,
    PRIMARY KEY (user_id, permission)
);
CREATE TABLE user_token (
    token_identifier TEXT     PRIMARY KEY,
    user_id          INTEGER  NOT NULL,
    created_at       DATETIME NOT NULL
);
CREATE TABLE devices (
    id         TEXT     PRIMARY KEY,
    user_id    INTEGER  NOT NULL,
    platform   TEXT     NOT NULL,
    device_id  TEXT     NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE TABLE second_factors (
    id         TEXT     PRIMARY KEY,
    user_id    INTEGER  NOT NULL,
    type       TEXT     NOT NULL DEFAULT 'TOTP',
    secret     TEXT     NOT NULL,
    verified   BOOLEAN  NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);
CREATE TABLE telegram_links (
    token      TEXT     PRIMARY KEY,
    chat_id    INTEGER  NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE TABLE audit_log (
    id         TEXT     PRIMARY KEY,
    user_id    INTEGER,
    action     TEXT     NOT NULL,
    resource   TEXT     NOT NULL,
    ip         TEXT     NOT NULL DEFAULT '',
    metadata   TEXT,
    created_at DATETIME NOT NULL
);
`

// Open returns an in-memory SQLite database with the schema applied. It is closed when the test ends.
// The pool is limited to one connection so every query sees the same in-memory database.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("dbtest: open: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		t.Fatalf("dbtest: schema: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// InsertUser inserts a user row and returns its id.
func InsertUser(t testing.TB, db *sqlx.DB, username, userType string) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO users (username, firstname, lastname, type, password_hash, active) VALUES (?, ?, ?, ?, ?, 1)`,
		username, "First", "Last", userType, "x")
	if err != nil {
		t.Fatalf("dbtest: insert user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("dbtest: last insert id: %v", err)
	}
	return id
}
