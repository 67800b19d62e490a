// Package db opens the relational store and provides scoped connection helpers.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// ErrUnsupportedScheme is returned when the DSN scheme selects no known driver.
var ErrUnsupportedScheme = errors.New("db: unsupported DSN scheme")

// Open opens a connection pool for the DSN. The scheme picks the driver:
// postgres:// and postgresql:// use pgx, mysql:// uses go-sql-driver/mysql.
// Caller must call Close when done.
func Open(dsn string) (*sqlx.DB, error) {
	driver, source, err := driverFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// driverFor maps a DSN to a database/sql driver name and driver-specific data source.
func driverFor(dsn string) (string, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", "", errors.New("db: DATABASE_URL is empty")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, nil
	case strings.HasPrefix(dsn, "mysql://"):
		cfg, err := mysql.ParseDSN(strings.TrimPrefix(dsn, "mysql://"))
		if err != nil {
			return "", "", fmt.Errorf("db: parse mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		return "mysql", cfg.FormatDSN(), nil
	default:
		return "", "", ErrUnsupportedScheme
	}
}

// WithConn acquires one pooled connection, runs fn on it and releases it on every exit path.
func WithConn(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Conn) error) error {
	conn, err := db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("db: acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}
