package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations, one directory per dialect.
// Used by the migrate runner (cmd/migrate) to apply migrations.
//
//go:embed migrations/postgres/*.sql migrations/mysql/*.sql
var MigrationFS embed.FS
