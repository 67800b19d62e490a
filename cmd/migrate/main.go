// migrate applies or rolls back the embedded schema for the configured DATABASE_URL
// (sqlite or postgres). Run via ./scripts/migrate.sh.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"

	"splan/backend/internal/config"
	"splan/backend/internal/db/migrate"
	"splan/backend/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config")
	}
	log := logging.New(cfg.LogLevel, cfg.Env).With().Str("direction", *direction).Logger()
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	start := time.Now()
	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Dur("took", time.Since(start)).Msg("schema migrated")
}
