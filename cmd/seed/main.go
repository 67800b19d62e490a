// seed inserts development users for local testing. Run via ./scripts/seed.sh.
// Idempotent: skips inserts if the dev admin already exists.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"splan/backend/internal/config"
	"splan/backend/internal/db"
	"splan/backend/internal/logging"
	"splan/backend/internal/permission"
	"splan/backend/internal/security"
	userdomain "splan/backend/internal/user/domain"
	userrepo "splan/backend/internal/user/repository"
)

const devPassword = "password123"

var devUsers = []struct {
	user   userdomain.User
	grants []string
}{
	{userdomain.User{Username: "admin", Firstname: "Dev", Lastname: "Admin", Type: userdomain.TypeAdmin, Active: true}, nil},
	{userdomain.User{Username: "teacher", Firstname: "Dev", Lastname: "Teacher", Type: userdomain.TypeTeacher, Active: true}, []string{permission.DevicesTest}},
	{userdomain.User{Username: "student", Firstname: "Dev", Lastname: "Student", Type: userdomain.TypeStudent, Active: true}, nil},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config")
	}
	log := logging.New(cfg.LogLevel, cfg.Env)
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer conn.Close()

	users := userrepo.NewSQLRepository(conn)
	ctx := context.Background()

	existing, err := users.GetByUsername(ctx, devUsers[0].user.Username)
	if err != nil {
		log.Fatal().Err(err).Msg("seed check")
	}
	if existing != nil {
		log.Info().Msg("Seed already applied (admin exists). Skipping.")
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(devPassword))
	if err != nil {
		log.Fatal().Err(err).Msg("hash password")
	}

	for _, du := range devUsers {
		u := du.user
		u.PasswordHash = hash
		if err := users.Create(ctx, &u); err != nil {
			log.Fatal().Err(err).Str("username", u.Username).Msg("create user")
		}
		for _, p := range du.grants {
			if err := users.Grant(ctx, u.ID, p); err != nil {
				log.Fatal().Err(err).Str("username", u.Username).Str("permission", p).Msg("grant")
			}
		}
		log.Info().Str("username", u.Username).Str("type", string(u.Type)).Int64("id", u.ID).Msg("created user")
	}
	log.Info().Str("password", devPassword).Msg("Seed complete")
}
