// server runs the HTTP API, the gRPC health endpoint, the Telegram bot and the session pruner.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"splan/backend/internal/audit"
	auditrepo "splan/backend/internal/audit/repository"
	"splan/backend/internal/auth"
	"splan/backend/internal/config"
	"splan/backend/internal/db"
	devicerepo "splan/backend/internal/device/repository"
	healthhandler "splan/backend/internal/health/handler"
	"splan/backend/internal/logging"
	"splan/backend/internal/mfa"
	mfarepo "splan/backend/internal/mfa/repository"
	"splan/backend/internal/notify"
	"splan/backend/internal/notify/fcm"
	"splan/backend/internal/notify/telegram"
	"splan/backend/internal/notify/webpush"
	"splan/backend/internal/permission"
	"splan/backend/internal/security"
	"splan/backend/internal/server"
	"splan/backend/internal/server/interceptors"
	sessionrepo "splan/backend/internal/session/repository"
	telemetryotel "splan/backend/internal/telemetry/otel"
	userrepo "splan/backend/internal/user/repository"
)

const (
	serviceName     = "splan"
	pruneInterval   = time.Hour
	shutdownTimeout = 15 * time.Second
)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatal().Err(err).Msg("otel")
	}
	providers.SetGlobal()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer conn.Close()

	var sessions sessionrepo.Repository = sessionrepo.NewSQLRepository(conn)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis url")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		sessions = sessionrepo.NewCachedRepository(sessions, rdb, cfg.SessionCacheDuration())
		log.Info().Dur("ttl", cfg.SessionCacheDuration()).Msg("session cache enabled")
	}

	keys, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		log.Fatal().Err(err).Msg("jwt keys")
	}
	tokens, err := security.NewTokenProvider(keys, cfg.JWTAlgorithm, cfg.JWTIssuer, cfg.TokenTTL())
	if err != nil {
		log.Fatal().Err(err).Msg("token provider")
	}
	resolver, err := permission.NewResolver(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("permission policy")
	}

	users := userrepo.NewSQLRepository(conn)
	authSvc := auth.NewService(sessions, users, resolver, tokens, log)
	totp := mfa.NewService(mfarepo.NewSQLRepository(conn), cfg.TOTPIssuer)
	authenticator := auth.NewAuthenticator(authSvc, security.NewHasher(cfg.BcryptCost), totp)

	devices := devicerepo.NewSQLRepository(conn)
	links := telegram.NewLinkRepository(conn)
	senders, tg := buildSenders(ctx, cfg, log)
	dispatcher, err := notify.NewDispatcher(senders, devices, log)
	if err != nil {
		log.Fatal().Err(err).Msg("dispatcher")
	}

	auditLogs := auditrepo.NewSQLRepository(conn)
	auditLogger := audit.NewLogger(auditLogs, interceptors.ClientIP, log)

	deps := server.Deps{
		Sessions:   authSvc,
		Login:      authenticator,
		Devices:    devices,
		Dispatcher: dispatcher,
		TOTP:       totp,
		Audit:      auditLogger,
		AuditLogs:  auditLogs,
		FreePaths:  cfg.AuthFreePathList(),
		Log:        log,
	}
	if tg != nil {
		deps.TelegramLinks = links
		bot := telegram.NewBot(tg, links, devices, cfg.TelegramLinkURL, log)
		go func() {
			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("telegram bot stopped")
			}
		}()
	}

	go authSvc.RunPruner(ctx, pruneInterval, cfg.SessionMaxAgeDuration())
	go pruneLinks(ctx, links, log)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http serve")
		}
	}()

	var grpcStop func()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("listen")
		}
		grpcSrv := server.NewGRPCServer(authSvc, healthhandler.NewServer(conn, resolver, log), log)
		grpcStop = grpcSrv.GracefulStop
		go func() {
			log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatal().Err(err).Msg("grpc serve")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if grpcStop != nil {
		grpcStop()
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("stopped")
}

// buildSenders enables each push channel that is configured. The Telegram client is returned
// separately because the bot needs it too.
func buildSenders(ctx context.Context, cfg *config.Config, log zerolog.Logger) (notify.Senders, *telegram.Client) {
	var senders notify.Senders
	if cfg.FCMCredentialsFile != "" {
		client, err := fcm.NewFromFile(ctx, cfg.FCMCredentialsFile, cfg.FCMProjectID)
		if err != nil {
			log.Fatal().Err(err).Msg("fcm")
		}
		senders.FCM = client
		log.Info().Str("project", client.ProjectID).Msg("FCM enabled")
	}
	if cfg.VAPIDPublicKey != "" {
		senders.WebPush = webpush.New(cfg.VAPIDSubject, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
		log.Info().Msg("WebPush enabled")
	}
	var tg *telegram.Client
	if cfg.TelegramBotToken != "" {
		telegram.SetLogger(log, cfg.TelegramBotToken)
		client, err := telegram.New(cfg.TelegramBotToken, telegram.DefaultPollTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram")
		}
		tg = client
		senders.Telegram = tg
		log.Info().Str("bot", tg.Username()).Msg("Telegram enabled")
	}
	return senders, tg
}

// pruneLinks removes Telegram link tokens nobody redeemed.
func pruneLinks(ctx context.Context, links *telegram.LinkRepository, log zerolog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := links.DeleteOlderThan(ctx, time.Now().UTC().Add(-server.LinkMaxAge))
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("telegram link pruning failed")
				}
				continue
			}
			if n > 0 {
				log.Info().Int64("removed", n).Msg("pruned stale telegram links")
			}
		}
	}
}
