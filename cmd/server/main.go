package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"costing-api/backend/internal/audit"
	auditrepo "costing-api/backend/internal/audit/repository"
	"costing-api/backend/internal/config"
	"costing-api/backend/internal/db"
	"costing-api/backend/internal/db/migrate"
	"costing-api/backend/internal/identity/service"
	"costing-api/backend/internal/security"
	"costing-api/backend/internal/server"
	sessionrepo "costing-api/backend/internal/session/repository"
	telemetry "costing-api/backend/internal/telemetry/otel"
	userrepo "costing-api/backend/internal/user/repository"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if cfg.Production() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}
	if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal().Err(err).Msg("migrate")
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db open")
	}
	defer database.Close()

	ctx := context.Background()
	providers, err := telemetry.NewProviders(ctx, cfg.OTLPEndpoint, "costing-api", cfg.OTLPInsecure)
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry")
	}
	providers.SetGlobal()

	accessKeys, err := security.LoadKeyPair(cfg.JWTAccessPrivateKey, cfg.JWTAccessPublicKey)
	if err != nil {
		log.Fatal().Err(err).Msg("access key pair")
	}
	refreshKeys, err := security.LoadKeyPair(cfg.JWTRefreshPrivateKey, cfg.JWTRefreshPublicKey)
	if err != nil {
		log.Fatal().Err(err).Msg("refresh key pair")
	}
	codec := security.NewTokenCodec(accessKeys, refreshKeys, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())

	metrics, err := telemetry.NewAuthMetrics(providers.MeterProvider)
	if err != nil {
		log.Fatal().Err(err).Msg("metrics")
	}
	auditLogs := auditrepo.NewPostgresRepository(database)
	auditor := audit.NewLogger(auditLogs, telemetry.NewEventEmitter(providers.LoggerProvider))
	authSvc := service.NewAuthService(
		userrepo.NewPostgresRepository(database),
		sessionrepo.NewPostgresRepository(database),
		security.NewHasher(cfg.BcryptCost),
		codec,
		auditor,
		metrics,
	)

	router := server.New(server.Options{
		AuthService:     authSvc,
		Cookies:         security.NewCookieManager(cfg.CookieDomain, cfg.Production()),
		DB:              database,
		AuditLogs:       auditLogs,
		AllowedOrigins:  cfg.AllowedOrigins(),
		TracerProvider:  providers.TracerProvider,
		Production:      cfg.Production(),
		GlobalRateLimit: cfg.RateLimitGlobal,
		AuthRateLimit:   cfg.RateLimitAuth,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("serve")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("telemetry shutdown")
	}
	log.Info().Msg("stopped")
}
