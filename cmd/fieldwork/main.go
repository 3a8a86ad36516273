package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/fieldwork/pkg/api"
	"github.com/platinummonkey/fieldwork/pkg/audit"
	"github.com/platinummonkey/fieldwork/pkg/auth"
	"github.com/platinummonkey/fieldwork/pkg/config"
	"github.com/platinummonkey/fieldwork/pkg/export"
	"github.com/platinummonkey/fieldwork/pkg/middleware"
	"github.com/platinummonkey/fieldwork/pkg/observability"
	"github.com/platinummonkey/fieldwork/pkg/rbac"
	"github.com/platinummonkey/fieldwork/pkg/sso"
	"github.com/platinummonkey/fieldwork/pkg/storage/postgres"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Logging.Level), os.Stdout)
	ctx := context.Background()

	connMgr, err := postgres.NewConnectionManager(cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}
	defer connMgr.Close()
	db := connMgr.Primary()

	if err := workflow.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("failed to run workflow migrations")
		os.Exit(1)
	}
	if err := audit.RunMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("failed to run audit migrations")
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, rate limiting falls back to in-memory")
			redisClient = nil
		}
	}

	store := workflow.NewStore(db)
	users := auth.NewUserStore(db)
	tokens := auth.NewTokenManager(db)
	evaluator := rbac.NewEvaluator(store)
	auditLog := audit.NewDBLogger(db)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	var archiver *export.Archiver
	if cfg.Export.S3Bucket != "" {
		archiver, err = export.NewArchiver(ctx, cfg.Export)
		if err != nil {
			logger.WithError(err).Warn("export archival disabled")
		}
	}
	exporter := export.NewExporter(store, archiver, logger)

	var rateLimit func(http.Handler) http.Handler
	if redisClient != nil && cfg.Redis.RateLimitEnabled {
		limiter := middleware.NewDistributedRateLimitMiddleware(redisClient, middleware.PerUserRateLimitConfig())
		rateLimit = limiter.Handler
	} else {
		rateLimit = middleware.NewRateLimitMiddleware().Handler
	}

	var ssoHandlers *sso.Handlers
	if cfg.SSO.Enabled {
		authenticator, err := sso.NewAuthenticator(ctx, cfg.SSO)
		if err != nil {
			logger.WithError(err).Error("failed to initialize SSO")
			os.Exit(1)
		}
		provisioner := sso.NewProvisioner(users, tokens, store, auditLog, cfg.SSO.DefaultOrgID)
		ssoHandlers = sso.NewHandlers(authenticator, provisioner, logger)
	}

	handlers := api.NewHandlers(store, evaluator, auditLog, exporter, metrics, logger)
	server := api.NewServer(cfg.Server, api.ServerOptions{
		Handlers:  handlers,
		Auth:      middleware.NewAuthMiddleware(tokens, users, false),
		RateLimit: rateLimit,
		Health:    observability.NewHealthChecker(db, redisClient),
		Registry:  registry,
		Metrics:   metrics,
		Logger:    logger,
		SSO:       ssoHandlers,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server failed")
			os.Exit(1)
		}
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown was not clean")
		}
	}
}
