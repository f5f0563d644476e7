package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taxpilot/taxpilot/internal/app"
	"github.com/taxpilot/taxpilot/internal/auth"
	"github.com/taxpilot/taxpilot/internal/filings"
	"github.com/taxpilot/taxpilot/internal/observability"
	"github.com/taxpilot/taxpilot/internal/platform/cache"
	"github.com/taxpilot/taxpilot/internal/platform/db"
	"github.com/taxpilot/taxpilot/internal/rbac"
	"github.com/taxpilot/taxpilot/internal/shared"
	"github.com/taxpilot/taxpilot/internal/users"
	"github.com/taxpilot/taxpilot/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, ApplicationName: "taxpilot-api"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	cacheOpts := []rbac.CacheOption{
		rbac.WithTTL(cfg.PermissionCacheTTL),
		rbac.WithCacheLogger(logger),
	}
	if cfg.PermissionBroadcast {
		cacheOpts = append(cacheOpts, rbac.WithBroadcast(redisClient))
	}
	permissionCache := rbac.NewCache(cacheOpts...)
	if err := permissionCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("permission cache subscribe", slog.Any("error", err))
	}

	rbacService := rbac.NewService(rbac.NewRepository(dbpool), rbac.ServiceConfig{
		Cache:    permissionCache,
		Audit:    auditLogger,
		Observer: metrics,
		Logger:   logger,
	})
	if err := rbacService.EnsureCatalog(ctx); err != nil {
		logger.Error("ensure permission catalog", slog.Any("error", err))
		os.Exit(1)
	}
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(auth.NewRepository(dbpool), tokens)
	authHandler := auth.NewHandler(logger, authService, rbacService)

	usersService := users.NewService(users.NewRepository(dbpool), logger)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	filingsService := filings.NewService(filings.NewRepository(dbpool), filings.ServiceConfig{
		Audit:    auditLogger,
		Notifier: jobClient,
		Logger:   logger,
	})
	filingsHandler := filings.NewHandler(logger, filingsService, rbacMiddleware)

	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthService:        authService,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		FilingsHandler:     filingsHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
		RBACMiddleware:     rbacMiddleware,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
