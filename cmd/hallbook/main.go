package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hallbook/hallbook/internal/app"
	"github.com/hallbook/hallbook/internal/billing"
	"github.com/hallbook/hallbook/internal/booking"
	"github.com/hallbook/hallbook/internal/integration"
	"github.com/hallbook/hallbook/internal/observability"
	"github.com/hallbook/hallbook/internal/platform/cache"
	"github.com/hallbook/hallbook/internal/platform/db"
	"github.com/hallbook/hallbook/internal/platform/health"
	"github.com/hallbook/hallbook/internal/shared"
	"github.com/hallbook/hallbook/internal/tenant"
	"github.com/hallbook/hallbook/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
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
	gate := tenant.NewSubscriptionGate(pool)
	settings := tenant.NewSettingsStore(
		tenant.NewSettingsRepository(pool),
		cache.NewJSON(redisClient, "hallbook", cfg.SettingsCacheTTL),
	)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	syncRepo := integration.NewRepository(pool)
	hooks := integration.NewHooks(syncRepo, syncRepo, settings, jobClient, logger)
	gateway := integration.NewGateway(syncRepo, settings, integration.NewClientFactory(cfg.QoyodBaseURL, cfg.QoyodTimeout), metrics, logger)

	billingService := billing.NewService(billing.NewRepository(pool), gate, settings, logger)
	billingService.SetSyncHooks(hooks)
	bookingService := booking.NewService(booking.NewRepository(pool), gate, settings, billingService, logger)
	bookingService.SetSyncHooks(hooks)

	relay := integration.NewRelay(syncRepo, jobClient, cfg.OutboxRelayInterval, logger)
	if err := relay.Start(ctx); err != nil {
		logger.Error("start outbox relay", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := relay.Stop(); err != nil {
			logger.Warn("stop outbox relay", slog.Any("error", err))
		}
	}()

	checker := health.NewChecker(cfg.HealthCacheTTL, map[string]health.Check{
		"postgres": pool.Ping,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Resolver:           tenant.NewJWTResolver(cfg.JWTSecret),
		BookingHandler:     booking.NewHandler(logger, bookingService, shared.NewIdempotencyStore(pool)),
		BillingHandler:     billing.NewHandler(logger, billingService),
		IntegrationHandler: integration.NewHandler(logger, gateway, syncRepo, gate),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Health:             checker,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
