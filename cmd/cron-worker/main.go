package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/denthubhq/denthub-backend/internal/cabinets"
	"github.com/denthubhq/denthub-backend/internal/catalog"
	"github.com/denthubhq/denthub-backend/internal/cron"
	subscriptionsvc "github.com/denthubhq/denthub-backend/internal/subscriptions"
	"github.com/denthubhq/denthub-backend/pkg/config"
	"github.com/denthubhq/denthub-backend/pkg/db"
	"github.com/denthubhq/denthub-backend/pkg/logger"
	"github.com/denthubhq/denthub-backend/pkg/metrics"
	"github.com/denthubhq/denthub-backend/pkg/migrate"
	"github.com/denthubhq/denthub-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	catalogResolver, err := catalog.NewResolver(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog resolver", err)
		os.Exit(1)
	}

	subscriptionsRepo := subscriptionsvc.NewRepository(dbClient.DB())
	subscriptionsService, err := subscriptionsvc.NewService(subscriptionsvc.ServiceParams{
		Repo:     subscriptionsRepo,
		Catalog:  catalogResolver,
		Cabinets: cabinets.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Billing:  cfg.Billing,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	expireJob, err := cron.NewSubscriptionExpireJob(cron.SubscriptionExpireJobParams{
		Logger:        logg,
		Repo:          subscriptionsRepo,
		Subscriptions: subscriptionsService,
		BatchLimit:    cfg.Billing.ExpireBatchLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create expire job", err)
		os.Exit(1)
	}

	cancelJob, err := cron.NewSubscriptionCancelJob(cron.SubscriptionCancelJobParams{
		Logger:        logg,
		Repo:          subscriptionsRepo,
		Subscriptions: subscriptionsService,
		BatchLimit:    cfg.Billing.ExpireBatchLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cancel job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expireJob, cancelJob),
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
