package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/denthubhq/denthub-backend/api/routes"
	"github.com/denthubhq/denthub-backend/internal/cabinets"
	"github.com/denthubhq/denthub-backend/internal/catalog"
	subscriptionsvc "github.com/denthubhq/denthub-backend/internal/subscriptions"
	stripewebhook "github.com/denthubhq/denthub-backend/internal/webhooks/stripe"
	"github.com/denthubhq/denthub-backend/pkg/config"
	"github.com/denthubhq/denthub-backend/pkg/db"
	"github.com/denthubhq/denthub-backend/pkg/logger"
	"github.com/denthubhq/denthub-backend/pkg/migrate"
	"github.com/denthubhq/denthub-backend/pkg/redis"
	"github.com/denthubhq/denthub-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	catalogResolver, err := catalog.NewResolver(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog resolver", err)
		os.Exit(1)
	}

	subscriptionsService, err := subscriptionsvc.NewService(subscriptionsvc.ServiceParams{
		Repo:     subscriptionsvc.NewRepository(dbClient.DB()),
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

	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Logger:        logg,
		Subscriptions: subscriptionsService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	stripeWebhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Billing.WebhookEventTTL, "stripe")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			subscriptionsService,
			stripeClient,
			stripeWebhookService,
			stripeWebhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
