package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/stallside/stallside-backend/api/routes"
	"github.com/stallside/stallside-backend/internal/catalog"
	checkoutsvc "github.com/stallside/stallside-backend/internal/checkout"
	"github.com/stallside/stallside-backend/internal/escrow"
	"github.com/stallside/stallside-backend/internal/orders"
	"github.com/stallside/stallside-backend/internal/reminders"
	"github.com/stallside/stallside-backend/internal/verification"
	stripewebhook "github.com/stallside/stallside-backend/internal/webhooks/stripe"
	"github.com/stallside/stallside-backend/pkg/config"
	"github.com/stallside/stallside-backend/pkg/db"
	"github.com/stallside/stallside-backend/pkg/logger"
	"github.com/stallside/stallside-backend/pkg/migrate"
	"github.com/stallside/stallside-backend/pkg/outbox"
	"github.com/stallside/stallside-backend/pkg/redis"
	pkgstripe "github.com/stallside/stallside-backend/pkg/stripe"
)

const webhookDedupeTTL = 24 * time.Hour

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

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	escrowService, err := escrow.NewService(escrow.ServiceParams{
		Tx:         dbClient,
		Repo:       escrow.NewRepository(dbClient.DB()),
		Outbox:     outboxSvc,
		Logger:     logg,
		HoldPeriod: cfg.Escrow.HoldPeriod,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow service", err)
		os.Exit(1)
	}

	verifier, err := verification.NewVerifier(catalog.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create cart verifier", err)
		os.Exit(1)
	}

	intentBuilder, err := checkoutsvc.NewIntentBuilder(cfg.Checkout)
	if err != nil {
		logg.Error(context.Background(), "failed to create intent builder", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Tx:       dbClient,
		Verifier: verifier,
		Builder:  intentBuilder,
		Payments: checkoutsvc.NewPaymentClient(stripeClient),
		Escrow:   escrowService,
		Fees:     cfg.Fees,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	remindersService, err := reminders.NewService(reminders.ServiceParams{
		Repo:             reminders.NewRepository(dbClient.DB()),
		Outbox:           outboxSvc,
		Logger:           logg,
		PickupReadyDelay: cfg.Reminders.PickupReadyDelay,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reminders service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Tx:        dbClient,
		Orders:    orders.NewRepository(dbClient.DB()),
		Catalog:   catalog.NewRepository(dbClient.DB()),
		Reminders: remindersService,
		Escrow:    escrowService,
		Outbox:    outboxSvc,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook reconciler", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookDedupeTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
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
			checkoutService,
			stripeClient,
			webhookService,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
