package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stallside/stallside-backend/internal/escrow"
	"github.com/stallside/stallside-backend/internal/settlement"
	"github.com/stallside/stallside-backend/pkg/config"
	"github.com/stallside/stallside-backend/pkg/db"
	"github.com/stallside/stallside-backend/pkg/logger"
	"github.com/stallside/stallside-backend/pkg/metrics"
	"github.com/stallside/stallside-backend/pkg/migrate"
	"github.com/stallside/stallside-backend/pkg/outbox"
	"github.com/stallside/stallside-backend/pkg/redis"
	pkgstripe "github.com/stallside/stallside-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "settlement-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "settlement-worker"

	logg = logger.New(logger.Options{
		ServiceName: "settlement-worker",
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

	escrowService, err := escrow.NewService(escrow.ServiceParams{
		Tx:         dbClient,
		Repo:       escrow.NewRepository(dbClient.DB()),
		Outbox:     outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger:     logg,
		HoldPeriod: cfg.Escrow.HoldPeriod,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow service", err)
		os.Exit(1)
	}

	releaseJob, err := settlement.NewReleaseJob(settlement.ReleaseJobParams{
		Escrow:    escrowService,
		Processor: settlement.NewProcessorClient(stripeClient),
		Logger:    logg,
		BatchSize: cfg.Settlement.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create release job", err)
		os.Exit(1)
	}

	lock, err := settlement.NewRedisLock(redisClient, redisClient.LockKey("settlement-worker"), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement lock", err)
		os.Exit(1)
	}

	service, err := settlement.NewService(settlement.ServiceParams{
		Logger:   logg,
		Registry: settlement.NewRegistry(releaseJob),
		Lock:     lock,
		Metrics:  metrics.NewWorkerJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Settlement.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting settlement worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "settlement worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "settlement worker shutting down gracefully")
}
