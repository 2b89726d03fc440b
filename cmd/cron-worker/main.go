package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/evdms/dealer-backend/internal/app"
	"github.com/evdms/dealer-backend/internal/cron"
	"github.com/evdms/dealer-backend/pkg/config"
	"github.com/evdms/dealer-backend/pkg/db"
	"github.com/evdms/dealer-backend/pkg/instance"
	"github.com/evdms/dealer-backend/pkg/logger"
	"github.com/evdms/dealer-backend/pkg/metrics"
	"github.com/evdms/dealer-backend/pkg/migrate"
	"github.com/evdms/dealer-backend/pkg/redis"
)

const (
	lockKeyFormat  = "evdms:cron-worker:lock:%s"
	reconcileBatch = 200
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

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	// Audit records from cron transitions go to the log sink only.
	cfg.FeatureFlags.PubSubAudit = false
	infra := app.Infra{DB: dbClient, Redis: redisClient, Registerer: prometheus.DefaultRegisterer}
	defer func() {
		if err := app.CloseAll(infra); err != nil {
			logg.Error(context.Background(), "error closing clients", err)
		}
	}()

	services, err := app.Build(cfg, logg, infra)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := services.Close(ctx); err != nil {
			logg.Error(context.Background(), "audit dispatcher did not drain", err)
		}
	}()

	registry, err := buildRegistry(cfg, logg, services)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	locker, err := redis.NewLocker(redisClient, 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create redis locker", err)
		os.Exit(1)
	}
	lock, err := cron.NewLeaderLock(locker, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(cfg.Service.Kind),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		return
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, services *app.Services) (*cron.Registry, error) {
	quoteExpiry, err := cron.NewQuoteExpiryJob(logg, services.Quotes)
	if err != nil {
		return nil, err
	}
	overdue, err := cron.NewInstallmentOverdueJob(logg, services.Installments)
	if err != nil {
		return nil, err
	}
	reconcile, err := cron.NewDebtReconcileJob(logg, services.Debt, reconcileBatch)
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: services.OutboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(quoteExpiry, overdue, reconcile, retention), nil
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
