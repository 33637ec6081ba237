package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/circulation-backend/internal/bootstrap"
	"github.com/angelmondragon/circulation-backend/internal/cron"
	"github.com/angelmondragon/circulation-backend/internal/loans"
	"github.com/angelmondragon/circulation-backend/pkg/instance"
	"github.com/angelmondragon/circulation-backend/pkg/metrics"
	"github.com/angelmondragon/circulation-backend/pkg/outbox"
)

const lockName = "cron-worker"

// Usage: cron-worker [once]
//
// Without arguments the worker ticks until SIGTERM. "once" runs a single
// cycle and exits non-zero when any job failed, for use from a scheduler.
func main() {
	app, err := bootstrap.Load("cron-worker")
	if err != nil {
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	once := len(os.Args) > 1 && os.Args[1] == "once"
	ctx = app.Context(ctx, map[string]any{"once": once})
	err = run(ctx, app, once)
	stop()
	app.Exit(ctx, err)
}

func run(ctx context.Context, app *bootstrap.App, once bool) error {
	cfg, logg := app.Config, app.Logger

	dbClient, err := app.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := app.Redis(ctx)
	if err != nil {
		return err
	}
	location, err := cfg.Loans.Location()
	if err != nil {
		return fmt.Errorf("loan timezone: %w", err)
	}

	overdue, err := cron.NewOverdueSnapshotJob(cron.OverdueSnapshotJobParams{
		Logger:   logg,
		Loans:    loans.NewRepository(dbClient.DB()),
		Gauge:    metrics.NewLoanMetrics(prometheus.DefaultRegisterer),
		Location: location,
	})
	if err != nil {
		return fmt.Errorf("overdue snapshot job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:              logg,
		DB:                  dbClient,
		Repository:          outbox.NewRepository(dbClient.DB()),
		DeadLetters:         outbox.NewDLQRepository(dbClient.DB()),
		Retention:           cfg.Outbox.RetentionDays,
		DeadLetterRetention: cfg.Outbox.DLQRetentionDays,
		BatchSize:           cfg.Outbox.PurgeBatchSize,
	})
	if err != nil {
		return fmt.Errorf("outbox retention job: %w", err)
	}
	jobs, err := cron.NewRegistry(overdue, retention)
	if err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName), instance.GetID(), 0)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval(),
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	if !once {
		logg.Info(ctx, "cron worker ticking")
		return service.Run(ctx)
	}
	report, err := service.RunOnce(ctx)
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("cron jobs failed: %v", report.Failed)
	}
	logg.Info(logg.WithField(ctx, "succeeded", report.Succeeded), "single cron cycle complete")
	return nil
}
