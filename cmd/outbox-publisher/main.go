package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/circulation-backend/internal/bootstrap"
	"github.com/angelmondragon/circulation-backend/pkg/metrics"
	"github.com/angelmondragon/circulation-backend/pkg/outbox"
	"github.com/angelmondragon/circulation-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/circulation-backend/pkg/outbox/registry"
)

const publishGuardTTL = 7 * 24 * time.Hour

// Usage: outbox-publisher [dlq <subcommand> ...]
func main() {
	app, err := bootstrap.Load("outbox-publisher")
	if err != nil {
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = app.Context(ctx, nil)

	if len(os.Args) > 1 && os.Args[1] == "dlq" {
		err = runDLQ(ctx, app, os.Args[2:])
	} else {
		err = run(ctx, app)
	}
	stop()
	app.Exit(ctx, err)
}

// runDLQ only needs the database; it must work while Pub/Sub is down.
func runDLQ(ctx context.Context, app *bootstrap.App, args []string) error {
	dbClient, err := app.Database(ctx)
	if err != nil {
		return err
	}
	return runDLQCommand(ctx, outbox.NewDLQRepository(dbClient.DB()), args, os.Stdout)
}

func run(ctx context.Context, app *bootstrap.App) error {
	cfg, logg := app.Config, app.Logger

	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	dbClient, err := app.Database(ctx)
	if err != nil {
		return err
	}
	pubsubClient, err := app.PubSub(ctx)
	if err != nil {
		return err
	}
	redisClient, err := app.Redis(ctx)
	if err != nil {
		return err
	}
	guard, err := idempotency.NewManager(redisClient, publishGuardTTL)
	if err != nil {
		return fmt.Errorf("publish guard: %w", err)
	}

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      events,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Guard:         guard,
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("outbox publisher: %w", err)
	}
	defer service.Stop()

	logg.Info(logg.WithField(ctx, "topics", events.Topics()), "outbox publisher draining")
	return service.Run(ctx)
}
