package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/circulation-backend/api/routes"
	"github.com/angelmondragon/circulation-backend/internal/bootstrap"
	"github.com/angelmondragon/circulation-backend/internal/loans"
	"github.com/angelmondragon/circulation-backend/pkg/env"
	"github.com/angelmondragon/circulation-backend/pkg/metrics"
	"github.com/angelmondragon/circulation-backend/pkg/outbox"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	app, err := bootstrap.Load("api")
	if err != nil {
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	// PORT is injected by the hosting platform and wins over config.
	addr := ":" + env.Get("PORT", app.Config.App.Port)
	ctx = app.Context(ctx, map[string]any{"addr": addr})

	err = run(ctx, app, addr)
	stop()
	app.Exit(ctx, err)
}

func run(ctx context.Context, app *bootstrap.App, addr string) error {
	cfg, logg := app.Config, app.Logger

	dbClient, err := app.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := app.Redis(ctx)
	if err != nil {
		return err
	}
	policy, err := loans.PolicyFromConfig(cfg.Loans)
	if err != nil {
		return fmt.Errorf("loan policy: %w", err)
	}
	loanService, err := loans.NewService(loans.ServiceParams{
		Tx:      dbClient,
		Repo:    loans.NewRepository(dbClient.DB()),
		Reads:   loans.NewQueries(dbClient.DB()),
		Outbox:  outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics: metrics.NewLoanMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
		Policy:  policy,
	})
	if err != nil {
		return fmt.Errorf("loan service: %w", err)
	}

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:          dbClient,
			Redis:       redisClient,
			Idempotency: redisClient,
			Loans:       loanService,
			Gatherer:    prometheus.DefaultGatherer,
			HTTPMetrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return serve(ctx, app, server)
}

// serve blocks until the listener fails or ctx ends, then drains in-flight
// requests for up to shutdownTimeout.
func serve(ctx context.Context, app *bootstrap.App, server *http.Server) error {
	listenErr := make(chan error, 1)
	go func() { listenErr <- server.ListenAndServe() }()
	app.Logger.Info(ctx, "api listening")

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}
