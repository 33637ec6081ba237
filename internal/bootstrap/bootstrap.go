// Package bootstrap wires the process-level resources shared by every binary:
// environment, config, logger and the backing stores. Resources opened
// through an App are closed in reverse order by Close.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/circulation-backend/pkg/config"
	"github.com/angelmondragon/circulation-backend/pkg/db"
	"github.com/angelmondragon/circulation-backend/pkg/instance"
	"github.com/angelmondragon/circulation-backend/pkg/logger"
	"github.com/angelmondragon/circulation-backend/pkg/migrate"
	"github.com/angelmondragon/circulation-backend/pkg/pubsub"
	"github.com/angelmondragon/circulation-backend/pkg/redis"
)

type resource struct {
	name  string
	close func() error
}

type App struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger

	resources []resource
}

type loadOptions struct {
	output  io.Writer
	loadEnv func() error
	config  func() (*config.Config, error)
}

type Option func(*loadOptions)

// WithOutput redirects every log line, mostly for tests.
func WithOutput(w io.Writer) Option {
	return func(o *loadOptions) { o.output = w }
}

// WithConfig skips .env and environment parsing.
func WithConfig(cfg *config.Config) Option {
	return func(o *loadOptions) {
		o.loadEnv = func() error { return nil }
		o.config = func() (*config.Config, error) { return cfg, nil }
	}
}

// Load reads .env when present, parses config and builds the logger for
// kind. A config error has already been logged when it is returned.
func Load(kind string, opts ...Option) (*App, error) {
	o := loadOptions{output: os.Stdout, loadEnv: func() error { return godotenv.Load() }, config: config.Load}
	for _, opt := range opts {
		opt(&o)
	}

	logg := logger.New(logger.Options{ServiceName: kind, Output: o.output})
	if err := o.loadEnv(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := o.config()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		return nil, err
	}
	cfg.Service.Kind = kind

	return &App{
		Kind:   kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
			Format:      cfg.App.LogFormat,
			Output:      o.output,
		}),
	}, nil
}

func (a *App) track(name string, closeFn func() error) {
	a.resources = append(a.resources, resource{name: name, close: closeFn})
}

// Connect opens the database without touching the schema.
func (a *App) Connect(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, a.Config.DB, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	a.track("database", client.Close)
	return client, nil
}

// Database connects and, in dev, applies migrations before returning.
func (a *App) Database(ctx context.Context) (*db.Client, error) {
	client, err := a.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := migrate.MaybeRunDev(ctx, a.Config, a.Logger, client); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

func (a *App) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, a.Config.Redis, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	a.track("redis", client.Close)
	return client, nil
}

func (a *App) PubSub(ctx context.Context) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, a.Config.GCP, a.Config.PubSub, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap pubsub: %w", err)
	}
	a.track("pubsub", client.Close)
	return client, nil
}

// Context tags ctx with the fields every log line of the process carries.
func (a *App) Context(ctx context.Context, extra map[string]any) context.Context {
	fields := map[string]any{
		"env":         a.Config.App.Env,
		"serviceKind": a.Kind,
		"instance":    instance.GetID(),
	}
	for k, v := range extra {
		fields[k] = v
	}
	return a.Logger.WithFields(ctx, fields)
}

// Close releases resources newest first and reports every failure.
func (a *App) Close() error {
	var errs error
	for i := len(a.resources) - 1; i >= 0; i-- {
		res := a.resources[i]
		if err := res.close(); err != nil {
			a.Logger.Error(context.Background(), "error closing "+res.name, err)
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", res.name, err))
		}
	}
	a.resources = nil
	return errs
}

// Exit closes the app and terminates with a status derived from err.
// Cancellation is a clean shutdown.
func (a *App) Exit(ctx context.Context, err error) {
	_ = a.Close()
	if err == nil || errors.Is(err, context.Canceled) {
		a.Logger.Info(ctx, a.Kind+" stopped")
		os.Exit(0)
	}
	a.Logger.Error(ctx, a.Kind+" stopped unexpectedly", err)
	os.Exit(1)
}
