package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/angelmondragon/circulation-backend/internal/bootstrap"
	"github.com/angelmondragon/circulation-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch files
	if err := offline(opts, os.Stdout); !errors.Is(err, errNeedsDatabase) {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	app, err := bootstrap.Load("migrate")
	if err != nil {
		os.Exit(1)
	}
	ctx := app.Context(context.Background(), map[string]any{"cmd": opts.cmd, "dir": opts.dir})
	app.Exit(ctx, online(ctx, app, opts))
}

var errNeedsDatabase = errors.New("command needs a database")

func offline(opts options, out io.Writer) error {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name, time.Now())
		if err != nil {
			return fmt.Errorf("create migration: %w", err)
		}
		fmt.Fprintln(out, "created migration:", path)
		return nil
	case "validate":
		count, err := validate(opts.dir)
		if err != nil {
			return fmt.Errorf("migration validation failed: %w", err)
		}
		fmt.Fprintf(out, "migration validation passed (%d files)\n", count)
		return nil
	default:
		return errNeedsDatabase
	}
}

// validate checks dir and, for the default dir, that the embedded copy the
// binaries run has not drifted from the checkout.
func validate(dir string) (int, error) {
	versions, err := migrate.ValidateDir(dir)
	if err != nil || dir != migrate.DefaultDir {
		return len(versions), err
	}
	shipped, err := migrate.ValidateFS(migrate.Shipped())
	if err != nil {
		return 0, err
	}
	if len(shipped) != len(versions) {
		return 0, fmt.Errorf("embedded migrations (%d) differ from %s (%d); rebuild", len(shipped), dir, len(versions))
	}
	return len(versions), nil
}

func online(ctx context.Context, app *bootstrap.App, opts options) error {
	dbClient, err := app.Connect(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	return apply(ctx, sqlDB, opts)
}

func apply(ctx context.Context, sqlDB *sql.DB, opts options) error {
	switch opts.cmd {
	case "up", "down", "status":
		return migrate.Run(ctx, sqlDB, opts.dir, opts.cmd)
	case "version":
		if opts.version == "" {
			return errors.New("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	default:
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}
}
