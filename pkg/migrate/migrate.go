package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is the repo-relative migrations directory. Run resolves it to
// the copy compiled into the binary so deployed services need no checkout.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var shipped embed.FS

const shippedRoot = "migrations"

// Shipped exposes the migrations compiled into the binary.
func Shipped() fs.FS {
	sub, err := fs.Sub(shipped, shippedRoot)
	if err != nil {
		panic(err)
	}
	return sub
}

// source selects the filesystem goose reads from and validates it.
func source(dir string) (fs.FS, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	fsys := Shipped()
	if dir != DefaultDir {
		fsys = os.DirFS(dir)
	}
	if _, err := ValidateFS(fsys); err != nil {
		return nil, err
	}
	return fsys, nil
}

func newProvider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	fsys, err := source(dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Run executes up, down or status against db.
func Run(ctx context.Context, db *sql.DB, dir string, command string) error {
	provider, err := newProvider(db, dir)
	if err != nil {
		return err
	}
	switch command {
	case "up":
		_, err = provider.Up(ctx)
	case "down":
		_, err = provider.Down(ctx)
	case "status":
		var statuses []*goose.MigrationStatus
		statuses, err = provider.Status(ctx)
		for _, st := range statuses {
			fmt.Printf("%-8s %d %s\n", st.State, st.Source.Version, st.Source.Path)
		}
	default:
		return fmt.Errorf("unsupported goose command %q", command)
	}
	if err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	provider, err := newProvider(db, dir)
	if err != nil {
		return err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if _, err := provider.UpTo(ctx, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if _, err := provider.DownTo(ctx, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}
