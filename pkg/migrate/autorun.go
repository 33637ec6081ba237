package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/circulation-backend/pkg/config"
	"github.com/angelmondragon/circulation-backend/pkg/db"
	"github.com/angelmondragon/circulation-backend/pkg/db/models"
	"github.com/angelmondragon/circulation-backend/pkg/logger"
)

// MaybeRunDev applies the shipped migrations on boot when running in dev with
// CIRCULATION_AUTO_MIGRATE enabled. Other environments migrate via cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"service": cfg.Service.Kind,
		"dialect": client.Dialect(),
	})

	switch client.Dialect() {
	case db.DialectPostgres:
	case db.DialectSQLite:
		// goose files use postgres DDL; local sqlite files get the model schema instead.
		if err := client.DB().WithContext(ctx).AutoMigrate(&models.Loan{}, &models.OutboxEvent{}, &models.OutboxDLQ{}); err != nil {
			return fmt.Errorf("auto-migrating sqlite schema: %w", err)
		}
		logg.Info(ctx, "sqlite schema migrated from models")
		return nil
	default:
		return fmt.Errorf("auto-migrate does not support %q", client.Dialect())
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	logg.Info(ctx, "applying shipped migrations")

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "migrations applied")
	return nil
}
