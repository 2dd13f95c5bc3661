package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/logger"
)

// AutoRun applies pending migrations at API startup when STOREFRONT_AUTO_MIGRATE
// is set. Outside dev it only runs against sqlite; shared postgres schemas are
// migrated with cmd/migrate.
func AutoRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client, dir string) (int, error) {
	if !cfg.FeatureFlags.AutoMigrate {
		return 0, nil
	}
	dialect := client.Dialect()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": dir, "dialect": dialect})
	if !cfg.App.IsDev() && dialect != "sqlite3" {
		logg.Warn(ctx, "auto migrate skipped outside dev for shared database")
		return 0, nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return 0, fmt.Errorf("extracting sql.DB: %w", err)
	}
	pending, err := Pending(sqlDB, dialect, dir)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		logg.Debug(ctx, "schema up to date")
		return 0, nil
	}

	ctx = logg.WithField(ctx, "pending", len(pending))
	logg.Info(ctx, "applying migrations")
	if err := Run(ctx, sqlDB, dialect, dir, "up"); err != nil {
		return 0, err
	}
	logg.Info(ctx, "migrations applied")
	return len(pending), nil
}
