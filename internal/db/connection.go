package db

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cozy-creator/vision-ai/internal/config"
	"github.com/cozy-creator/vision-ai/internal/db/drivers"
	"github.com/cozy-creator/vision-ai/internal/db/migrations"

	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/migrate"
)

const defaultSQLiteFile = "history.db"

// NewConnection opens the history database. postgres:// and postgresql://
// DSNs use Postgres, anything else is a sqlite DSN, and an empty DSN means a
// sqlite file in the data directory.
func NewConnection(ctx context.Context, cfg *config.Config) (drivers.Driver, error) {
	dsn := ""
	if cfg.DB != nil {
		dsn = cfg.DB.DSN
	}

	var (
		driver drivers.Driver
		err    error
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver, err = drivers.NewPGDriver(ctx, dsn)
	case dsn == "":
		driver, err = drivers.NewSQLiteDriver(ctx, "file:"+filepath.Join(cfg.DataDir, defaultSQLiteFile))
	default:
		driver, err = drivers.NewSQLiteDriver(ctx, dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Environment == "dev" {
		driver.GetDB().AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	return driver, nil
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, driver drivers.Driver) error {
	migrator := migrate.NewMigrator(driver.GetDB(), migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}

	if _, err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	return nil
}
