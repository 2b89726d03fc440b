package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/evdms/dealer-backend/pkg/config"
	"github.com/evdms/dealer-backend/pkg/db"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/logger"
)

// Models lists every table owned by the service in dependency order.
func Models() []any {
	return []any{
		&models.Dealer{},
		&models.Customer{},
		&models.Vehicle{},
		&models.InventoryRecord{},
		&models.InventoryMovement{},
		&models.Quote{},
		&models.QuoteLineItem{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.Payment{},
		&models.Installment{},
		&models.DebtEntry{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// AutoMigrate builds the schema from the gorm models. Goose owns the Postgres schema;
// this path serves sqlite databases (local runs and tests).
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// MaybeRunDev executes migrations automatically when the app is running in dev mode and
// the feature flag is enabled.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	meta := map[string]any{"env": cfg.App.Env, "dir": DefaultDir, "driver": cfg.DB.Driver}
	ctx = logg.WithFields(ctx, meta)

	if cfg.DB.IsSQLite() {
		logg.Info(ctx, "running gorm auto-migrate (sqlite)")
		return AutoMigrate(client.DB())
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	logg.Info(ctx, "running Goose migrations (dev auto-run)")

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "Goose migrations completed")
	return nil
}
