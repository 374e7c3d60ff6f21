package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	auditdomain "github.com/fauter/cochera-admin/internal/audit/domain"
	"github.com/fauter/cochera-admin/internal/building"
	garagedomain "github.com/fauter/cochera-admin/internal/garage/domain"
	pricingdomain "github.com/fauter/cochera-admin/internal/pricing/domain"
	"github.com/fauter/cochera-admin/internal/profile"
	"github.com/fauter/cochera-admin/internal/session"
	staffdomain "github.com/fauter/cochera-admin/internal/staff/domain"
	"github.com/fauter/cochera-admin/internal/surcharge"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

// RunMigrations brings a local postgres up to the dashboard schema. Hosted
// deployments own their schema together with the RLS policies and database
// functions, so this only runs when MIGRATE_ON_START is set.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table of the dashboard for dialects without SQL
// migrations.
func Models() []any {
	models := []any{
		&garagedomain.Garage{},
		&building.Level{},
		&pricingdomain.VehicleType{},
		&pricingdomain.Tariff{},
		&pricingdomain.Price{},
		&staffdomain.Employee{},
		&auditdomain.AuditLog{},
	}
	models = append(models, profile.Models()...)
	models = append(models, session.Models()...)
	models = append(models, surcharge.Models()...)
	return models
}

// AutoMigrate creates the schema on sqlite and mysql.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
