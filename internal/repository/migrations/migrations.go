// Package migrations applies the run history schema to a SQLite database.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migrator runs the embedded migrations.
type Migrator struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewMigrator creates a new migrator instance.
func NewMigrator(db *sql.DB, logger *slog.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: db, logger: logger}, nil
}

// Up runs all pending migrations.
func (m *Migrator) Up() error {
	inst, closeSrc, err := m.instance()
	defer closeSrc()
	if err != nil {
		return err
	}

	if err := inst.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	m.logger.Debug("migrations applied")
	return nil
}

// Down reverts all migrations.
func (m *Migrator) Down() error {
	inst, closeSrc, err := m.instance()
	defer closeSrc()
	if err != nil {
		return err
	}

	if err := inst.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not revert migrations: %w", err)
	}

	m.logger.Debug("migrations reverted")
	return nil
}

func (m *Migrator) instance() (*migrate.Migrate, func(), error) {
	closeSrc := func() {}

	driver, err := migratesqlite.WithInstance(m.db, &migratesqlite.Config{})
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create fs: %w", err)
	}
	closeSrc = func() {
		if err := src.Close(); err != nil {
			m.logger.Error("could not close migration source", "error", err)
		}
	}

	inst, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, closeSrc, fmt.Errorf("could not create migration instance: %w", err)
	}
	return inst, closeSrc, nil
}
