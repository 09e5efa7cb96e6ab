package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// RunMigrations applies pending migrations. Safe to call on every start.
// The migrate instance is not closed because that would close the caller's *sql.DB.
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("applied migrations", zap.Uint("version", version))
	return nil
}

// MigrationStatus reports whether the schema matches the embedded migrations.
func MigrationStatus(db *sql.DB) (current uint, latest uint, err error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, 0, err
	}

	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return current, 0, fmt.Errorf("schema is dirty at version %d", current)
	}

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return current, 0, fmt.Errorf("read migration files: %w", err)
	}
	defer src.Close()

	latest, err = latestVersion(src)
	if err != nil {
		return current, 0, err
	}
	return current, latest, nil
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

func latestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("first migration: %w", err)
	}
	for {
		next, err := src.Next(version)
		if err != nil {
			return version, nil
		}
		version = next
	}
}
