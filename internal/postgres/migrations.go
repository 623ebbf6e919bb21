// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package postgres

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrate/*.sql
var migrationFiles embed.FS

// GetMigrationFiles returns the embedded ledger and pricing migrations
func GetMigrationFiles() embed.FS {
	return migrationFiles
}

// migrationNames lists the embedded up migrations in apply order
func migrationNames() ([]string, error) {
	names, err := fs.Glob(migrationFiles, "migrate/*.up.sql")
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		names[i] = strings.TrimPrefix(name, "migrate/")
	}
	return names, nil
}

// migrationURL rewrites a postgres connection URL to the scheme golang-migrate
// registers for the pgx/v5 driver
func migrationURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationFiles, "migrate")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, migrationURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// RunMigrations brings the credit ledger schema up to date. A dirty schema
// left by an interrupted run is forced back to its recorded version first.
func RunMigrations(logger *slog.Logger, databaseURL string) error {
	names, err := migrationNames()
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	logger.Info("Running credit ledger migrations", "available", len(names))

	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	currentVersion, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info("No migrations have been applied yet")
	case err != nil:
		return fmt.Errorf("failed to get current migration version: %w", err)
	case dirty:
		logger.Warn("Database is in dirty state, forcing version", "version", currentVersion)
		if err := m.Force(int(currentVersion)); err != nil {
			return fmt.Errorf("failed to force migration version: %w", err)
		}
	default:
		logger.Info("Current migration version", "version", currentVersion)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Database schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Database migrations completed successfully", "newVersion", newVersion)
	return nil
}
