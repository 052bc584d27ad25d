package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationLogger adapts the standard logger to migrate.Logger.
type migrationLogger struct{ verbose bool }

func (l migrationLogger) Printf(format string, v ...any) {
	log.Printf("migrate: "+format, v...)
}

func (l migrationLogger) Verbose() bool { return l.verbose }

// newMigrator opens a dedicated connection for golang-migrate. Closing the
// returned Migrate closes that connection as well.
func newMigrator(ctx context.Context, databaseURL string) (*migrate.Migrate, error) {
	db, err := Open(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	m.Log = migrationLogger{}
	return m, nil
}

func closeMigrator(m *migrate.Migrate) {
	if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
		log.Printf("migrate: close: %v, %v", sourceErr, dbErr)
	}
}

// ApplyMigrations runs every pending up migration.
func ApplyMigrations(ctx context.Context, databaseURL string) error {
	m, err := newMigrator(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// RollbackMigrations reverts the last steps migrations.
func RollbackMigrations(ctx context.Context, databaseURL string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be positive, got %d", steps)
	}
	m, err := newMigrator(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Steps(-steps); err != nil {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	return nil
}

// MigrationStatus reports the applied version. Version 0 means nothing has
// been applied yet.
func MigrationStatus(ctx context.Context, databaseURL string) (version uint, dirty bool, err error) {
	m, err := newMigrator(ctx, databaseURL)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrator(m)

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}
