package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func (s *PersistentStore) migrator() (*migrate.Migrate, error) {
	d, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}

	var (
		driver database.Driver
		name   string
	)
	switch s.driver {
	case DriverPostgres:
		name = "pgx5"
		driver, err = pgxmigrate.WithInstance(s.db, &pgxmigrate.Config{})
	default:
		// This driver works with modernc.org/sqlite as well
		name = "sqlite"
		driver, err = sqlite.WithInstance(s.db, &sqlite.Config{})
	}
	if err != nil {
		return nil, err
	}

	return migrate.NewWithInstance("iofs", d, name, driver)
}

func (s *PersistentStore) RunMigrations() error {
	m, err := s.migrator()
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// SchemaVersion reports the applied migration version, or 0 on an empty
// database.
func (s *PersistentStore) SchemaVersion() (int, error) {
	m, err := s.migrator()
	if err != nil {
		return 0, err
	}

	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, err
	case dirty:
		return int(v), fmt.Errorf("schema version %d is dirty", v)
	}
	return int(v), nil
}
