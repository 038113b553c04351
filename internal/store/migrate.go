package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrator drives golang-migrate against the relational store using the
// schema embedded under internal/store/migrations. It wraps a *sql.DB
// rather than a *Store, since the migration surface runs independently of
// (and typically before) the typed stores it prepares the schema for.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator opens a migration-capable connection against db, which the
// caller owns and must close separately from the Migrator.
func NewMigrator(db *sql.DB) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: migration driver: %w", err)
	}
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("store: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("store: migrate instance: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up applies every pending migration, or the next n if n > 0. It reports
// false when the schema was already current.
func (mg *Migrator) Up(n int) (bool, error) {
	var err error
	if n > 0 {
		err = mg.m.Steps(n)
	} else {
		err = mg.m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	return err == nil, err
}

// Down rolls back n migrations, or every migration if n <= 0.
func (mg *Migrator) Down(n int) (bool, error) {
	var err error
	if n > 0 {
		err = mg.m.Steps(-n)
	} else {
		err = mg.m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	return err == nil, err
}

// Version reports the current schema version and whether it is in a dirty
// (partially applied) state.
func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close releases the underlying migration source and driver without
// closing the *sql.DB the caller supplied.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}
