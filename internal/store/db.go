// Package store persists the room directory: which rooms this profile has
// opened and when they were last active. Message bodies are never stored.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sereno-app/sereno/internal/store/migrations"
)

// DB is the rooms.db handle of one profile.
type DB struct {
	*sql.DB
}

// dsnOptions enables WAL so the cleanup job and the activity recorder do not
// block each other.
var dsnOptions = url.Values{
	"_journal_mode": {"WAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"on"},
}

// Open opens the database at path and checks it is reachable.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?"+dsnOptions.Encode())
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	return &DB{DB: conn}, nil
}

// MigrateResult reports the schema version after Migrate.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate applies the embedded schema migrations that are not yet recorded.
func (db *DB) Migrate() (MigrateResult, error) {
	var res MigrateResult

	m, err := db.migrator()
	if err != nil {
		return res, err
	}

	switch err := m.Up(); {
	case err == nil:
		res.Changed = true
	case errors.Is(err, migrate.ErrNoChange):
	default:
		return res, fmt.Errorf("store: migrate up: %w", err)
	}

	res.Version, res.Dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return res, fmt.Errorf("store: schema version: %w", err)
	}
	return res, nil
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("store: migration source: %w", err)
	}
	drv, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: migration driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "sqlite3", drv)
}
