// Package store persists index snapshots to SQLite or PostgreSQL so that
// tools without a live engine can answer usage queries.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/electwix/db-xref/internal/logging"
)

// Driver selects the database backend.
type Driver string

const (
	// DriverSQLite stores the index in a local file through modernc.org/sqlite.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres stores the index in a shared PostgreSQL database.
	DriverPostgres Driver = "postgres"
)

// ErrUnknownDriver reports a driver name other than sqlite or postgres.
var ErrUnknownDriver = errors.New("unknown store driver")

// ParseDriver maps a configuration value to a Driver. The empty string
// selects SQLite.
func ParseDriver(s string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(s))) {
	case "", DriverSQLite:
		return DriverSQLite, nil
	case DriverPostgres, "pgx":
		return DriverPostgres, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDriver, s)
}

func (d Driver) sqlName() string {
	if d == DriverPostgres {
		return "pgx"
	}
	return "sqlite"
}

// Store is the data access layer for persisted snapshots.
type Store struct {
	db     *sql.DB
	driver Driver
	log    logging.Logger
}

// Open connects to dsn. For SQLite the dsn is a file path whose parent
// directory is created when missing.
func Open(ctx context.Context, driver Driver, dsn string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if driver == "" {
		driver = DriverSQLite
	}
	if driver == DriverSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open(driver.sqlName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if driver == DriverSQLite {
		// A single connection keeps writes serialized on the file.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	log.Debug("store opened", "driver", string(driver))
	return &Store{db: db, driver: driver, log: log}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver reports the backend in use.
func (s *Store) Driver() Driver {
	return s.driver
}

// Migrate creates every table and index. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders into the $n form PostgreSQL expects.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Statements are kept separate because the pgx driver prepares each Exec.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
  revision    TEXT PRIMARY KEY,
  generation  BIGINT NOT NULL,
  created_at  TEXT NOT NULL,
  unresolved  INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS files (
  revision  TEXT NOT NULL,
  path      TEXT NOT NULL,
  PRIMARY KEY (revision, path)
)`,
	`CREATE TABLE IF NOT EXISTS declarations (
  revision     TEXT NOT NULL,
  kind         TEXT NOT NULL,
  path         TEXT NOT NULL,
  line         INTEGER NOT NULL,
  col          INTEGER NOT NULL,
  name         TEXT NOT NULL,
  end_line     INTEGER NOT NULL,
  end_col      INTEGER NOT NULL,
  parent_kind  TEXT,
  parent_line  INTEGER,
  parent_col   INTEGER,
  parent_name  TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_declarations_name ON declarations(revision, name)`,
	`CREATE TABLE IF NOT EXISTS references_ (
  revision    TEXT NOT NULL,
  decl_kind   TEXT NOT NULL,
  decl_path   TEXT NOT NULL,
  decl_line   INTEGER NOT NULL,
  decl_col    INTEGER NOT NULL,
  decl_name   TEXT NOT NULL,
  path        TEXT NOT NULL,
  start_line  INTEGER NOT NULL,
  start_col   INTEGER NOT NULL,
  end_line    INTEGER NOT NULL,
  end_col     INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_references_decl ON references_(revision, decl_path, decl_line, decl_col)`,
	`CREATE TABLE IF NOT EXISTS external_usages (
  revision   TEXT NOT NULL,
  decl_kind  TEXT NOT NULL,
  decl_path  TEXT NOT NULL,
  decl_line  INTEGER NOT NULL,
  decl_col   INTEGER NOT NULL,
  decl_name  TEXT NOT NULL,
  handle     TEXT NOT NULL,
  path       TEXT NOT NULL,
  line       INTEGER NOT NULL,
  col        INTEGER NOT NULL,
  language   TEXT NOT NULL
)`,
}
