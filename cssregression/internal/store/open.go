// CLAUDE:SUMMARY Opens the SQLite run history with production pragmas applied via Exec and the schema installed.
// Package store keeps the history of reference and test runs in SQLite:
// one row per run, one row per compared test case.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// pragmas are applied with Exec so they hold whatever the driver's DSN
// syntax.
var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// Store is the run history database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path, creating parent
// directories, and applies the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := setup(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

// OpenMemory opens an in-memory store for tests. All queries go through a
// single connection, since every ":memory:" connection is its own database.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := setup(db); err != nil {
		db.Close()
		t.Fatalf("store.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

func setup(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("store: exec schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}
