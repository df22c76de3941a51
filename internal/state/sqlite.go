package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

func init() {
	Register("sqlite", func(logger *slog.Logger) Backend { return NewSQLiteStore(logger) })
}

// SQLiteStore is the default history backend, a single SQLite file.
type SQLiteStore struct {
	sqlStore
	path string
}

// NewSQLiteStore creates an unopened SQLite store.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{sqlStore: newSQLStore(sqliteDialect, logger)}
}

// Open opens (or creates) the database at opts.Path and applies migrations.
func (s *SQLiteStore) Open(ctx context.Context, opts Options) error {
	path := opts.Path
	if path == "" {
		return fmt.Errorf("sqlite store requires a path")
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to configure database: %w", err)
		}
	}

	if err := s.attach(ctx, db); err != nil {
		return err
	}
	s.path = path
	s.logger.Debug("opened sqlite store", "path", path)
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}
