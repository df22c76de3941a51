package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Column limits for stored failure text.
const (
	MaxFailureTextRunes = 10000
	MaxExampleTextRunes = 5000
)

// timeLayout is fixed width so stored timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// dialect captures the differences between the SQL backends.
type dialect struct {
	// goose is the goose dialect name.
	goose string
	// numbered selects $N placeholders instead of ?.
	numbered bool
}

var (
	sqliteDialect   = dialect{goose: "sqlite"}
	postgresDialect = dialect{goose: "postgres", numbered: true}
)

// rebind rewrites ? placeholders for the dialect.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
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

// sqlStore implements core.HistoryStore over database/sql.
// The sqlite and postgres backends embed it.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
	now     func() time.Time
}

func newSQLStore(d dialect, logger *slog.Logger) sqlStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return sqlStore{dialect: d, logger: logger, now: time.Now}
}

// attach takes ownership of db and migrates it.
func (s *sqlStore) attach(ctx context.Context, db *sql.DB) error {
	if err := runMigrations(ctx, db, s.dialect.goose); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	return nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database connection.
func (s *sqlStore) DB() *sql.DB {
	return s.db
}

// SchemaVersion returns the applied migration version.
func (s *sqlStore) SchemaVersion(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not opened")
	}
	return schemaVersion(ctx, s.db, s.dialect.goose)
}

func (s *sqlStore) exec(ctx context.Context, q execer, query string, args ...any) error {
	_, err := q.ExecContext(ctx, s.dialect.rebind(query), args...)
	return err
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *sqlStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// Value helpers
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// cutoff returns the earliest timestamp inside a lookback window.
func (s *sqlStore) cutoff(lookbackDays int) string {
	return formatTime(s.now().AddDate(0, 0, -lookbackDays))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
