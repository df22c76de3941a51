package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

func init() {
	Register("postgres", func(logger *slog.Logger) Backend { return NewPostgresStore(logger) })
}

// PostgresStore keeps history in a shared PostgreSQL database so that
// several CI runners or an rqg server can see the same clusters.
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore creates an unopened PostgreSQL store.
func NewPostgresStore(logger *slog.Logger) *PostgresStore {
	return &PostgresStore{sqlStore: newSQLStore(postgresDialect, logger)}
}

// Open connects using opts.DSN and applies migrations.
func (s *PostgresStore) Open(ctx context.Context, opts Options) error {
	if opts.DSN == "" {
		return fmt.Errorf("postgres store requires a dsn")
	}

	db, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := s.attach(ctx, db); err != nil {
		return err
	}
	s.logger.Debug("opened postgres store")
	return nil
}
