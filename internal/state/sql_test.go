package state

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/rqg/internal/testutil"
	"github.com/leapstack-labs/rqg/pkg/core"
)

func newMockStore(t *testing.T, d dialect) (*sqlStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := newSQLStore(d, testutil.NewTestLogger(t))
	s.db = db
	s.now = func() time.Time { return testNow }
	return &s, mock
}

func TestDialectRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect dialect
		query   string
		want    string
	}{
		{name: "sqlite unchanged", dialect: sqliteDialect, query: "SELECT * FROM runs WHERE a = ? AND b = ?", want: "SELECT * FROM runs WHERE a = ? AND b = ?"},
		{name: "postgres numbered", dialect: postgresDialect, query: "SELECT * FROM runs WHERE a = ? AND b = ?", want: "SELECT * FROM runs WHERE a = $1 AND b = $2"},
		{name: "postgres many", dialect: postgresDialect, query: "VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", want: "VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)"},
		{name: "no placeholders", dialect: postgresDialect, query: "SELECT 1", want: "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.rebind(tt.query))
		})
	}
}

func TestSQLStore_NotOpened(t *testing.T) {
	s := newSQLStore(sqliteDialect, nil)
	ctx := t.Context()

	_, err := s.HasRun(ctx, "r1")
	assert.EqualError(t, err, "database not opened")
	assert.EqualError(t, s.SaveRun(ctx, &core.Run{RunID: "r1"}), "database not opened")
	_, err = s.GetRecentRuns(ctx, "repo", "main", 10, 14)
	assert.EqualError(t, err, "database not opened")
	_, err = s.GetFailureClusters(ctx, 14)
	assert.EqualError(t, err, "database not opened")
	assert.EqualError(t, s.UpdateFailureCluster(ctx, &core.FailureCluster{}), "database not opened")
	assert.EqualError(t, s.SaveDecision(ctx, &core.DecisionRecord{}), "database not opened")
	_, err = s.GetDecision(ctx, "r1")
	assert.EqualError(t, err, "database not opened")
	assert.NoError(t, s.Close())
}

func TestSQLStore_PostgresPlaceholders(t *testing.T) {
	s, mock := newMockStore(t, postgresDialect)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM runs WHERE run_id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	ok, err := s.HasRun(t.Context(), "r1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_HasRunQueryError(t *testing.T) {
	s, mock := newMockStore(t, sqliteDialect)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM runs WHERE run_id = ?")).
		WithArgs("r1").
		WillReturnError(errors.New("connection reset"))

	_, err := s.HasRun(t.Context(), "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to look up run")
	assert.Contains(t, err.Error(), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SaveRunRollsBackOnResultError(t *testing.T) {
	s, mock := newMockStore(t, sqliteDialect)
	run := testutil.NewRun("r1").Pass("a", "unit").Build()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM test_results").WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO test_results").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SaveRun(t.Context(), run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save test result a")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SaveRunBeginError(t *testing.T) {
	s, mock := newMockStore(t, sqliteDialect)
	mock.ExpectBegin().WillReturnError(errors.New("locked"))

	err := s.SaveRun(t.Context(), testutil.NewRun("r1").Build())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetRecentRunsQueryError(t *testing.T) {
	s, mock := newMockStore(t, postgresDialect)

	mock.ExpectQuery(regexp.QuoteMeta("FROM runs WHERE repo = $1 AND seen_at >= $2 AND branch = $3")).
		WillReturnError(errors.New("timeout"))

	_, err := s.GetRecentRuns(t.Context(), "acme/shop", "main", 50, 14)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query runs")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetFailureClustersBadTimestamp(t *testing.T) {
	s, mock := newMockStore(t, sqliteDialect)

	mock.ExpectQuery("FROM test_results tr").
		WillReturnRows(sqlmock.NewRows([]string{"fingerprint", "test_id", "run_id", "seen_at", "failure_text"}).
			AddRow("fp", "t1", "r1", "yesterday", "boom"))

	_, err := s.GetFailureClusters(t.Context(), 14)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid stored timestamp")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpdateFailureClusterError(t *testing.T) {
	s, mock := newMockStore(t, postgresDialect)

	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7)")).
		WillReturnError(errors.New("constraint"))

	err := s.UpdateFailureCluster(t.Context(), &core.FailureCluster{Fingerprint: "fp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update failure cluster")
	require.NoError(t, mock.ExpectationsWereMet())
}
