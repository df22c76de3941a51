package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/leapstack-labs/rqg/pkg/cluster"
	"github.com/leapstack-labs/rqg/pkg/core"
)

const runColumns = `run_id, repo, branch, commit_sha, ci_provider, workflow, job, build_number,
	attempt, started_at, ended_at, os, browser, device, runner_pool, shard_id, log_events`

const resultColumns = `run_id, test_id, suite, classname, name, duration_ms, outcome,
	retry_count, failure_text, fingerprint`

// SaveRun stores a run and replaces its test results.
func (s *sqlStore) SaveRun(ctx context.Context, run *core.Run) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	md := run.Metadata
	seenAt := md.SeenAt()
	if seenAt.IsZero() {
		seenAt = s.now()
	}

	logEvents, err := json.Marshal(nonNilSlice(run.LogEvents))
	if err != nil {
		return fmt.Errorf("failed to encode log events: %w", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		err := s.exec(ctx, tx, `
			INSERT INTO runs (run_id, repo, branch, commit_sha, ci_provider, workflow, job, build_number,
				attempt, started_at, ended_at, seen_at, os, browser, device, runner_pool, shard_id,
				status, log_events, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (run_id) DO UPDATE SET
				repo = excluded.repo,
				branch = excluded.branch,
				commit_sha = excluded.commit_sha,
				ci_provider = excluded.ci_provider,
				workflow = excluded.workflow,
				job = excluded.job,
				build_number = excluded.build_number,
				attempt = excluded.attempt,
				started_at = excluded.started_at,
				ended_at = excluded.ended_at,
				seen_at = excluded.seen_at,
				os = excluded.os,
				browser = excluded.browser,
				device = excluded.device,
				runner_pool = excluded.runner_pool,
				shard_id = excluded.shard_id,
				status = excluded.status,
				log_events = excluded.log_events
		`, run.RunID, md.Repo, md.Branch, md.CommitSHA, md.CIProvider, md.Workflow, md.Job, md.BuildNumber,
			md.Attempt, nullTime(md.StartedAt), nullTime(md.EndedAt), formatTime(seenAt),
			md.OS, md.Browser, md.Device, md.RunnerPool, md.ShardID,
			run.Status(), string(logEvents), formatTime(s.now()))
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}

		if err := s.exec(ctx, tx, `DELETE FROM test_results WHERE run_id = ?`, run.RunID); err != nil {
			return fmt.Errorf("failed to clear test results: %w", err)
		}

		for i, tr := range run.TestResults {
			err := s.exec(ctx, tx, `
				INSERT INTO test_results (run_id, position, test_id, suite, classname, name, duration_ms,
					outcome, retry_count, failure_text, fingerprint)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, run.RunID, i, tr.TestID, tr.Suite, tr.Classname, tr.Name, tr.DurationMS,
				string(tr.Outcome), tr.RetryCount,
				nullString(cluster.Excerpt(tr.FailureText, MaxFailureTextRunes)),
				nullString(tr.Fingerprint))
			if err != nil {
				return fmt.Errorf("failed to save test result %s: %w", tr.TestID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("saved run", "run_id", run.RunID, "results", len(run.TestResults))
	return nil
}

// HasRun reports whether a run is stored.
func (s *sqlStore) HasRun(ctx context.Context, runID string) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("database not opened")
	}
	var one int
	err := s.queryRow(ctx, `SELECT 1 FROM runs WHERE run_id = ?`, runID).Scan(&one)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up run: %w", err)
	}
	return true, nil
}

// GetRun retrieves a stored run with its results.
func (s *sqlStore) GetRun(ctx context.Context, runID string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	row := s.queryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if isNoRows(err) {
		return nil, fmt.Errorf("run %s: %w", runID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if err := s.loadResults(ctx, []*core.Run{run}); err != nil {
		return nil, err
	}
	return run, nil
}

// GetRecentRuns returns runs for repo (and branch, when set) inside the
// lookback window, newest first.
func (s *sqlStore) GetRecentRuns(ctx context.Context, repo, branch string, lookbackRuns, lookbackDays int) ([]*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	query := `SELECT ` + runColumns + ` FROM runs WHERE repo = ? AND seen_at >= ?`
	args := []any{repo, s.cutoff(lookbackDays)}
	if branch != "" {
		query += ` AND branch = ?`
		args = append(args, branch)
	}
	query += ` ORDER BY seen_at DESC, created_at DESC`
	if lookbackRuns > 0 {
		query += ` LIMIT ?`
		args = append(args, lookbackRuns)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	if err := s.loadResults(ctx, runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// loadResults fills TestResults for the given runs in one query.
func (s *sqlStore) loadResults(ctx context.Context, runs []*core.Run) error {
	if len(runs) == 0 {
		return nil
	}

	byID := make(map[string]*core.Run, len(runs))
	args := make([]any, 0, len(runs))
	for _, r := range runs {
		byID[r.RunID] = r
		args = append(args, r.RunID)
	}

	rows, err := s.query(ctx, `SELECT `+resultColumns+` FROM test_results WHERE run_id IN (`+
		placeholders(len(runs))+`) ORDER BY run_id, position`, args...)
	if err != nil {
		return fmt.Errorf("failed to query test results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			runID, outcome      string
			failureText, finger sql.NullString
			tr                  core.TestResult
		)
		if err := rows.Scan(&runID, &tr.TestID, &tr.Suite, &tr.Classname, &tr.Name, &tr.DurationMS,
			&outcome, &tr.RetryCount, &failureText, &finger); err != nil {
			return fmt.Errorf("failed to scan test result: %w", err)
		}
		tr.Outcome = core.Outcome(outcome)
		tr.FailureText = failureText.String
		tr.Fingerprint = finger.String

		if run, ok := byID[runID]; ok {
			run.TestResults = append(run.TestResults, &tr)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate test results: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*core.Run, error) {
	var (
		run            core.Run
		started, ended sql.NullString
		logEvents      string
	)
	md := &run.Metadata
	if err := sc.Scan(&run.RunID, &md.Repo, &md.Branch, &md.CommitSHA, &md.CIProvider, &md.Workflow,
		&md.Job, &md.BuildNumber, &md.Attempt, &started, &ended, &md.OS, &md.Browser, &md.Device,
		&md.RunnerPool, &md.ShardID, &logEvents); err != nil {
		return nil, err
	}

	var err error
	if md.StartedAt, err = parseNullTime(started); err != nil {
		return nil, err
	}
	if md.EndedAt, err = parseNullTime(ended); err != nil {
		return nil, err
	}
	if logEvents != "" {
		if err := json.Unmarshal([]byte(logEvents), &run.LogEvents); err != nil {
			return nil, fmt.Errorf("failed to decode log events: %w", err)
		}
	}
	if len(run.LogEvents) == 0 {
		run.LogEvents = nil
	}
	return &run, nil
}
