package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leapstack-labs/rqg/pkg/cluster"
	"github.com/leapstack-labs/rqg/pkg/core"
)

// GetFailureClusters aggregates failing results inside the window and
// overlays the stored cluster rows seen in the same window.
func (s *sqlStore) GetFailureClusters(ctx context.Context, lookbackDays int) ([]*core.FailureCluster, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	cutoff := s.cutoff(lookbackDays)
	agg := newClusterAggregate()

	rows, err := s.query(ctx, `
		SELECT tr.fingerprint, tr.test_id, tr.run_id, r.seen_at, tr.failure_text
		FROM test_results tr
		JOIN runs r ON r.run_id = tr.run_id
		WHERE tr.outcome = 'fail'
			AND tr.fingerprint IS NOT NULL AND tr.fingerprint <> ''
			AND r.seen_at >= ?
		ORDER BY r.seen_at, tr.position
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query failing results: %w", err)
	}
	for rows.Next() {
		var fingerprint, testID, runID, seenAt string
		var failureText *string
		if err := rows.Scan(&fingerprint, &testID, &runID, &seenAt, &failureText); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan failing result: %w", err)
		}
		t, err := parseTime(seenAt)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		text := ""
		if failureText != nil {
			text = *failureText
		}
		agg.addFailure(fingerprint, testID, runID, t, text)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to iterate failing results: %w", err)
	}
	_ = rows.Close()

	rows, err = s.query(ctx, `
		SELECT fingerprint, first_seen_at, last_seen_at, occurrence_count,
			example_failure_text, infra_hints, test_ids
		FROM failure_clusters
		WHERE last_seen_at >= ?
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query failure clusters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		agg.overlay(c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate failure clusters: %w", err)
	}

	return agg.clusters(), nil
}

// UpdateFailureCluster inserts or replaces a cluster row.
func (s *sqlStore) UpdateFailureCluster(ctx context.Context, c *core.FailureCluster) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	first, last := c.FirstSeenAt, c.LastSeenAt
	if first.IsZero() {
		first = s.now()
	}
	if last.IsZero() {
		last = first
	}

	hints, err := json.Marshal(nonNilSlice(c.InfraHints))
	if err != nil {
		return fmt.Errorf("failed to encode infra hints: %w", err)
	}
	testIDs, err := json.Marshal(nonNilSlice(c.TestIDs))
	if err != nil {
		return fmt.Errorf("failed to encode test ids: %w", err)
	}

	err = s.exec(ctx, s.db, `
		INSERT INTO failure_clusters (fingerprint, first_seen_at, last_seen_at, occurrence_count,
			example_failure_text, infra_hints, test_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			first_seen_at = excluded.first_seen_at,
			last_seen_at = excluded.last_seen_at,
			occurrence_count = excluded.occurrence_count,
			example_failure_text = excluded.example_failure_text,
			infra_hints = excluded.infra_hints,
			test_ids = excluded.test_ids
	`, c.Fingerprint, formatTime(first), formatTime(last), c.OccurrenceCount,
		cluster.Excerpt(c.ExampleFailureText, MaxExampleTextRunes), string(hints), string(testIDs))
	if err != nil {
		return fmt.Errorf("failed to update failure cluster: %w", err)
	}
	return nil
}

func scanCluster(sc scanner) (*core.FailureCluster, error) {
	var (
		c              core.FailureCluster
		first, last    string
		hints, testIDs string
	)
	if err := sc.Scan(&c.Fingerprint, &first, &last, &c.OccurrenceCount, &c.ExampleFailureText,
		&hints, &testIDs); err != nil {
		return nil, fmt.Errorf("failed to scan failure cluster: %w", err)
	}

	var err error
	if c.FirstSeenAt, err = parseTime(first); err != nil {
		return nil, err
	}
	if c.LastSeenAt, err = parseTime(last); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(hints), &c.InfraHints); err != nil {
		return nil, fmt.Errorf("failed to decode infra hints: %w", err)
	}
	if err := json.Unmarshal([]byte(testIDs), &c.TestIDs); err != nil {
		return nil, fmt.Errorf("failed to decode test ids: %w", err)
	}
	if len(c.InfraHints) == 0 {
		c.InfraHints = nil
	}
	return &c, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
