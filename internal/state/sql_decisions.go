package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// SaveDecision stores the decision record for its run, replacing any earlier one.
func (s *sqlStore) SaveDecision(ctx context.Context, record *core.DecisionRecord) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	err = s.exec(ctx, s.db, `
		INSERT INTO decisions (run_id, decision, record, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			decision = excluded.decision,
			record = excluded.record,
			created_at = excluded.created_at
	`, record.RunContext.RunID, string(record.Decision), string(data), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}
	return nil
}

// GetDecision retrieves the decision record stored for a run.
func (s *sqlStore) GetDecision(ctx context.Context, runID string) (*core.DecisionRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var data string
	err := s.queryRow(ctx, `SELECT record FROM decisions WHERE run_id = ?`, runID).Scan(&data)
	if isNoRows(err) {
		return nil, fmt.Errorf("decision for run %s: %w", runID, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	var record core.DecisionRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to decode decision: %w", err)
	}
	return &record, nil
}
