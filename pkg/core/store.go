package core

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// HistoryStore persists runs, failure clusters and decisions.
type HistoryStore interface {
	// GetRecentRuns returns runs for repo (and branch, when non-empty) seen within
	// lookbackDays, newest first, at most lookbackRuns of them.
	GetRecentRuns(ctx context.Context, repo, branch string, lookbackRuns, lookbackDays int) ([]*Run, error)
	// GetFailureClusters returns every cluster seen within lookbackDays.
	GetFailureClusters(ctx context.Context, lookbackDays int) ([]*FailureCluster, error)
	SaveRun(ctx context.Context, run *Run) error
	UpdateFailureCluster(ctx context.Context, cluster *FailureCluster) error

	HasRun(ctx context.Context, runID string) (bool, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	SaveDecision(ctx context.Context, record *DecisionRecord) error
	GetDecision(ctx context.Context, runID string) (*DecisionRecord, error)

	Close() error
}
