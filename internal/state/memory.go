package state

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/leapstack-labs/rqg/pkg/cluster"
	"github.com/leapstack-labs/rqg/pkg/core"
)

func init() {
	Register("memory", func(logger *slog.Logger) Backend { return NewMemoryStore(logger) })
}

// MemoryStore keeps history in process memory. Used for dry runs and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]*storedRun
	clusters  map[string]*core.FailureCluster
	decisions map[string]*core.DecisionRecord
	seq       int
	logger    *slog.Logger
	now       func() time.Time
}

type storedRun struct {
	run    *core.Run
	seenAt time.Time
	seq    int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MemoryStore{
		runs:      make(map[string]*storedRun),
		clusters:  make(map[string]*core.FailureCluster),
		decisions: make(map[string]*core.DecisionRecord),
		logger:    logger,
		now:       time.Now,
	}
}

// Open is a no-op.
func (m *MemoryStore) Open(_ context.Context, _ Options) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// SaveRun stores a copy of run.
func (m *MemoryStore) SaveRun(_ context.Context, run *core.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seenAt := run.Metadata.SeenAt()
	if seenAt.IsZero() {
		seenAt = m.now()
	}
	cp := copyRun(run)
	for _, tr := range cp.TestResults {
		tr.FailureText = cluster.Excerpt(tr.FailureText, MaxFailureTextRunes)
		tr.SystemOut, tr.SystemErr = "", ""
	}
	m.seq++
	m.runs[run.RunID] = &storedRun{run: cp, seenAt: seenAt, seq: m.seq}
	return nil
}

// HasRun reports whether a run is stored.
func (m *MemoryStore) HasRun(_ context.Context, runID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.runs[runID]
	return ok, nil
}

// GetRun returns a copy of a stored run.
func (m *MemoryStore) GetRun(_ context.Context, runID string) (*core.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sr, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, core.ErrNotFound)
	}
	return copyRun(sr.run), nil
}

// GetRecentRuns mirrors the SQL backends: newest first, filtered by repo,
// branch and window.
func (m *MemoryStore) GetRecentRuns(_ context.Context, repo, branch string, lookbackRuns, lookbackDays int) ([]*core.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.now().AddDate(0, 0, -lookbackDays)
	var matched []*storedRun
	for _, sr := range m.runs {
		md := sr.run.Metadata
		if md.Repo != repo || (branch != "" && md.Branch != branch) {
			continue
		}
		if sr.seenAt.Before(cutoff) {
			continue
		}
		matched = append(matched, sr)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].seenAt.Equal(matched[j].seenAt) {
			return matched[i].seenAt.After(matched[j].seenAt)
		}
		return matched[i].seq > matched[j].seq
	})
	if lookbackRuns > 0 && len(matched) > lookbackRuns {
		matched = matched[:lookbackRuns]
	}

	runs := make([]*core.Run, 0, len(matched))
	for _, sr := range matched {
		runs = append(runs, copyRun(sr.run))
	}
	return runs, nil
}

// GetFailureClusters aggregates stored failures in the window and overlays
// stored cluster rows.
func (m *MemoryStore) GetFailureClusters(_ context.Context, lookbackDays int) ([]*core.FailureCluster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.now().AddDate(0, 0, -lookbackDays)
	stored := make([]*storedRun, 0, len(m.runs))
	for _, sr := range m.runs {
		if !sr.seenAt.Before(cutoff) {
			stored = append(stored, sr)
		}
	}
	sort.Slice(stored, func(i, j int) bool {
		if !stored[i].seenAt.Equal(stored[j].seenAt) {
			return stored[i].seenAt.Before(stored[j].seenAt)
		}
		return stored[i].seq < stored[j].seq
	})

	agg := newClusterAggregate()
	for _, sr := range stored {
		for _, tr := range sr.run.TestResults {
			if !tr.Failed() || tr.Fingerprint == "" {
				continue
			}
			agg.addFailure(tr.Fingerprint, tr.TestID, sr.run.RunID, sr.seenAt, tr.FailureText)
		}
	}
	for _, c := range m.clusters {
		if c.LastSeenAt.Before(cutoff) {
			continue
		}
		agg.overlay(copyCluster(c))
	}
	return agg.clusters(), nil
}

// UpdateFailureCluster stores a copy of c.
func (m *MemoryStore) UpdateFailureCluster(_ context.Context, c *core.FailureCluster) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := copyCluster(c)
	if cp.FirstSeenAt.IsZero() {
		cp.FirstSeenAt = m.now()
	}
	if cp.LastSeenAt.IsZero() {
		cp.LastSeenAt = cp.FirstSeenAt
	}
	cp.ExampleFailureText = cluster.Excerpt(cp.ExampleFailureText, MaxExampleTextRunes)
	m.clusters[c.Fingerprint] = cp
	return nil
}

// SaveDecision stores a decision record.
func (m *MemoryStore) SaveDecision(_ context.Context, record *core.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.decisions[record.RunContext.RunID] = &cp
	return nil
}

// GetDecision returns the decision stored for a run.
func (m *MemoryStore) GetDecision(_ context.Context, runID string) (*core.DecisionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.decisions[runID]
	if !ok {
		return nil, fmt.Errorf("decision for run %s: %w", runID, core.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func copyRun(run *core.Run) *core.Run {
	cp := *run
	cp.TestResults = make([]*core.TestResult, len(run.TestResults))
	for i, tr := range run.TestResults {
		trCopy := *tr
		cp.TestResults[i] = &trCopy
	}
	if run.LogEvents != nil {
		cp.LogEvents = append([]core.LogEvent(nil), run.LogEvents...)
	}
	return &cp
}

func copyCluster(c *core.FailureCluster) *core.FailureCluster {
	cp := *c
	cp.TestIDs = append([]string(nil), c.TestIDs...)
	if c.InfraHints != nil {
		cp.InfraHints = append([]core.Hint(nil), c.InfraHints...)
	}
	return &cp
}
