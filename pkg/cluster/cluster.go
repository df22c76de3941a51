// Package cluster classifies failing results against known failure clusters.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// MaxExcerptRunes bounds the failure text carried by a new cluster candidate.
const MaxExcerptRunes = 500

// Updater persists cluster changes.
type Updater interface {
	UpdateFailureCluster(ctx context.Context, cluster *core.FailureCluster) error
}

// Tracker matches failing results to clusters by fingerprint.
type Tracker struct {
	store  Updater
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker. A nil logger discards output.
func NewTracker(store Updater, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{store: store, logger: logger, now: time.Now}
}

// Result is the outcome of classifying one run.
type Result struct {
	// New holds one candidate per failing result whose fingerprint has no
	// history, in result order. Results sharing a fingerprint each count.
	New []core.NewClusterEvidence
	// Known maps fingerprints that matched history to their updated clusters.
	Known map[string]*core.FailureCluster
	// Occurrences counts failing results per new fingerprint.
	Occurrences map[string]int
}

// IsKnown reports whether fingerprint matched an existing cluster.
func (r *Result) IsKnown(fingerprint string) bool {
	_, ok := r.Known[fingerprint]
	return ok
}

// IndexByFingerprint builds the lookup used by Classify.
func IndexByFingerprint(clusters []*core.FailureCluster) map[string]*core.FailureCluster {
	idx := make(map[string]*core.FailureCluster, len(clusters))
	for _, c := range clusters {
		idx[c.Fingerprint] = c
	}
	return idx
}

// Classify splits failing results into new-cluster candidates and known
// clusters. Every known cluster a failure lands on has its last-seen time
// advanced, its occurrence count incremented, the test id recorded, and is
// persisted before Classify returns. Results without a fingerprint are skipped.
func (t *Tracker) Classify(ctx context.Context, run *core.Run, failing []*core.TestResult, known map[string]*core.FailureCluster) (*Result, error) {
	res := &Result{
		Known:       make(map[string]*core.FailureCluster),
		Occurrences: make(map[string]int),
	}

	seenAt := run.Metadata.SeenAt()
	if seenAt.IsZero() {
		seenAt = t.now().UTC()
	}

	var dirty []*core.FailureCluster
	for _, tr := range failing {
		if tr.Fingerprint == "" {
			continue
		}

		c, ok := known[tr.Fingerprint]
		if !ok {
			res.New = append(res.New, core.NewClusterEvidence{
				TestID:      tr.TestID,
				Fingerprint: tr.Fingerprint,
				FailureText: Excerpt(tr.FailureText, MaxExcerptRunes),
			})
			res.Occurrences[tr.Fingerprint]++
			continue
		}

		if _, touched := res.Known[c.Fingerprint]; !touched {
			dirty = append(dirty, c)
		}
		if seenAt.After(c.LastSeenAt) {
			c.LastSeenAt = seenAt
		}
		c.OccurrenceCount++
		c.AddTestID(tr.TestID)
		res.Known[c.Fingerprint] = c
	}

	for _, c := range dirty {
		if err := t.store.UpdateFailureCluster(ctx, c); err != nil {
			return nil, fmt.Errorf("failed to update cluster %s: %w", short(c.Fingerprint), err)
		}
	}

	t.logger.Debug("classified failures",
		"run_id", run.RunID,
		"new", len(res.New),
		"known", len(res.Known))

	return res, nil
}

// Seed persists one first-seen cluster per new fingerprint in res.
// hints supplies the infra hints observed for each fingerprint.
func (t *Tracker) Seed(ctx context.Context, run *core.Run, failing []*core.TestResult, res *Result, hints map[string][]core.Hint) error {
	seenAt := run.Metadata.SeenAt()
	if seenAt.IsZero() {
		seenAt = t.now().UTC()
	}

	seeded := make(map[string]bool, len(res.Occurrences))
	for _, ev := range res.New {
		if seeded[ev.Fingerprint] {
			continue
		}
		seeded[ev.Fingerprint] = true
		c := &core.FailureCluster{
			Fingerprint:        ev.Fingerprint,
			FirstSeenAt:        seenAt,
			LastSeenAt:         seenAt,
			OccurrenceCount:    res.Occurrences[ev.Fingerprint],
			ExampleFailureText: ev.FailureText,
			InfraHints:         hints[ev.Fingerprint],
		}
		for _, tr := range failing {
			if tr.Fingerprint == ev.Fingerprint {
				c.AddTestID(tr.TestID)
			}
		}
		if err := t.store.UpdateFailureCluster(ctx, c); err != nil {
			return fmt.Errorf("failed to seed cluster %s: %w", short(c.Fingerprint), err)
		}
	}
	return nil
}

// Excerpt truncates s to at most n runes.
func Excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func short(fp string) string {
	if len(fp) > 16 {
		return fp[:16]
	}
	return fp
}
