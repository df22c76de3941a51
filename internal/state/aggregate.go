package state

import (
	"sort"
	"time"

	"github.com/leapstack-labs/rqg/pkg/cluster"
	"github.com/leapstack-labs/rqg/pkg/core"
)

// clusterAggregate derives failure clusters from stored failing results and
// merges them with persisted cluster rows.
type clusterAggregate struct {
	byFingerprint map[string]*aggregateEntry
}

type aggregateEntry struct {
	cluster *core.FailureCluster
	runs    map[string]struct{}
}

func newClusterAggregate() *clusterAggregate {
	return &clusterAggregate{byFingerprint: make(map[string]*aggregateEntry)}
}

// addFailure records one failing result seen in runID at seenAt.
func (a *clusterAggregate) addFailure(fingerprint, testID, runID string, seenAt time.Time, failureText string) {
	e, ok := a.byFingerprint[fingerprint]
	if !ok {
		e = &aggregateEntry{
			cluster: &core.FailureCluster{
				Fingerprint:        fingerprint,
				FirstSeenAt:        seenAt,
				LastSeenAt:         seenAt,
				ExampleFailureText: cluster.Excerpt(failureText, MaxExampleTextRunes),
			},
			runs: make(map[string]struct{}),
		}
		a.byFingerprint[fingerprint] = e
	}

	c := e.cluster
	if seenAt.Before(c.FirstSeenAt) {
		c.FirstSeenAt = seenAt
	}
	if seenAt.After(c.LastSeenAt) {
		c.LastSeenAt = seenAt
	}
	if c.ExampleFailureText == "" {
		c.ExampleFailureText = cluster.Excerpt(failureText, MaxExampleTextRunes)
	}
	c.AddTestID(testID)
	e.runs[runID] = struct{}{}
	c.OccurrenceCount = len(e.runs)
}

// overlay merges a persisted cluster into the aggregate. Stored metadata wins,
// except that counts never drop below the distinct run count and test ids are unioned.
func (a *clusterAggregate) overlay(stored *core.FailureCluster) {
	e, ok := a.byFingerprint[stored.Fingerprint]
	if !ok {
		a.byFingerprint[stored.Fingerprint] = &aggregateEntry{cluster: stored}
		return
	}

	derived := e.cluster
	merged := &core.FailureCluster{
		Fingerprint:        stored.Fingerprint,
		FirstSeenAt:        stored.FirstSeenAt,
		LastSeenAt:         stored.LastSeenAt,
		OccurrenceCount:    max(stored.OccurrenceCount, derived.OccurrenceCount),
		ExampleFailureText: stored.ExampleFailureText,
		InfraHints:         stored.InfraHints,
	}
	if derived.FirstSeenAt.Before(merged.FirstSeenAt) {
		merged.FirstSeenAt = derived.FirstSeenAt
	}
	if derived.LastSeenAt.After(merged.LastSeenAt) {
		merged.LastSeenAt = derived.LastSeenAt
	}
	if merged.ExampleFailureText == "" {
		merged.ExampleFailureText = derived.ExampleFailureText
	}
	for _, id := range stored.TestIDs {
		merged.AddTestID(id)
	}
	for _, id := range derived.TestIDs {
		merged.AddTestID(id)
	}
	e.cluster = merged
}

// clusters returns the merged clusters, most recently seen first.
func (a *clusterAggregate) clusters() []*core.FailureCluster {
	out := make([]*core.FailureCluster, 0, len(a.byFingerprint))
	for _, e := range a.byFingerprint {
		if e.cluster.TestIDs == nil {
			e.cluster.TestIDs = []string{}
		}
		out = append(out, e.cluster)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeenAt.Equal(out[j].LastSeenAt) {
			return out[i].LastSeenAt.After(out[j].LastSeenAt)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out
}
