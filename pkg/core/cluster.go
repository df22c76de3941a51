package core

import "time"

// Hint is an infrastructure failure category.
type Hint string

// Infra hint categories, in detection order.
const (
	HintNetwork Hint = "network"
	HintRunner  Hint = "runner"
	HintSession Hint = "session"
)

// FailureCluster is the history of one failure fingerprint.
// OccurrenceCount is never lower than the number of distinct runs that contributed to it.
type FailureCluster struct {
	Fingerprint        string    `json:"fingerprint"`
	FirstSeenAt        time.Time `json:"first_seen_at"`
	LastSeenAt         time.Time `json:"last_seen_at"`
	OccurrenceCount    int       `json:"occurrence_count"`
	ExampleFailureText string    `json:"example_failure_text,omitempty"`
	InfraHints         []Hint    `json:"infra_hints,omitempty"`
	TestIDs            []string  `json:"test_ids"`
}

// AddTestID records a test id, keeping the list free of duplicates.
func (c *FailureCluster) AddTestID(id string) {
	for _, existing := range c.TestIDs {
		if existing == id {
			return
		}
	}
	c.TestIDs = append(c.TestIDs, id)
}

// HasTestID reports whether the cluster has been seen on the given test.
func (c *FailureCluster) HasTestID(id string) bool {
	for _, existing := range c.TestIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// FlakeEvidence carries the raw counts behind a flake score.
type FlakeEvidence struct {
	TotalRuns int `json:"total_runs"`
	FailCount int `json:"fail_count"`
}

// FlakeScore is a derived flakiness assessment for a test in one environment.
// It is recomputed on every analysis and never persisted.
type FlakeScore struct {
	TestID                  string        `json:"test_id"`
	EnvKey                  string        `json:"env_key"`
	FlakeScore              float64       `json:"flake_score"`
	Confidence              float64       `json:"confidence"`
	FailRate                float64       `json:"fail_rate"`
	Intermittency           int           `json:"intermittency"`
	RetryPassRate           *float64      `json:"retry_pass_rate"`
	SameCommitInconsistency bool          `json:"same_commit_inconsistency"`
	Evidence                FlakeEvidence `json:"evidence"`
}
