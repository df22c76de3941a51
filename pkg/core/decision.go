package core

import "time"

// =============================================================================
// Decision
// =============================================================================

// Decision is the gate outcome for a run.
type Decision string

// Decision values, in increasing severity.
const (
	DecisionPass      Decision = "PASS"
	DecisionSoftBlock Decision = "SOFT_BLOCK"
	DecisionHardBlock Decision = "HARD_BLOCK"
)

// ReasonType identifies which gating rule produced a reason.
type ReasonType string

// Reason types.
const (
	ReasonNewFailureClusters  ReasonType = "new_failure_clusters"
	ReasonCriticalPathFailure ReasonType = "critical_path_failure"
	ReasonRequiredSuiteFailed ReasonType = "required_suite_failure"
	ReasonTooManyFlaky        ReasonType = "too_many_flaky"
	ReasonTooManyInfra        ReasonType = "too_many_infra"
)

// ReasonSeverity grades a decision reason.
type ReasonSeverity string

// Reason severities.
const (
	SeverityHigh   ReasonSeverity = "high"
	SeverityMedium ReasonSeverity = "medium"
)

// ReasonData holds the structured payload of a decision reason. Only the fields
// relevant to the reason type are set.
type ReasonData struct {
	Count        int                  `json:"count,omitempty"`
	Max          int                  `json:"max,omitempty"`
	TestID       string               `json:"test_id,omitempty"`
	Suite        string               `json:"suite,omitempty"`
	CriticalPath string               `json:"critical_path,omitempty"`
	Clusters     []NewClusterEvidence `json:"clusters,omitempty"`
}

// DecisionReason explains one contribution to the decision.
type DecisionReason struct {
	Type     ReasonType     `json:"type"`
	Severity ReasonSeverity `json:"severity"`
	Message  string         `json:"message"`
	Data     ReasonData     `json:"data"`
}

// =============================================================================
// Evidence
// =============================================================================

// NewClusterEvidence is a failure whose fingerprint has no history.
type NewClusterEvidence struct {
	TestID      string `json:"test_id"`
	Fingerprint string `json:"fingerprint"`
	FailureText string `json:"failure_text,omitempty"`
}

// FlakyEvidence is a failure on a known cluster from a test scored as flaky.
type FlakyEvidence struct {
	TestID      string        `json:"test_id"`
	Fingerprint string        `json:"fingerprint"`
	FlakeScore  float64       `json:"flake_score"`
	Confidence  float64       `json:"confidence"`
	Evidence    FlakeEvidence `json:"evidence"`
}

// InfraEvidence is a failure whose text or logs match infrastructure patterns.
type InfraEvidence struct {
	TestID      string `json:"test_id"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Hints       []Hint `json:"hints"`
}

// =============================================================================
// Recommendations
// =============================================================================

// RerunPlan is a targeted rerun suggestion.
type RerunPlan struct {
	Tests      []string `json:"tests"`
	RunnerPool string   `json:"runner_pool"`
	Attempts   int      `json:"attempts"`
	Reason     string   `json:"reason"`
}

// QuarantineCandidate is a test flaky enough, with enough evidence, to quarantine.
type QuarantineCandidate struct {
	TestID     string        `json:"test_id"`
	FlakeScore float64       `json:"flake_score"`
	Confidence float64       `json:"confidence"`
	Evidence   FlakeEvidence `json:"evidence"`
}

// InfraHotspot is an environment dimension that concentrated infra failures.
type InfraHotspot struct {
	Dimension string `json:"dimension"`
	Value     string `json:"value"`
	Weight    int    `json:"weight"`
}

// Recommendations are advisory actions. They never influence the decision.
type Recommendations struct {
	TargetedRerun        *RerunPlan            `json:"targeted_rerun"`
	QuarantineCandidates []QuarantineCandidate `json:"quarantine_candidates"`
	InfraHotspots        []InfraHotspot        `json:"infra_hotspots"`
}

// =============================================================================
// DecisionRecord
// =============================================================================

// RunContext identifies the analyzed run.
type RunContext struct {
	RunID   string `json:"run_id"`
	Repo    string `json:"repo"`
	Commit  string `json:"commit"`
	Branch  string `json:"branch"`
	Job     string `json:"job,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	EnvKey  string `json:"env_key"`
}

// InputsPresent describes which inputs the analysis had available.
type InputsPresent struct {
	JUnitCount    int      `json:"junit_count"`
	LogsPresent   bool     `json:"logs_present"`
	MissingFields []string `json:"missing_fields,omitempty"`
	HistoryRuns   int      `json:"history_runs"`
	KnownClusters int      `json:"known_clusters"`
}

// PolicySnapshot pins the policy a decision was made under.
type PolicySnapshot struct {
	Mode    string `json:"mode"`
	Version int    `json:"version"`
	Hash    string `json:"hash"`
}

// DecisionRecord is the full, serializable output of one analysis.
type DecisionRecord struct {
	RunContext         RunContext           `json:"run_context"`
	InputsPresent      InputsPresent        `json:"inputs_present"`
	Policy             PolicySnapshot       `json:"policy"`
	CurrentRunSummary  RunSummary           `json:"current_run_summary"`
	NewFailureClusters []NewClusterEvidence `json:"new_failure_clusters"`
	KnownFlakyFailures []FlakyEvidence      `json:"known_flaky_failures"`
	InfraFailures      []InfraEvidence      `json:"infra_failures"`
	Recommendations    Recommendations      `json:"recommendations"`
	Decision           Decision             `json:"decision"`
	DecisionReasons    []DecisionReason     `json:"decision_reasons"`
	AnalysisErrors     []string             `json:"analysis_errors,omitempty"`
	Timestamp          time.Time            `json:"timestamp"`
}
