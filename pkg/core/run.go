package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Outcome
// =============================================================================

// Outcome is the result of a single test execution.
type Outcome string

// Outcome values.
const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
	OutcomeSkip Outcome = "skip"
)

// ParseOutcome converts a string to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(strings.ToLower(strings.TrimSpace(s))) {
	case OutcomePass:
		return OutcomePass, nil
	case OutcomeFail:
		return OutcomeFail, nil
	case OutcomeSkip:
		return OutcomeSkip, nil
	default:
		return "", fmt.Errorf("unknown outcome %q", s)
	}
}

// UnmarshalJSON rejects outcomes outside pass, fail and skip.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOutcome(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// =============================================================================
// TestResult
// =============================================================================

// TestResult is one test execution inside a run.
type TestResult struct {
	TestID      string  `json:"test_id"`
	Suite       string  `json:"suite"`
	Classname   string  `json:"classname,omitempty"`
	Name        string  `json:"name"`
	DurationMS  float64 `json:"duration_ms,omitempty"`
	Outcome     Outcome `json:"outcome"`
	RetryCount  int     `json:"retry_count,omitempty"`
	FailureText string  `json:"failure_text,omitempty"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	SystemOut   string  `json:"system_out,omitempty"`
	SystemErr   string  `json:"system_err,omitempty"`
}

// Failed reports whether the execution failed.
func (t *TestResult) Failed() bool {
	return t.Outcome == OutcomeFail
}

// LogText returns the per-test captured output used as infra hint context.
func (t *TestResult) LogText() string {
	switch {
	case t.SystemErr == "":
		return t.SystemOut
	case t.SystemOut == "":
		return t.SystemErr
	default:
		return t.SystemErr + "\n" + t.SystemOut
	}
}

// =============================================================================
// RunMetadata
// =============================================================================

// RunMetadata describes where and when a run executed.
type RunMetadata struct {
	Repo        string     `json:"repo"`
	Branch      string     `json:"branch"`
	CommitSHA   string     `json:"commit_sha"`
	CIProvider  string     `json:"ci_provider,omitempty"`
	Workflow    string     `json:"workflow,omitempty"`
	Job         string     `json:"job,omitempty"`
	BuildNumber string     `json:"build_number,omitempty"`
	Attempt     int        `json:"attempt,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	OS          string     `json:"os,omitempty"`
	Browser     string     `json:"browser,omitempty"`
	Device      string     `json:"device,omitempty"`
	RunnerPool  string     `json:"runner_pool,omitempty"`
	ShardID     string     `json:"shard_id,omitempty"`
}

// DefaultEnvKey is the environment key used when no identity field is set.
const DefaultEnvKey = "default"

// EnvKeyFields lists the metadata fields that may participate in an environment key.
var EnvKeyFields = []string{"os", "browser", "device", "runner_pool", "shard_id"}

// Field returns the value of a named metadata field and whether the name is known.
func (m *RunMetadata) Field(name string) (string, bool) {
	switch name {
	case "repo":
		return m.Repo, true
	case "branch":
		return m.Branch, true
	case "commit_sha":
		return m.CommitSHA, true
	case "ci_provider":
		return m.CIProvider, true
	case "workflow":
		return m.Workflow, true
	case "job":
		return m.Job, true
	case "os":
		return m.OS, true
	case "browser":
		return m.Browser, true
	case "device":
		return m.Device, true
	case "runner_pool":
		return m.RunnerPool, true
	case "shard_id":
		return m.ShardID, true
	default:
		return "", false
	}
}

// EnvKey joins the configured identity fields as "field=value" pairs separated by "|".
// Unset and unknown fields are skipped; DefaultEnvKey is returned when nothing is set.
func (m *RunMetadata) EnvKey(fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := m.Field(f)
		if !ok || v == "" {
			continue
		}
		parts = append(parts, f+"="+v)
	}
	if len(parts) == 0 {
		return DefaultEnvKey
	}
	return strings.Join(parts, "|")
}

// SeenAt returns started_at, falling back to ended_at. Zero when neither is set.
func (m *RunMetadata) SeenAt() time.Time {
	if m.StartedAt != nil {
		return *m.StartedAt
	}
	if m.EndedAt != nil {
		return *m.EndedAt
	}
	return time.Time{}
}

// UnmarshalJSON accepts RFC 3339 timestamps as well as zone-less ISO-8601 ones.
func (m *RunMetadata) UnmarshalJSON(data []byte) error {
	type alias RunMetadata
	aux := struct {
		*alias
		StartedAt *string `json:"started_at"`
		EndedAt   *string `json:"ended_at"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if m.StartedAt, err = parseOptionalTimestamp(aux.StartedAt); err != nil {
		return fmt.Errorf("started_at: %w", err)
	}
	if m.EndedAt, err = parseOptionalTimestamp(aux.EndedAt); err != nil {
		return fmt.Errorf("ended_at: %w", err)
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func parseOptionalTimestamp(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// =============================================================================
// Run
// =============================================================================

// LogEvent is a log artifact captured alongside a run.
type LogEvent struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Run is one CI execution. It is immutable once collected.
type Run struct {
	RunID       string        `json:"run_id"`
	Metadata    RunMetadata   `json:"metadata"`
	TestResults []*TestResult `json:"test_results"`
	LogEvents   []LogEvent    `json:"log_events,omitempty"`
}

// Failures returns the failing results in run order.
func (r *Run) Failures() []*TestResult {
	var out []*TestResult
	for _, tr := range r.TestResults {
		if tr.Failed() {
			out = append(out, tr)
		}
	}
	return out
}

// Status is "failed" when any result failed, otherwise "passed".
func (r *Run) Status() string {
	for _, tr := range r.TestResults {
		if tr.Failed() {
			return "failed"
		}
	}
	return "passed"
}

// RunSummary holds outcome totals for a run.
type RunSummary struct {
	TotalTests int     `json:"total_tests"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	DurationMS float64 `json:"duration_ms"`
}

// Summary tallies outcomes and total duration.
func (r *Run) Summary() RunSummary {
	s := RunSummary{TotalTests: len(r.TestResults)}
	for _, tr := range r.TestResults {
		switch tr.Outcome {
		case OutcomePass:
			s.Passed++
		case OutcomeFail:
			s.Failed++
		case OutcomeSkip:
			s.Skipped++
		}
		s.DurationMS += tr.DurationMS
	}
	return s
}
