package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leapstack-labs/rqg/pkg/cluster"
	"github.com/leapstack-labs/rqg/pkg/core"
)

// Summary limits.
const (
	summaryMaxNewClusters = 10
	summaryFingerprintLen = 16
	summaryExcerptRunes   = 200
)

// WriteDecision writes the record as indented JSON.
func WriteDecision(path string, record *core.DecisionRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// WriteSummary writes the markdown summary of the record.
func WriteSummary(path string, record *core.DecisionRecord) error {
	return writeFile(path, []byte(Summary(record)))
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Summary renders the record as a markdown report.
func Summary(record *core.DecisionRecord) string {
	var lines []string
	add := func(format string, a ...any) {
		lines = append(lines, fmt.Sprintf(format, a...))
	}

	add("# RQG Decision Summary\n")
	add("**Decision:** %s\n", record.Decision)
	add("**Timestamp:** %s\n", record.Timestamp.UTC().Format(time.RFC3339))

	rc := record.RunContext
	add("\n## Run Context\n")
	add("- Repository: %s", rc.Repo)
	add("- Branch: %s", rc.Branch)
	add("- Commit: %s", rc.Commit)
	add("- Job: %s", rc.Job)
	add("- Attempt: %d", rc.Attempt)
	add("- Environment: %s", rc.EnvKey)

	s := record.CurrentRunSummary
	add("\n## Current Run Summary\n")
	add("- Total Tests: %d", s.TotalTests)
	add("- Passed: %d", s.Passed)
	add("- Failed: %d", s.Failed)
	add("- Skipped: %d", s.Skipped)

	if len(record.NewFailureClusters) > 0 {
		add("\n## New Failure Clusters (%d)\n", len(record.NewFailureClusters))
		for i, nc := range record.NewFailureClusters {
			if i == summaryMaxNewClusters {
				break
			}
			add("### %s\n", nc.TestID)
			add("- Fingerprint: `%s...`", shortFingerprint(nc.Fingerprint))
			add("- Error: ```%s```\n", cluster.Excerpt(nc.FailureText, summaryExcerptRunes))
		}
	}

	if len(record.KnownFlakyFailures) > 0 {
		add("\n## Known Flaky Failures (%d)\n", len(record.KnownFlakyFailures))
		for _, kf := range record.KnownFlakyFailures {
			add("- %s (flake score: %.2f, confidence: %.2f)", kf.TestID, kf.FlakeScore, kf.Confidence)
		}
	}

	if len(record.InfraFailures) > 0 {
		add("\n## Infrastructure Failures (%d)\n", len(record.InfraFailures))
		for _, inf := range record.InfraFailures {
			add("- %s: %s", inf.TestID, joinHints(inf.Hints))
		}
	}

	recs := record.Recommendations
	if recs.TargetedRerun != nil || len(recs.QuarantineCandidates) > 0 || len(recs.InfraHotspots) > 0 {
		add("\n## Recommendations\n")
		if plan := recs.TargetedRerun; plan != nil {
			add("### Targeted Rerun Plan\n")
			add("- Tests: %d", len(plan.Tests))
			add("- Runner Pool: %s", plan.RunnerPool)
			add("- Attempts: %d", plan.Attempts)
			add("- Reason: %s\n", plan.Reason)
		}
		if len(recs.QuarantineCandidates) > 0 {
			add("### Quarantine Candidates\n")
			for _, qc := range recs.QuarantineCandidates {
				add("- %s (score: %.2f)", qc.TestID, qc.FlakeScore)
			}
			add("")
		}
		if len(recs.InfraHotspots) > 0 {
			add("### Infrastructure Hotspots\n")
			for _, h := range recs.InfraHotspots {
				add("- %s: %s (%d failures)", h.Dimension, h.Value, h.Weight)
			}
		}
	}

	if len(record.DecisionReasons) > 0 {
		add("\n## Decision Reasons\n")
		for _, r := range record.DecisionReasons {
			add("- [%s] %s", strings.ToUpper(string(r.Severity)), r.Message)
		}
	}

	if len(record.AnalysisErrors) > 0 {
		add("\n## Analysis Errors\n")
		for _, e := range record.AnalysisErrors {
			add("- %s", e)
		}
	}

	return strings.Join(lines, "\n") + "\n"
}

func shortFingerprint(fp string) string {
	if len(fp) > summaryFingerprintLen {
		return fp[:summaryFingerprintLen]
	}
	return fp
}

func joinHints(hints []core.Hint) string {
	parts := make([]string, len(hints))
	for i, h := range hints {
		parts[i] = string(h)
	}
	return strings.Join(parts, ", ")
}
