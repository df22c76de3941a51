// Package policy turns classified evidence into a gating decision.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// maxReasonClusters bounds the cluster examples attached to a new-cluster reason.
const maxReasonClusters = 5

// Engine applies a policy configuration.
type Engine struct {
	cfg  *core.PolicyConfig
	hash string
	now  func() time.Time
}

// NewEngine creates an engine bound to cfg.
func NewEngine(cfg *core.PolicyConfig) *Engine {
	return &Engine{cfg: cfg, hash: cfg.Hash(), now: time.Now}
}

// Decide evaluates the gating rules. Every hard-block rule is evaluated and
// contributes its reasons: new clusters first, then critical paths and
// required suites per failing test. Soft-block rules are only evaluated when
// no hard block applies.
// The returned record has no recommendations.
func (e *Engine) Decide(run *core.Run, newClusters []core.NewClusterEvidence, knownFlaky []core.FlakyEvidence, infra []core.InfraEvidence) *core.DecisionRecord {
	cfg := e.cfg
	reasons := make([]core.DecisionReason, 0)
	decision := core.DecisionPass

	// New failure clusters
	if len(newClusters) > cfg.Gating.HardBlock.MaxNewFailureClusters {
		decision = core.DecisionHardBlock
		examples := newClusters
		if len(examples) > maxReasonClusters {
			examples = examples[:maxReasonClusters]
		}
		reasons = append(reasons, core.DecisionReason{
			Type:     core.ReasonNewFailureClusters,
			Severity: core.SeverityHigh,
			Message: fmt.Sprintf("Found %d new failure clusters (max allowed: %d)",
				len(newClusters), cfg.Gating.HardBlock.MaxNewFailureClusters),
			Data: core.ReasonData{
				Count:    len(newClusters),
				Max:      cfg.Gating.HardBlock.MaxNewFailureClusters,
				Clusters: append([]core.NewClusterEvidence(nil), examples...),
			},
		})
	}

	newFingerprints := make(map[string]bool, len(newClusters))
	for _, nc := range newClusters {
		newFingerprints[nc.Fingerprint] = true
	}
	required := make(map[string]bool, len(cfg.Gating.HardBlock.RequiredSuites))
	for _, s := range cfg.Gating.HardBlock.RequiredSuites {
		required[s] = true
	}

	// Critical paths and required suites apply to every failing test.
	for _, tr := range run.Failures() {
		// Only failures on new fingerprints count for critical paths.
		if tr.Fingerprint != "" && newFingerprints[tr.Fingerprint] {
			for _, path := range cfg.Gating.HardBlock.CriticalPaths {
				if !MatchesCriticalPath(tr, path) {
					continue
				}
				decision = core.DecisionHardBlock
				reasons = append(reasons, core.DecisionReason{
					Type:     core.ReasonCriticalPathFailure,
					Severity: core.SeverityHigh,
					Message:  fmt.Sprintf("New failure in critical path: %s", path),
					Data:     core.ReasonData{TestID: tr.TestID, Suite: tr.Suite, CriticalPath: path},
				})
			}
		}

		// Required suites: exempt only when the test is known flaky with a high score.
		if required[tr.Suite] && !e.exemptAsFlaky(tr.TestID, knownFlaky) {
			decision = core.DecisionHardBlock
			reasons = append(reasons, core.DecisionReason{
				Type:     core.ReasonRequiredSuiteFailed,
				Severity: core.SeverityHigh,
				Message:  fmt.Sprintf("Required suite '%s' has failure", tr.Suite),
				Data:     core.ReasonData{TestID: tr.TestID, Suite: tr.Suite},
			})
		}
	}

	if decision != core.DecisionHardBlock {
		if limit := cfg.Gating.SoftBlock.MaxKnownFlakyFailures; len(knownFlaky) > limit {
			decision = core.DecisionSoftBlock
			reasons = append(reasons, core.DecisionReason{
				Type:     core.ReasonTooManyFlaky,
				Severity: core.SeverityMedium,
				Message:  fmt.Sprintf("Too many known flaky failures: %d (max: %d)", len(knownFlaky), limit),
				Data:     core.ReasonData{Count: len(knownFlaky), Max: limit},
			})
		}
		if limit := cfg.Gating.SoftBlock.MaxInfraFailures; len(infra) > limit {
			decision = core.DecisionSoftBlock
			reasons = append(reasons, core.DecisionReason{
				Type:     core.ReasonTooManyInfra,
				Severity: core.SeverityMedium,
				Message:  fmt.Sprintf("Too many infrastructure failures: %d (max: %d)", len(infra), limit),
				Data:     core.ReasonData{Count: len(infra), Max: limit},
			})
		}
	}

	return &core.DecisionRecord{
		RunContext:         e.runContext(run),
		InputsPresent:      inputsPresent(run),
		Policy:             core.PolicySnapshot{Mode: cfg.Mode, Version: cfg.Version, Hash: e.hash},
		CurrentRunSummary:  run.Summary(),
		NewFailureClusters: nonNil(newClusters),
		KnownFlakyFailures: nonNil(knownFlaky),
		InfraFailures:      nonNil(infra),
		Recommendations:    core.Recommendations{QuarantineCandidates: []core.QuarantineCandidate{}, InfraHotspots: []core.InfraHotspot{}},
		Decision:           decision,
		DecisionReasons:    reasons,
		Timestamp:          e.now().UTC(),
	}
}

func (e *Engine) exemptAsFlaky(testID string, knownFlaky []core.FlakyEvidence) bool {
	for _, kf := range knownFlaky {
		if kf.TestID == testID && kf.FlakeScore >= e.cfg.FlakeDetection.RequiredSuiteExemption {
			return true
		}
	}
	return false
}

// MatchesCriticalPath reports whether path appears, case-insensitively, in the
// result's suite or test id.
func MatchesCriticalPath(tr *core.TestResult, path string) bool {
	p := strings.ToLower(path)
	return strings.Contains(strings.ToLower(tr.Suite), p) || strings.Contains(strings.ToLower(tr.TestID), p)
}

func (e *Engine) runContext(run *core.Run) core.RunContext {
	m := run.Metadata
	return core.RunContext{
		RunID:   run.RunID,
		Repo:    m.Repo,
		Commit:  m.CommitSHA,
		Branch:  m.Branch,
		Job:     m.Job,
		Attempt: m.Attempt,
		EnvKey:  m.EnvKey(e.cfg.Identity.EnvKeyFields),
	}
}

func inputsPresent(run *core.Run) core.InputsPresent {
	in := core.InputsPresent{
		JUnitCount:  len(run.TestResults),
		LogsPresent: len(run.LogEvents) > 0,
	}
	m := run.Metadata
	for _, f := range []struct{ name, value string }{
		{"repo", m.Repo},
		{"branch", m.Branch},
		{"commit_sha", m.CommitSHA},
	} {
		if f.value == "" || f.value == "unknown" {
			in.MissingFields = append(in.MissingFields, f.name)
		}
	}
	if m.SeenAt().IsZero() {
		in.MissingFields = append(in.MissingFields, "started_at")
	}
	return in
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
