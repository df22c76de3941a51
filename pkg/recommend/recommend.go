// Package recommend derives advisory actions from the evidence of an analysis.
package recommend

import (
	"github.com/leapstack-labs/rqg/pkg/core"
)

// RerunReason labels targeted rerun plans.
const RerunReason = "suspected_flakes_or_infra"

// Generate builds recommendations for a run. It never changes the decision.
func Generate(run *core.Run, knownFlaky []core.FlakyEvidence, infra []core.InfraEvidence, cfg *core.PolicyConfig) core.Recommendations {
	return core.Recommendations{
		TargetedRerun:        TargetedRerun(knownFlaky, infra, cfg.Recommendations.TargetedRerun),
		QuarantineCandidates: QuarantineCandidates(knownFlaky, cfg.FlakeDetection.QuarantineCandidate),
		InfraHotspots:        InfraHotspots(run, infra),
	}
}

// TargetedRerun lists flaky tests then infra-affected tests, deduplicated and
// capped at MaxTests. It returns nil when disabled or when there is nothing to rerun.
func TargetedRerun(knownFlaky []core.FlakyEvidence, infra []core.InfraEvidence, cfg core.TargetedRerunConfig) *core.RerunPlan {
	if !cfg.Enabled {
		return nil
	}

	seen := make(map[string]bool)
	var tests []string
	add := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		tests = append(tests, id)
	}
	for _, kf := range knownFlaky {
		add(kf.TestID)
	}
	for _, inf := range infra {
		add(inf.TestID)
	}

	if len(tests) == 0 {
		return nil
	}
	if cfg.MaxTests >= 0 && len(tests) > cfg.MaxTests {
		tests = tests[:cfg.MaxTests]
	}

	return &core.RerunPlan{
		Tests:      tests,
		RunnerPool: cfg.PreferRunnerPool,
		Attempts:   cfg.RerunAttempts,
		Reason:     RerunReason,
	}
}

// QuarantineCandidates returns the flaky tests whose score and confidence both
// meet their thresholds, in input order.
func QuarantineCandidates(knownFlaky []core.FlakyEvidence, cfg core.QuarantineCandidateConfig) []core.QuarantineCandidate {
	out := make([]core.QuarantineCandidate, 0)
	for _, kf := range knownFlaky {
		if kf.FlakeScore >= cfg.FlakeScoreThreshold && kf.Confidence >= cfg.ConfidenceThreshold {
			out = append(out, core.QuarantineCandidate{
				TestID:     kf.TestID,
				FlakeScore: kf.FlakeScore,
				Confidence: kf.Confidence,
				Evidence:   kf.Evidence,
			})
		}
	}
	return out
}

// InfraHotspots attributes the run's infra failures to its runner pool and OS.
func InfraHotspots(run *core.Run, infra []core.InfraEvidence) []core.InfraHotspot {
	out := make([]core.InfraHotspot, 0, 2)
	if len(infra) == 0 {
		return out
	}
	if pool := run.Metadata.RunnerPool; pool != "" {
		out = append(out, core.InfraHotspot{Dimension: "runner_pool", Value: pool, Weight: len(infra)})
	}
	if os := run.Metadata.OS; os != "" {
		out = append(out, core.InfraHotspot{Dimension: "os", Value: os, Weight: len(infra)})
	}
	return out
}
