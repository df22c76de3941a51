package config

import "github.com/leapstack-labs/rqg/pkg/core"

// Default policy values.
const (
	DefaultMode               = "pr"
	DefaultLookbackRuns       = 50
	DefaultLookbackDays       = 14
	DefaultTestIDStrategy     = "classname::name"
	DefaultFingerprintVersion = "v1"
	DefaultMaxKnownFlaky      = 5
	DefaultMaxInfraFailures   = 10
	DefaultKnownFlakyScore    = 0.5
	DefaultRequiredExemption  = 0.75
	DefaultQuarantineScore    = 0.75
	DefaultQuarantineConf     = 0.6
	DefaultRerunMaxTests      = 30
	DefaultRerunRunnerPool    = "stable"
	DefaultRerunAttempts      = 1
)

// Default returns the policy used when no rqg.yml is present.
func Default() *PolicyConfig {
	return &core.PolicyConfig{
		Version: 1,
		Mode:    DefaultMode,
		History: core.HistoryConfig{
			LookbackRuns: DefaultLookbackRuns,
			LookbackDays: DefaultLookbackDays,
		},
		Inputs: core.InputsConfig{
			JUnitGlobs: []string{"**/junit*.xml", "**/TEST-*.xml"},
			LogGlobs:   []string{"**/ci.log", "**/console.log"},
		},
		Identity: core.IdentityConfig{
			EnvKeyFields:       []string{"os", "browser", "device", "runner_pool"},
			TestIDStrategy:     DefaultTestIDStrategy,
			FingerprintVersion: DefaultFingerprintVersion,
		},
		Gating: core.GatingConfig{
			HardBlock: core.HardBlockConfig{
				MaxNewFailureClusters: 0,
				CriticalPaths:         []string{},
				RequiredSuites:        []string{},
			},
			SoftBlock: core.SoftBlockConfig{
				MaxKnownFlakyFailures: DefaultMaxKnownFlaky,
				MaxInfraFailures:      DefaultMaxInfraFailures,
			},
		},
		FlakeDetection: core.FlakeDetectionConfig{
			KnownFlakyThreshold:    DefaultKnownFlakyScore,
			RequiredSuiteExemption: DefaultRequiredExemption,
			QuarantineCandidate: core.QuarantineCandidateConfig{
				FlakeScoreThreshold: DefaultQuarantineScore,
				ConfidenceThreshold: DefaultQuarantineConf,
			},
		},
		Recommendations: core.RecommendationsConfig{
			TargetedRerun: core.TargetedRerunConfig{
				Enabled:          false,
				MaxTests:         DefaultRerunMaxTests,
				PreferRunnerPool: DefaultRerunRunnerPool,
				RerunAttempts:    DefaultRerunAttempts,
			},
		},
	}
}

// defaultValues flattens Default into koanf keys.
func defaultValues() map[string]interface{} {
	d := Default()
	hard := d.Gating.HardBlock
	soft := d.Gating.SoftBlock
	flake := d.FlakeDetection
	rerun := d.Recommendations.TargetedRerun

	return map[string]interface{}{
		"version": d.Version,
		"mode":    d.Mode,

		"history.lookback_runs": d.History.LookbackRuns,
		"history.lookback_days": d.History.LookbackDays,

		"inputs.junit_globs": d.Inputs.JUnitGlobs,
		"inputs.log_globs":   d.Inputs.LogGlobs,

		"identity.env_key_fields":      d.Identity.EnvKeyFields,
		"identity.test_id_strategy":    d.Identity.TestIDStrategy,
		"identity.fingerprint_version": d.Identity.FingerprintVersion,

		"gating.hard_block.max_new_failure_clusters": hard.MaxNewFailureClusters,
		"gating.hard_block.critical_paths":           hard.CriticalPaths,
		"gating.hard_block.required_suites":          hard.RequiredSuites,
		"gating.soft_block.max_known_flaky_failures": soft.MaxKnownFlakyFailures,
		"gating.soft_block.max_infra_failures":       soft.MaxInfraFailures,

		"flake_detection.known_flaky_threshold":    flake.KnownFlakyThreshold,
		"flake_detection.required_suite_exemption": flake.RequiredSuiteExemption,

		"flake_detection.quarantine_candidate.flake_score_threshold": flake.QuarantineCandidate.FlakeScoreThreshold,
		"flake_detection.quarantine_candidate.confidence_threshold":  flake.QuarantineCandidate.ConfidenceThreshold,

		"recommendations.targeted_rerun.enabled":            rerun.Enabled,
		"recommendations.targeted_rerun.max_tests":          rerun.MaxTests,
		"recommendations.targeted_rerun.prefer_runner_pool": rerun.PreferRunnerPool,
		"recommendations.targeted_rerun.rerun_attempts":     rerun.RerunAttempts,
	}
}
