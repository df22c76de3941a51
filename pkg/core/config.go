package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// PolicyConfig is the gating policy loaded from rqg.yml.
// It is constructed once per analysis and passed explicitly to each component.
type PolicyConfig struct {
	Version         int                   `koanf:"version" json:"version" yaml:"version" validate:"gte=1"`
	Mode            string                `koanf:"mode" json:"mode" yaml:"mode" validate:"oneof=pr main release nightly"`
	History         HistoryConfig         `koanf:"history" json:"history" yaml:"history"`
	Inputs          InputsConfig          `koanf:"inputs" json:"inputs" yaml:"inputs"`
	Identity        IdentityConfig        `koanf:"identity" json:"identity" yaml:"identity"`
	Gating          GatingConfig          `koanf:"gating" json:"gating" yaml:"gating"`
	FlakeDetection  FlakeDetectionConfig  `koanf:"flake_detection" json:"flake_detection" yaml:"flake_detection"`
	Recommendations RecommendationsConfig `koanf:"recommendations" json:"recommendations" yaml:"recommendations"`
}

// HistoryConfig bounds the history window.
type HistoryConfig struct {
	LookbackRuns int `koanf:"lookback_runs" json:"lookback_runs" yaml:"lookback_runs" validate:"gte=1"`
	LookbackDays int `koanf:"lookback_days" json:"lookback_days" yaml:"lookback_days" validate:"gte=1"`
}

// InputsConfig lists the artifact globs the collector expands.
type InputsConfig struct {
	JUnitGlobs []string `koanf:"junit_globs" json:"junit_globs" yaml:"junit_globs"`
	LogGlobs   []string `koanf:"log_globs" json:"log_globs" yaml:"log_globs"`
}

// IdentityConfig controls how tests, environments and failures are identified.
type IdentityConfig struct {
	EnvKeyFields       []string `koanf:"env_key_fields" json:"env_key_fields" yaml:"env_key_fields" validate:"dive,oneof=os browser device runner_pool shard_id ci_provider workflow job"`
	TestIDStrategy     string   `koanf:"test_id_strategy" json:"test_id_strategy" yaml:"test_id_strategy" validate:"oneof=classname::name package.class::name name"`
	FingerprintVersion string   `koanf:"fingerprint_version" json:"fingerprint_version" yaml:"fingerprint_version" validate:"required"`
}

// GatingConfig holds the hard and soft block thresholds.
type GatingConfig struct {
	HardBlock HardBlockConfig `koanf:"hard_block" json:"hard_block" yaml:"hard_block"`
	SoftBlock SoftBlockConfig `koanf:"soft_block" json:"soft_block" yaml:"soft_block"`
}

// HardBlockConfig lists conditions that block a release outright.
type HardBlockConfig struct {
	MaxNewFailureClusters int      `koanf:"max_new_failure_clusters" json:"max_new_failure_clusters" yaml:"max_new_failure_clusters" validate:"gte=0"`
	CriticalPaths         []string `koanf:"critical_paths" json:"critical_paths" yaml:"critical_paths"`
	RequiredSuites        []string `koanf:"required_suites" json:"required_suites" yaml:"required_suites"`
}

// SoftBlockConfig lists budgets that warn but do not block outright.
type SoftBlockConfig struct {
	MaxKnownFlakyFailures int `koanf:"max_known_flaky_failures" json:"max_known_flaky_failures" yaml:"max_known_flaky_failures" validate:"gte=0"`
	MaxInfraFailures      int `koanf:"max_infra_failures" json:"max_infra_failures" yaml:"max_infra_failures" validate:"gte=0"`
}

// FlakeDetectionConfig holds flake score thresholds.
type FlakeDetectionConfig struct {
	KnownFlakyThreshold    float64                   `koanf:"known_flaky_threshold" json:"known_flaky_threshold" yaml:"known_flaky_threshold" validate:"gte=0,lte=1"`
	RequiredSuiteExemption float64                   `koanf:"required_suite_exemption" json:"required_suite_exemption" yaml:"required_suite_exemption" validate:"gte=0,lte=1"`
	QuarantineCandidate    QuarantineCandidateConfig `koanf:"quarantine_candidate" json:"quarantine_candidate" yaml:"quarantine_candidate"`
}

// QuarantineCandidateConfig sets the bar for quarantine recommendations.
type QuarantineCandidateConfig struct {
	FlakeScoreThreshold float64 `koanf:"flake_score_threshold" json:"flake_score_threshold" yaml:"flake_score_threshold" validate:"gte=0,lte=1"`
	ConfidenceThreshold float64 `koanf:"confidence_threshold" json:"confidence_threshold" yaml:"confidence_threshold" validate:"gte=0,lte=1"`
}

// RecommendationsConfig configures advisory output.
type RecommendationsConfig struct {
	TargetedRerun TargetedRerunConfig `koanf:"targeted_rerun" json:"targeted_rerun" yaml:"targeted_rerun"`
}

// TargetedRerunConfig configures the targeted rerun suggestion.
type TargetedRerunConfig struct {
	Enabled          bool   `koanf:"enabled" json:"enabled" yaml:"enabled"`
	MaxTests         int    `koanf:"max_tests" json:"max_tests" yaml:"max_tests" validate:"gte=0"`
	PreferRunnerPool string `koanf:"prefer_runner_pool" json:"prefer_runner_pool" yaml:"prefer_runner_pool"`
	RerunAttempts    int    `koanf:"rerun_attempts" json:"rerun_attempts" yaml:"rerun_attempts" validate:"gte=1"`
}

// Hash returns the SHA-256 hex digest of the canonical JSON encoding of the policy.
func (c *PolicyConfig) Hash() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
