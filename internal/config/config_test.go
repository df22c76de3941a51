package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/rqg/pkg/core"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)

	if diff := cmp.Diff(Default(), cfg, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writePolicy(t, `
version: 1
mode: release
history:
  lookback_days: 30
identity:
  env_key_fields: [os, shard_id]
gating:
  hard_block:
    max_new_failure_clusters: 2
    critical_paths: [checkout, login]
    required_suites: [smoke]
  soft_block:
    max_infra_failures: 3
recommendations:
  targeted_rerun:
    enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 30, cfg.History.LookbackDays)
	assert.Equal(t, DefaultLookbackRuns, cfg.History.LookbackRuns, "unset keys keep defaults")
	assert.Equal(t, []string{"os", "shard_id"}, cfg.Identity.EnvKeyFields)
	assert.Equal(t, 2, cfg.Gating.HardBlock.MaxNewFailureClusters)
	assert.Equal(t, []string{"checkout", "login"}, cfg.Gating.HardBlock.CriticalPaths)
	assert.Equal(t, []string{"smoke"}, cfg.Gating.HardBlock.RequiredSuites)
	assert.Equal(t, 3, cfg.Gating.SoftBlock.MaxInfraFailures)
	assert.Equal(t, DefaultMaxKnownFlaky, cfg.Gating.SoftBlock.MaxKnownFlakyFailures)
	assert.True(t, cfg.Recommendations.TargetedRerun.Enabled)
	assert.Equal(t, DefaultRerunMaxTests, cfg.Recommendations.TargetedRerun.MaxTests)
}

func TestLoad_ExplicitZeroWins(t *testing.T) {
	path := writePolicy(t, `
gating:
  soft_block:
    max_known_flaky_failures: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Gating.SoftBlock.MaxKnownFlakyFailures)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RQG_POLICY_GATING__SOFT_BLOCK__MAX_INFRA_FAILURES", "4")
	t.Setenv("RQG_POLICY_IDENTITY__ENV_KEY_FIELDS", "os,browser")
	t.Setenv("RQG_POLICY_FLAKE_DETECTION__KNOWN_FLAKY_THRESHOLD", "0.65")

	path := writePolicy(t, "gating:\n  soft_block:\n    max_infra_failures: 9\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Gating.SoftBlock.MaxInfraFailures, "env beats file")
	assert.Equal(t, []string{"os", "browser"}, cfg.Identity.EnvKeyFields)
	assert.InDelta(t, 0.65, cfg.FlakeDetection.KnownFlakyThreshold, 1e-9)
}

func TestLoad_FallsBackOnBadPolicy(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		errSubstr string
	}{
		{
			name:      "malformed yaml",
			content:   "gating: [unclosed",
			errSubstr: "error reading policy file",
		},
		{
			name:      "unknown mode",
			content:   "mode: weekly\n",
			errSubstr: "Mode must be one of",
		},
		{
			name:      "negative threshold",
			content:   "gating:\n  hard_block:\n    max_new_failure_clusters: -1\n",
			errSubstr: "MaxNewFailureClusters must be >= 0",
		},
		{
			name:      "score out of range",
			content:   "flake_detection:\n  known_flaky_threshold: 1.5\n",
			errSubstr: "KnownFlakyThreshold must be <= 1",
		},
		{
			name:      "unknown env key field",
			content:   "identity:\n  env_key_fields: [os, planet]\n",
			errSubstr: "EnvKeyFields[1] must be one of",
		},
		{
			name:      "bad test id strategy",
			content:   "identity:\n  test_id_strategy: random\n",
			errSubstr: "TestIDStrategy must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writePolicy(t, tt.content))
			require.Error(t, err)
			assert.True(t, core.IsKind(err, core.ErrConfig))
			assert.Contains(t, err.Error(), tt.errSubstr)

			require.NotNil(t, cfg, "defaults are returned alongside the error")
			assert.Equal(t, DefaultMode, cfg.Mode)
			assert.Equal(t, 0, cfg.Gating.HardBlock.MaxNewFailureClusters)
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, Validate(Default()))
	assert.Error(t, Validate(nil))
}

func TestFindPolicyFile(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, FindPolicyFile(dir))

	alt := filepath.Join(dir, ConfigFileNameAlt)
	require.NoError(t, os.WriteFile(alt, []byte("mode: main\n"), 0o600))
	assert.Equal(t, alt, FindPolicyFile(dir))

	primary := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(primary, []byte("mode: main\n"), 0o600))
	assert.Equal(t, primary, FindPolicyFile(dir))

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Mode)
}

func TestWriteFile_LoadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	want := Default()
	want.Gating.HardBlock.CriticalPaths = []string{"checkout"}
	require.NoError(t, WriteFile(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("written policy mismatch (-want +got):\n%s", diff)
	}
}
