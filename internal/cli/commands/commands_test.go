package commands

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/rqg/internal/cli/testutil"
	"github.com/leapstack-labs/rqg/internal/output"
	"github.com/leapstack-labs/rqg/pkg/core"
)

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		name  string
		cmd   func() *cobra.Command
		use   string
		flags []string
	}{
		{"collect", NewCollectCommand, "collect", []string{"root", "bundle", "run-id", "repo", "branch", "commit", "workflow", "job", "build-number", "attempt", "os", "browser", "device", "runner-pool", "shard"}},
		{"analyze", NewAnalyzeCommand, "analyze", []string{"bundle", "output-dir", "force"}},
		{"explain", NewExplainCommand, "explain <test-id>", []string{"repo", "branch"}},
		{"clusters", NewClustersCommand, "clusters", []string{"lookback-days", "limit"}},
		{"upload", NewUploadCommand, "upload", []string{"bundle", "api-url", "token"}},
		{"serve", NewServeCommand, "serve", []string{"addr", "inbox"}},
		{"init", NewInitCommand, "init [directory]", []string{"force"}},
		{"doctor", NewDoctorCommand, "doctor", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := tt.cmd()
			assert.Equal(t, tt.use, cmd.Use)
			assert.NotEmpty(t, cmd.Short, "Short should not be empty")
			assert.NotEmpty(t, cmd.Long, "Long should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestGateFlow(t *testing.T) {
	dir := testutil.SetupTestProject(t, testutil.FailingReport)
	cfg := testutil.TestConfig(t, dir)
	bundle := filepath.Join(dir, "rqg", "bundle.json")
	outDir := filepath.Join(dir, "rqg")

	out, err := testutil.Execute(t, NewCollectCommand(), cfg,
		"--root", dir, "--bundle", bundle, "--run-id", "run-1", "--repo", "acme/shop", "--branch", "main", "--commit", "abc123")
	require.NoError(t, err)
	assert.Contains(t, out, "Bundle created")
	assert.Contains(t, out, "2 tests (1 failed)")
	require.FileExists(t, bundle)

	out, err = testutil.Execute(t, NewAnalyzeCommand(), cfg, "--bundle", bundle, "--output-dir", outDir)
	var exitErr *output.ExitError
	require.True(t, errors.As(err, &exitErr), "expected exit error, got %v", err)
	assert.Equal(t, core.DecisionHardBlock, exitErr.Decision)
	assert.Equal(t, output.ExitHardBlock, exitErr.ExitStatus())
	assert.Contains(t, out, "com.acme.CheckoutTest::pays")

	data, err := os.ReadFile(filepath.Join(outDir, DecisionFile))
	require.NoError(t, err)
	var record core.DecisionRecord
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, core.DecisionHardBlock, record.Decision)
	require.Len(t, record.NewFailureClusters, 1)

	summary, err := os.ReadFile(filepath.Join(outDir, SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "# RQG Decision Summary")
	testutil.AssertValidMarkdown(t, string(summary))

	t.Run("second analyze is refused", func(t *testing.T) {
		_, err := testutil.Execute(t, NewAnalyzeCommand(), cfg, "--bundle", bundle, "--output-dir", outDir)
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrAlreadyAnalyzed)
	})

	t.Run("clusters", func(t *testing.T) {
		out, err := testutil.Execute(t, NewClustersCommand(), cfg)
		require.NoError(t, err)
		assert.Contains(t, out, "com.acme.CheckoutTest::pays")

		_, err = testutil.Execute(t, NewClustersCommand(), cfg, "--lookback-days", "-1")
		require.Error(t, err)
	})

	t.Run("explain", func(t *testing.T) {
		out, err := testutil.Execute(t, NewExplainCommand(), cfg, "com.acme.CheckoutTest::pays", "--repo", "acme/shop")
		require.NoError(t, err)
		assert.Contains(t, out, "Explanation for test: com.acme.CheckoutTest::pays")
		assert.NotContains(t, out, "not found in recent history")

		out, err = testutil.Execute(t, NewExplainCommand(), cfg, "com.acme.Missing::test", "--repo", "acme/shop")
		require.NoError(t, err)
		assert.Contains(t, out, "not found in recent history")
	})

	t.Run("doctor", func(t *testing.T) {
		jsonCfg := *cfg
		jsonCfg.OutputFormat = "json"
		out, err := testutil.Execute(t, NewDoctorCommand(), &jsonCfg)
		require.NoError(t, err)

		var report DoctorOutput
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.True(t, report.Healthy)
		require.Len(t, report.Checks, 3)
		assert.Equal(t, StatusWarn, report.Checks[1].Status, "policy file is missing")
		assert.Equal(t, StatusPass, report.Checks[2].Status)
		assert.Contains(t, report.Checks[2].Message, "1 cluster(s)")
	})
}

func TestAnalyze_Pass(t *testing.T) {
	dir := testutil.SetupTestProject(t, testutil.PassingReport)
	cfg := testutil.TestConfig(t, dir)
	bundle := filepath.Join(dir, "bundle.json")

	_, err := testutil.Execute(t, NewCollectCommand(), cfg, "--root", dir, "--bundle", bundle, "--run-id", "green")
	require.NoError(t, err)

	out, err := testutil.Execute(t, NewAnalyzeCommand(), cfg, "--bundle", bundle, "--output-dir", filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Contains(t, out, "Pass")
	assert.FileExists(t, filepath.Join(dir, "out", DecisionFile))
	testutil.AssertNoANSI(t, out)
}

func TestAnalyze_MissingBundle(t *testing.T) {
	dir := t.TempDir()
	cfg := testutil.TestConfig(t, dir)

	_, err := testutil.Execute(t, NewAnalyzeCommand(), cfg, "--bundle", filepath.Join(dir, "nope.json"))
	require.Error(t, err)
	var exitErr *output.ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestUpload_RequiresAPIURL(t *testing.T) {
	dir := t.TempDir()
	cfg := testutil.TestConfig(t, dir)

	_, err := testutil.Execute(t, NewUploadCommand(), cfg, "--bundle", filepath.Join(dir, "bundle.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API URL not provided")
}
