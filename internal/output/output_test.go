package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/rqg/pkg/core"
)

func sampleRecord() *core.DecisionRecord {
	return &core.DecisionRecord{
		RunContext: core.RunContext{
			RunID:   "run-1",
			Repo:    "acme/shop",
			Commit:  "abc123",
			Branch:  "main",
			Job:     "e2e",
			Attempt: 2,
			EnvKey:  "os=linux|browser=chrome",
		},
		CurrentRunSummary: core.RunSummary{TotalTests: 5, Passed: 2, Failed: 2, Skipped: 1},
		NewFailureClusters: []core.NewClusterEvidence{{
			TestID:      "checkout::pays",
			Fingerprint: "0123456789abcdef0123456789abcdef",
			FailureText: "AssertionError: expected 200",
		}},
		KnownFlakyFailures: []core.FlakyEvidence{{
			TestID:     "cart::adds",
			FlakeScore: 0.6,
			Confidence: 0.8,
		}},
		InfraFailures: []core.InfraEvidence{{
			TestID: "login::works",
			Hints:  []core.Hint{core.HintNetwork, core.HintRunner},
		}},
		Recommendations: core.Recommendations{
			TargetedRerun: &core.RerunPlan{
				Tests:      []string{"cart::adds", "login::works"},
				RunnerPool: "stable",
				Attempts:   1,
				Reason:     "Rerun known flaky and infrastructure failures",
			},
			QuarantineCandidates: []core.QuarantineCandidate{{TestID: "cart::adds", FlakeScore: 0.8, Confidence: 0.7}},
			InfraHotspots:        []core.InfraHotspot{{Dimension: "runner_pool", Value: "pool-a", Weight: 1}},
		},
		Decision: core.DecisionHardBlock,
		DecisionReasons: []core.DecisionReason{{
			Type:     core.ReasonNewFailureClusters,
			Severity: core.SeverityHigh,
			Message:  "1 new failure cluster(s) detected (max allowed: 0)",
		}},
		AnalysisErrors: []string{"fingerprint x: boom"},
		Timestamp:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestSummary(t *testing.T) {
	s := Summary(sampleRecord())

	for _, want := range []string{
		"# RQG Decision Summary\n",
		"**Decision:** HARD_BLOCK\n",
		"**Timestamp:** 2024-01-02T03:04:05Z\n",
		"## Run Context\n",
		"- Repository: acme/shop",
		"- Attempt: 2",
		"- Environment: os=linux|browser=chrome",
		"- Total Tests: 5",
		"## New Failure Clusters (1)",
		"### checkout::pays",
		"- Fingerprint: `0123456789abcdef...`",
		"- Error: ```AssertionError: expected 200```",
		"## Known Flaky Failures (1)",
		"- cart::adds (flake score: 0.60, confidence: 0.80)",
		"- login::works: network, runner",
		"### Targeted Rerun Plan",
		"- Tests: 2",
		"- Runner Pool: stable",
		"- cart::adds (score: 0.80)",
		"- runner_pool: pool-a (1 failures)",
		"- [HIGH] 1 new failure cluster(s) detected (max allowed: 0)",
		"## Analysis Errors",
		"- fingerprint x: boom",
	} {
		assert.Contains(t, s, want)
	}
}

func TestSummary_OmitsEmptySections(t *testing.T) {
	rec := &core.DecisionRecord{Decision: core.DecisionPass}
	s := Summary(rec)

	assert.Contains(t, s, "**Decision:** PASS")
	for _, section := range []string{
		"New Failure Clusters", "Known Flaky", "Infrastructure Failures",
		"Recommendations", "Decision Reasons", "Analysis Errors",
	} {
		assert.NotContains(t, s, section)
	}
}

func TestSummary_LimitsNewClusters(t *testing.T) {
	rec := &core.DecisionRecord{Decision: core.DecisionHardBlock}
	for i := 0; i < 15; i++ {
		rec.NewFailureClusters = append(rec.NewFailureClusters, core.NewClusterEvidence{
			TestID:      "t" + string(rune('a'+i)),
			Fingerprint: "fp",
			FailureText: strings.Repeat("x", 300),
		})
	}
	s := Summary(rec)

	assert.Contains(t, s, "## New Failure Clusters (15)")
	assert.Equal(t, 10, strings.Count(s, "### t"))
	assert.Contains(t, s, "```"+strings.Repeat("x", 200)+"```")
	assert.NotContains(t, s, strings.Repeat("x", 201))
}

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	rec := sampleRecord()

	decisionPath := filepath.Join(dir, "out", "decision.json")
	summaryPath := filepath.Join(dir, "out", "summary.md")
	require.NoError(t, WriteDecision(decisionPath, rec))
	require.NoError(t, WriteSummary(summaryPath, rec))

	data, err := os.ReadFile(decisionPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("{\n  \"run_context\"")))

	var decoded core.DecisionRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, core.DecisionHardBlock, decoded.Decision)
	assert.Equal(t, rec.Recommendations.TargetedRerun, decoded.Recommendations.TargetedRerun)

	md, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	assert.Equal(t, Summary(rec), string(md))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		decision core.Decision
		want     int
	}{
		{core.DecisionPass, 0},
		{core.DecisionSoftBlock, 10},
		{core.DecisionHardBlock, 20},
		{core.Decision("BOGUS"), 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.decision), func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.decision))
		})
	}
}

func TestDecisionError(t *testing.T) {
	assert.NoError(t, DecisionError(core.DecisionPass))

	err := DecisionError(core.DecisionSoftBlock)
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 10, exitErr.ExitStatus())
	assert.Equal(t, "release gate decision: SOFT_BLOCK", err.Error())
}

func TestDecisionLabel(t *testing.T) {
	assert.Equal(t, "Pass", DecisionLabel(core.DecisionPass))
	assert.Equal(t, "Soft Block", DecisionLabel(core.DecisionSoftBlock))
	assert.Equal(t, "Hard Block", DecisionLabel(core.DecisionHardBlock))
}

func TestRenderer_EffectiveMode(t *testing.T) {
	tests := []struct {
		mode Mode
		want Mode
	}{
		{"", ModeMarkdown},
		{ModeAuto, ModeMarkdown},
		{ModeText, ModeText},
		{ModeJSON, ModeJSON},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, tt.mode)
			assert.Equal(t, tt.want, r.EffectiveMode())
		})
	}
}

func TestRenderer_Decision(t *testing.T) {
	rec := sampleRecord()

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewRenderer(&buf, &buf, ModeMarkdown).Decision(rec))
		assert.Equal(t, Summary(rec), buf.String())
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewRenderer(&buf, &buf, ModeJSON).Decision(rec))
		var decoded core.DecisionRecord
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "run-1", decoded.RunContext.RunID)
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewRenderer(&buf, &buf, ModeText).Decision(rec))
		out := buf.String()
		assert.Contains(t, out, "Hard Block")
		assert.Contains(t, out, "checkout::pays")
		assert.Contains(t, out, "0123456789abcdef")
		assert.Contains(t, out, "[HIGH]")
		assert.Contains(t, out, "degraded:")
	})
}

func TestRenderer_Clusters(t *testing.T) {
	clusters := []*core.FailureCluster{{
		Fingerprint:        "fedcba9876543210fedcba",
		LastSeenAt:         time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		OccurrenceCount:    3,
		ExampleFailureText: "TimeoutError: waited\n  at frame",
		TestIDs:            []string{"a", "b"},
	}}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewRenderer(&buf, &buf, ModeText).Clusters(clusters))
		out := buf.String()
		assert.Contains(t, out, "fedcba9876543210")
		assert.Contains(t, out, "TimeoutError: waited")
		assert.NotContains(t, out, "at frame")
	})

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewRenderer(&buf, &buf, ModeMarkdown).Clusters(clusters))
		assert.Contains(t, strings.ToLower(buf.String()), "| fingerprint |")
	})

	t.Run("empty json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewRenderer(&buf, &buf, ModeJSON).Clusters(nil))
		assert.Equal(t, "[]\n", buf.String())
	})

	t.Run("empty text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewRenderer(&buf, &buf, ModeText).Clusters(nil))
		assert.Equal(t, "(0 clusters)\n", buf.String())
	})
}
