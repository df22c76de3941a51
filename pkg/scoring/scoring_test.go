package scoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/rqg/pkg/core"
)

var fields = []string{"os", "browser"}

type step struct {
	outcome core.Outcome
	commit  string
	retries int
}

func history(testID, os string, steps ...step) []*core.Run {
	runs := make([]*core.Run, 0, len(steps))
	for i, s := range steps {
		commit := s.commit
		if commit == "" {
			commit = fmt.Sprintf("sha%d", i)
		}
		runs = append(runs, &core.Run{
			RunID:    fmt.Sprintf("run-%d", i),
			Metadata: core.RunMetadata{Repo: "acme/app", CommitSHA: commit, OS: os},
			TestResults: []*core.TestResult{
				{TestID: testID, Outcome: s.outcome, RetryCount: s.retries},
				{TestID: "other", Outcome: core.OutcomePass},
			},
		})
	}
	return runs
}

func outcomes(seq ...core.Outcome) []step {
	steps := make([]step, len(seq))
	for i, o := range seq {
		steps[i] = step{outcome: o}
	}
	return steps
}

const (
	P = core.OutcomePass
	F = core.OutcomeFail
	S = core.OutcomeSkip
)

func TestScore_NoExecutions(t *testing.T) {
	got := Score("t", "os=linux", nil, fields)
	require.NotNil(t, got)
	assert.Equal(t, "t", got.TestID)
	assert.Equal(t, "os=linux", got.EnvKey)
	assert.Zero(t, got.FlakeScore)
	assert.Zero(t, got.Confidence)
	assert.Nil(t, got.RetryPassRate)
}

func TestScore_Formula(t *testing.T) {
	runs := history("t", "linux", outcomes(P, F, P, F)...)
	got := Score("t", "os=linux", runs, fields)

	assert.Equal(t, 3, got.Intermittency)
	assert.InDelta(t, 0.5, got.FailRate, 1e-9)
	assert.False(t, got.SameCommitInconsistency)
	assert.Nil(t, got.RetryPassRate)
	assert.InDelta(t, 0.38, got.FlakeScore, 1e-9)
	assert.InDelta(t, 0.2, got.Confidence, 1e-9)
	assert.Equal(t, core.FlakeEvidence{TotalRuns: 4, FailCount: 2}, got.Evidence)
}

func TestScore_ConfidenceThreshold(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  float64
	}{
		{"one run", 1, 0},
		{"two runs", 2, 0},
		{"three runs", 3, 0.15},
		{"ten runs", 10, 0.5},
		{"saturates", 25, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := make([]core.Outcome, tt.count)
			for i := range seq {
				seq[i] = F
			}
			got := Score("t", "os=linux", history("t", "linux", outcomes(seq...)...), fields)
			assert.InDelta(t, tt.want, got.Confidence, 1e-9)
		})
	}
}

func TestScore_TooFewExecutionsScoreZero(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
	}{
		{"single retried pass", []step{{outcome: P, commit: "same", retries: 1}}},
		{"same commit fail then pass with retries", []step{
			{outcome: F, commit: "same", retries: 1},
			{outcome: P, commit: "same", retries: 1},
		}},
		{"transition across commits", []step{{outcome: P}, {outcome: F}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score("t", "os=linux", history("t", "linux", tt.steps...), fields)
			assert.Equal(t, len(tt.steps), got.Evidence.TotalRuns)
			assert.Zero(t, got.FlakeScore)
			assert.Zero(t, got.Confidence)
		})
	}

	got := Score("t", "os=linux", history("t", "linux",
		step{outcome: F, commit: "same", retries: 1},
		step{outcome: P, commit: "same", retries: 1}), fields)
	assert.True(t, got.SameCommitInconsistency, "signals are still reported")
	assert.Equal(t, 1, got.Intermittency)
}

func TestScore_Bounds(t *testing.T) {
	steps := []step{
		{outcome: P, commit: "same", retries: 1},
		{outcome: F, commit: "same", retries: 1},
		{outcome: P, retries: 1},
		{outcome: F},
		{outcome: P, retries: 2},
		{outcome: F},
	}
	got := Score("t", "os=linux", history("t", "linux", steps...), fields)

	assert.True(t, got.SameCommitInconsistency)
	require.NotNil(t, got.RetryPassRate)
	assert.InDelta(t, 0.75, *got.RetryPassRate, 1e-9)
	assert.Equal(t, 1.0, got.FlakeScore, "score is capped at 1")

	for _, seq := range [][]core.Outcome{{P}, {F}, {P, P, P}, {F, F, F, F}, {P, F, S, F, P}} {
		s := Score("t", "os=linux", history("t", "linux", outcomes(seq...)...), fields)
		assert.GreaterOrEqual(t, s.FlakeScore, 0.0)
		assert.LessOrEqual(t, s.FlakeScore, 1.0)
		assert.GreaterOrEqual(t, s.Confidence, 0.0)
		assert.LessOrEqual(t, s.Confidence, 1.0)
	}
}

func TestScore_IntermittencyMonotonic(t *testing.T) {
	// Same fail rate, increasing number of transitions.
	sequences := [][]core.Outcome{
		{P, P, P, F, F, F},
		{P, P, F, F, F, P},
		{P, F, F, P, F, P},
		{P, F, P, F, P, F},
	}

	prev := -1.0
	prevTransitions := -1
	for _, seq := range sequences {
		got := Score("t", "os=linux", history("t", "linux", outcomes(seq...)...), fields)
		assert.Greater(t, got.Intermittency, prevTransitions)
		assert.GreaterOrEqual(t, got.FlakeScore, prev, "sequence %v", seq)
		prev = got.FlakeScore
		prevTransitions = got.Intermittency
	}
}

func TestScore_SkipsAreTransparentForTransitions(t *testing.T) {
	got := Score("t", "os=linux", history("t", "linux", outcomes(P, S, F, S, F)...), fields)
	assert.Equal(t, 1, got.Intermittency)
	assert.Equal(t, 5, got.Evidence.TotalRuns)
	assert.Equal(t, 2, got.Evidence.FailCount)
}

func TestScore_FiltersByEnvironment(t *testing.T) {
	linux := history("t", "linux", outcomes(P, F, P)...)
	mac := history("t", "macos", outcomes(F, F, F, F)...)
	runs := append(linux, mac...)

	got := Score("t", "os=linux", runs, fields)
	assert.Equal(t, 3, got.Evidence.TotalRuns)
	assert.Equal(t, 1, got.Evidence.FailCount)

	gotMac := Score("t", "os=macos", runs, fields)
	assert.Equal(t, 4, gotMac.Evidence.TotalRuns)
	assert.Zero(t, gotMac.Intermittency)
	assert.Zero(t, gotMac.FlakeScore, "consistent failure is not flaky")
}

func TestScore_RetryPassRateThreshold(t *testing.T) {
	// Retried executions: one pass, one fail. Rate 0.5 contributes nothing.
	steps := []step{{outcome: P, retries: 1}, {outcome: F, retries: 1}, {outcome: F}}
	got := Score("t", "os=linux", history("t", "linux", steps...), fields)

	require.NotNil(t, got.RetryPassRate)
	assert.InDelta(t, 0.5, *got.RetryPassRate, 1e-9)
	// intermittency 1 -> 0.1; fail rate 2/3 -> (0.6667-0.3)*0.4 = 0.1467
	assert.InDelta(t, 0.1+(2.0/3.0-0.3)*0.4, got.FlakeScore, 1e-9)
}
