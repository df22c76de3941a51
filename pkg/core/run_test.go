package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMetadata_EnvKey(t *testing.T) {
	tests := []struct {
		name   string
		meta   RunMetadata
		fields []string
		want   string
	}{
		{
			name:   "all fields set",
			meta:   RunMetadata{OS: "linux", Browser: "chrome", Device: "desktop", RunnerPool: "gpu"},
			fields: []string{"os", "browser", "device", "runner_pool"},
			want:   "os=linux|browser=chrome|device=desktop|runner_pool=gpu",
		},
		{
			name:   "unset fields skipped",
			meta:   RunMetadata{OS: "linux", RunnerPool: "stable"},
			fields: []string{"os", "browser", "device", "runner_pool"},
			want:   "os=linux|runner_pool=stable",
		},
		{
			name:   "config order wins",
			meta:   RunMetadata{OS: "macos", Browser: "safari"},
			fields: []string{"browser", "os"},
			want:   "browser=safari|os=macos",
		},
		{
			name:   "nothing set",
			meta:   RunMetadata{},
			fields: []string{"os", "browser"},
			want:   DefaultEnvKey,
		},
		{
			name:   "unknown field ignored",
			meta:   RunMetadata{OS: "linux"},
			fields: []string{"kernel", "os"},
			want:   "os=linux",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.meta.EnvKey(tt.fields))
		})
	}
}

func TestRunMetadata_SeenAt(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ended := started.Add(time.Hour)

	assert.Equal(t, started, (&RunMetadata{StartedAt: &started, EndedAt: &ended}).SeenAt())
	assert.Equal(t, ended, (&RunMetadata{EndedAt: &ended}).SeenAt())
	assert.True(t, (&RunMetadata{}).SeenAt().IsZero())
}

func TestRunMetadata_UnmarshalTimestamps(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339", `{"repo":"r","started_at":"2024-01-02T03:04:05Z"}`, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"offset", `{"repo":"r","started_at":"2024-01-02T03:04:05+02:00"}`, time.Date(2024, 1, 2, 1, 4, 5, 0, time.UTC)},
		{"zoneless micros", `{"repo":"r","started_at":"2024-01-02T03:04:05.250000"}`, time.Date(2024, 1, 2, 3, 4, 5, 250000000, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var meta RunMetadata
			require.NoError(t, json.Unmarshal([]byte(tt.input), &meta))
			require.NotNil(t, meta.StartedAt)
			assert.True(t, tt.want.Equal(*meta.StartedAt), "got %s", meta.StartedAt)
			assert.Equal(t, "r", meta.Repo)
			assert.Nil(t, meta.EndedAt)
		})
	}

	var meta RunMetadata
	err := json.Unmarshal([]byte(`{"started_at":"yesterday"}`), &meta)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "started_at")
}

func TestOutcome_Unmarshal(t *testing.T) {
	var tr TestResult
	require.NoError(t, json.Unmarshal([]byte(`{"test_id":"a","outcome":"FAIL"}`), &tr))
	assert.Equal(t, OutcomeFail, tr.Outcome)

	err := json.Unmarshal([]byte(`{"test_id":"a","outcome":"broken"}`), &tr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown outcome")
}

func TestRun_SummaryAndFailures(t *testing.T) {
	run := &Run{
		RunID: "r1",
		TestResults: []*TestResult{
			{TestID: "a", Outcome: OutcomePass, DurationMS: 10},
			{TestID: "b", Outcome: OutcomeFail, DurationMS: 20.5},
			{TestID: "c", Outcome: OutcomeSkip},
			{TestID: "d", Outcome: OutcomeFail, DurationMS: 1},
		},
	}

	assert.Equal(t, RunSummary{TotalTests: 4, Passed: 1, Failed: 2, Skipped: 1, DurationMS: 31.5}, run.Summary())

	failures := run.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, "b", failures[0].TestID)
	assert.Equal(t, "d", failures[1].TestID)
	assert.Equal(t, "failed", run.Status())

	assert.Equal(t, "passed", (&Run{TestResults: []*TestResult{{Outcome: OutcomePass}}}).Status())
}

func TestTestResult_LogText(t *testing.T) {
	assert.Equal(t, "", (&TestResult{}).LogText())
	assert.Equal(t, "out", (&TestResult{SystemOut: "out"}).LogText())
	assert.Equal(t, "err", (&TestResult{SystemErr: "err"}).LogText())
	assert.Equal(t, "err\nout", (&TestResult{SystemErr: "err", SystemOut: "out"}).LogText())
}

func TestFailureCluster_AddTestID(t *testing.T) {
	c := &FailureCluster{}
	c.AddTestID("a")
	c.AddTestID("b")
	c.AddTestID("a")

	assert.Equal(t, []string{"a", "b"}, c.TestIDs)
	assert.True(t, c.HasTestID("b"))
	assert.False(t, c.HasTestID("z"))
}
