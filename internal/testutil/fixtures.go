package testutil

import (
	"fmt"
	"time"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// BaseTime anchors fixture timestamps.
var BaseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// RunBuilder assembles runs for tests.
type RunBuilder struct {
	run *core.Run
}

// NewRun starts a run for repo acme/shop on main, linux, started at BaseTime.
func NewRun(id string) *RunBuilder {
	started := BaseTime
	return &RunBuilder{run: &core.Run{
		RunID: id,
		Metadata: core.RunMetadata{
			Repo:       "acme/shop",
			Branch:     "main",
			CommitSHA:  "sha-" + id,
			CIProvider: "github",
			OS:         "linux",
			StartedAt:  &started,
		},
	}}
}

// At sets the start time.
func (b *RunBuilder) At(t time.Time) *RunBuilder {
	t = t.UTC()
	b.run.Metadata.StartedAt = &t
	return b
}

// DaysAgo sets the start time relative to now.
func (b *RunBuilder) DaysAgo(days int) *RunBuilder {
	return b.At(time.Now().Add(-time.Duration(days) * 24 * time.Hour))
}

// Commit sets the commit SHA.
func (b *RunBuilder) Commit(sha string) *RunBuilder {
	b.run.Metadata.CommitSHA = sha
	return b
}

// Branch sets the branch.
func (b *RunBuilder) Branch(branch string) *RunBuilder {
	b.run.Metadata.Branch = branch
	return b
}

// Repo sets the repository.
func (b *RunBuilder) Repo(repo string) *RunBuilder {
	b.run.Metadata.Repo = repo
	return b
}

// Env sets the os and runner pool.
func (b *RunBuilder) Env(os, pool string) *RunBuilder {
	b.run.Metadata.OS = os
	b.run.Metadata.RunnerPool = pool
	return b
}

// Pass appends a passing result.
func (b *RunBuilder) Pass(testID, suite string) *RunBuilder {
	b.run.TestResults = append(b.run.TestResults, &core.TestResult{
		TestID: testID, Suite: suite, Name: testID, Outcome: core.OutcomePass, DurationMS: 10,
	})
	return b
}

// Fail appends a failing result with the given failure text.
func (b *RunBuilder) Fail(testID, suite, text string) *RunBuilder {
	b.run.TestResults = append(b.run.TestResults, &core.TestResult{
		TestID: testID, Suite: suite, Name: testID, Outcome: core.OutcomeFail, DurationMS: 10, FailureText: text,
	})
	return b
}

// Skip appends a skipped result.
func (b *RunBuilder) Skip(testID, suite string) *RunBuilder {
	b.run.TestResults = append(b.run.TestResults, &core.TestResult{
		TestID: testID, Suite: suite, Name: testID, Outcome: core.OutcomeSkip,
	})
	return b
}

// Result appends an arbitrary result.
func (b *RunBuilder) Result(tr *core.TestResult) *RunBuilder {
	b.run.TestResults = append(b.run.TestResults, tr)
	return b
}

// Build returns the run.
func (b *RunBuilder) Build() *core.Run {
	return b.run
}

// FailureText returns a Java-style failure with a stable fingerprint per kind.
func FailureText(kind string) string {
	return fmt.Sprintf("java.lang.AssertionError: %s failed\n\tat com.acme.%sTest.run(%sTest.java:12)", kind, kind, kind)
}
