// Package scoring computes per-test flakiness scores from run history.
package scoring

import (
	"math"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// MinRunsForConfidence is the number of executions below which a score carries no confidence.
const MinRunsForConfidence = 3

// confidenceRuns is the execution count at which confidence saturates.
const confidenceRuns = 20

type execution struct {
	outcome core.Outcome
	commit  string
	retried bool
}

// Score computes the flake score of testID across runs whose environment key,
// derived from envKeyFields, equals envKey. Runs must be in chronological order.
// The result is always non-nil; fewer than MinRunsForConfidence executions
// score zero with zero confidence.
func Score(testID, envKey string, runs []*core.Run, envKeyFields []string) *core.FlakeScore {
	execs := collect(testID, envKey, runs, envKeyFields)

	score := &core.FlakeScore{TestID: testID, EnvKey: envKey}
	if len(execs) == 0 {
		return score
	}

	total := len(execs)
	fails := 0
	for _, e := range execs {
		if e.outcome == core.OutcomeFail {
			fails++
		}
	}

	score.FailRate = float64(fails) / float64(total)
	score.Intermittency = intermittency(execs)
	score.RetryPassRate = retryPassRate(execs)
	score.SameCommitInconsistency = sameCommitInconsistency(execs)
	score.Evidence = core.FlakeEvidence{TotalRuns: total, FailCount: fails}

	// Below the minimum the signals are reported but neither score nor
	// confidence is set.
	if total >= MinRunsForConfidence {
		score.Confidence = math.Min(1.0, float64(total)/confidenceRuns)
		score.FlakeScore = combine(score)
	}
	return score
}

func combine(s *core.FlakeScore) float64 {
	v := 0.0
	if s.Intermittency > 0 {
		v += math.Min(0.4, float64(s.Intermittency)*0.1)
	}
	if s.RetryPassRate != nil && *s.RetryPassRate > 0.5 {
		v += math.Min(0.3, *s.RetryPassRate*0.4)
	}
	if s.SameCommitInconsistency {
		v += 0.3
	}
	if s.FailRate > 0.3 && s.FailRate < 0.9 {
		v += math.Min(0.2, (s.FailRate-0.3)*0.4)
	}
	return math.Min(1.0, v)
}

func collect(testID, envKey string, runs []*core.Run, envKeyFields []string) []execution {
	var out []execution
	for _, run := range runs {
		if run.Metadata.EnvKey(envKeyFields) != envKey {
			continue
		}
		for _, tr := range run.TestResults {
			if tr.TestID != testID {
				continue
			}
			out = append(out, execution{
				outcome: tr.Outcome,
				commit:  run.Metadata.CommitSHA,
				retried: tr.RetryCount > 0,
			})
		}
	}
	return out
}

// intermittency counts pass<->fail transitions between consecutive executions.
// Skipped executions are transparent.
func intermittency(execs []execution) int {
	count := 0
	var prev core.Outcome
	for _, e := range execs {
		if e.outcome == core.OutcomeSkip {
			continue
		}
		if prev != "" && prev != e.outcome {
			count++
		}
		prev = e.outcome
	}
	return count
}

func retryPassRate(execs []execution) *float64 {
	retried, passed := 0, 0
	for _, e := range execs {
		if !e.retried {
			continue
		}
		retried++
		if e.outcome == core.OutcomePass {
			passed++
		}
	}
	if retried == 0 {
		return nil
	}
	rate := float64(passed) / float64(retried)
	return &rate
}

func sameCommitInconsistency(execs []execution) bool {
	seen := make(map[string]core.Outcome)
	for _, e := range execs {
		if e.commit == "" {
			continue
		}
		if prev, ok := seen[e.commit]; ok && prev != e.outcome {
			return true
		}
		seen[e.commit] = e.outcome
	}
	return false
}
