// Package explain reports how a single test has behaved across recent history.
package explain

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/rqg/internal/output"
	"github.com/leapstack-labs/rqg/pkg/cluster"
	"github.com/leapstack-labs/rqg/pkg/core"
	"github.com/leapstack-labs/rqg/pkg/scoring"
)

// MaxExcerptRunes bounds the failure text shown per environment.
const MaxExcerptRunes = 500

// Options selects the history to scan.
type Options struct {
	Repo   string
	Branch string
}

// Environment is the behavior of the test in one environment key.
type Environment struct {
	EnvKey         string           `json:"env_key"`
	Score          *core.FlakeScore `json:"score"`
	LatestRunID    string           `json:"latest_run_id"`
	LatestSeenAt   time.Time        `json:"latest_seen_at"`
	LatestOutcome  core.Outcome     `json:"latest_outcome"`
	Fingerprint    string           `json:"fingerprint,omitempty"`
	FailureExcerpt string           `json:"failure_excerpt,omitempty"`
}

// Report explains one test.
type Report struct {
	TestID       string        `json:"test_id"`
	Repo         string        `json:"repo"`
	Branch       string        `json:"branch,omitempty"`
	RunsScanned  int           `json:"runs_scanned"`
	Environments []Environment `json:"environments"`
}

// Found reports whether the test appeared in any scanned run.
func (r *Report) Found() bool {
	return len(r.Environments) > 0
}

// Explain scans recent runs for testID and scores it per environment key.
// Environments are ordered by their latest execution, newest first.
func Explain(ctx context.Context, store core.HistoryStore, cfg *core.PolicyConfig, testID string, opts Options) (*Report, error) {
	if testID == "" {
		return nil, core.NewError(core.ErrInput, "explain", fmt.Errorf("test id is required"))
	}

	runs, err := store.GetRecentRuns(ctx, opts.Repo, opts.Branch, cfg.History.LookbackRuns, cfg.History.LookbackDays)
	if err != nil {
		return nil, core.NewError(core.ErrStore, "explain", err)
	}

	chronological := slices.Clone(runs)
	slices.Reverse(chronological)

	report := &Report{
		TestID:       testID,
		Repo:         opts.Repo,
		Branch:       opts.Branch,
		RunsScanned:  len(runs),
		Environments: []Environment{},
	}

	fields := cfg.Identity.EnvKeyFields
	seen := make(map[string]bool)
	// runs are newest first, so the first hit per env key is the latest
	for _, run := range runs {
		tr := findResult(run, testID)
		if tr == nil {
			continue
		}
		envKey := run.Metadata.EnvKey(fields)
		if seen[envKey] {
			continue
		}
		seen[envKey] = true

		report.Environments = append(report.Environments, Environment{
			EnvKey:         envKey,
			Score:          scoring.Score(testID, envKey, chronological, fields),
			LatestRunID:    run.RunID,
			LatestSeenAt:   run.Metadata.SeenAt(),
			LatestOutcome:  tr.Outcome,
			Fingerprint:    tr.Fingerprint,
			FailureExcerpt: cluster.Excerpt(tr.FailureText, MaxExcerptRunes),
		})
	}

	return report, nil
}

func findResult(run *core.Run, testID string) *core.TestResult {
	for _, tr := range run.TestResults {
		if tr.TestID == testID {
			return tr
		}
	}
	return nil
}

// Render writes the report in the renderer's effective mode.
func Render(r *output.Renderer, report *Report) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(report)
	}

	styles := r.Styles()
	r.Println(styles.Header1.Render("Explanation for test: " + report.TestID))
	r.Println()
	if !report.Found() {
		r.Printf("Test %s not found in recent history (%d runs scanned)\n", report.TestID, report.RunsScanned)
		return nil
	}

	t := r.Table()
	t.AppendHeader(table.Row{"Environment", "Outcome", "Flake score", "Confidence", "Fail rate", "Intermittency", "Runs"})
	for _, env := range report.Environments {
		s := env.Score
		t.AppendRow(table.Row{
			env.EnvKey,
			env.LatestOutcome,
			fmt.Sprintf("%.2f", s.FlakeScore),
			fmt.Sprintf("%.2f", s.Confidence),
			fmt.Sprintf("%.2f", s.FailRate),
			s.Intermittency,
			fmt.Sprintf("%d/%d", s.Evidence.FailCount, s.Evidence.TotalRuns),
		})
	}
	if r.EffectiveMode() == output.ModeMarkdown {
		t.RenderMarkdown()
	} else {
		t.Render()
	}

	for _, env := range report.Environments {
		if env.Fingerprint == "" && env.FailureExcerpt == "" {
			continue
		}
		r.Println()
		r.Println(styles.Header2.Render(env.EnvKey))
		if env.Fingerprint != "" {
			r.Println(output.FormatKeyValue("Fingerprint", env.Fingerprint))
		}
		if env.FailureExcerpt != "" {
			r.Println(output.FormatKeyValue("Failure", ""))
			r.Println(styles.Muted.Render(env.FailureExcerpt))
		}
	}
	return nil
}
