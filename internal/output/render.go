package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/rqg/pkg/cluster"
	"github.com/leapstack-labs/rqg/pkg/core"
)

// DecisionLabel turns SOFT_BLOCK into "Soft Block".
func DecisionLabel(d core.Decision) string {
	words := strings.ReplaceAll(strings.ToLower(string(d)), "_", " ")
	return cases.Title(language.English).String(words)
}

// DecisionStyle picks the style for a decision.
func (r *Renderer) DecisionStyle(d core.Decision) lipgloss.Style {
	switch d {
	case core.DecisionPass:
		return r.styles.Success
	case core.DecisionSoftBlock:
		return r.styles.Warning
	default:
		return r.styles.Error
	}
}

// Decision renders a decision record in the effective mode.
func (r *Renderer) Decision(record *core.DecisionRecord) error {
	switch r.EffectiveMode() {
	case ModeJSON:
		return r.JSON(record)
	case ModeMarkdown:
		_, err := io.WriteString(r.out, Summary(record))
		return err
	default:
		r.decisionText(record)
		return nil
	}
}

func (r *Renderer) decisionText(record *core.DecisionRecord) {
	s := r.styles
	r.Println(s.Header1.Render("Release Quality Gate"))
	r.Println()
	r.Println(FormatKeyValue("Decision", r.DecisionStyle(record.Decision).Render(DecisionLabel(record.Decision))))
	r.Println(FormatKeyValue("Run", record.RunContext.RunID))
	r.Println(FormatKeyValue("Repository", record.RunContext.Repo))
	r.Println(FormatKeyValue("Branch", record.RunContext.Branch))
	r.Println(FormatKeyValue("Commit", record.RunContext.Commit))
	r.Println(FormatKeyValue("Environment", record.RunContext.EnvKey))

	sum := record.CurrentRunSummary
	r.Println(FormatKeyValue("Tests", fmt.Sprintf("%d total, %d passed, %d failed, %d skipped",
		sum.TotalTests, sum.Passed, sum.Failed, sum.Skipped)))
	r.Println(FormatKeyValue("History", fmt.Sprintf("%d runs, %d known clusters",
		record.InputsPresent.HistoryRuns, record.InputsPresent.KnownClusters)))

	if len(record.NewFailureClusters) > 0 {
		r.Println()
		r.Println(s.Header2.Render(fmt.Sprintf("New failure clusters (%d)", len(record.NewFailureClusters))))
		t := r.table()
		t.AppendHeader(table.Row{"Test", "Fingerprint", "Error"})
		for _, nc := range record.NewFailureClusters {
			t.AppendRow(table.Row{nc.TestID, shortFingerprint(nc.Fingerprint), firstLine(nc.FailureText)})
		}
		t.Render()
	}

	if len(record.KnownFlakyFailures) > 0 {
		r.Println()
		r.Println(s.Header2.Render(fmt.Sprintf("Known flaky failures (%d)", len(record.KnownFlakyFailures))))
		t := r.table()
		t.AppendHeader(table.Row{"Test", "Flake score", "Confidence", "Runs"})
		for _, kf := range record.KnownFlakyFailures {
			t.AppendRow(table.Row{kf.TestID, fmt.Sprintf("%.2f", kf.FlakeScore), fmt.Sprintf("%.2f", kf.Confidence),
				fmt.Sprintf("%d/%d", kf.Evidence.FailCount, kf.Evidence.TotalRuns)})
		}
		t.Render()
	}

	if len(record.InfraFailures) > 0 {
		r.Println()
		r.Println(s.Header2.Render(fmt.Sprintf("Infrastructure failures (%d)", len(record.InfraFailures))))
		for _, inf := range record.InfraFailures {
			r.Printf("  %s %s\n", inf.TestID, s.Muted.Render(joinHints(inf.Hints)))
		}
	}

	if plan := record.Recommendations.TargetedRerun; plan != nil {
		r.Println()
		r.Println(s.Header2.Render("Targeted rerun"))
		r.Println(FormatKeyValue("Tests", fmt.Sprintf("%d", len(plan.Tests))))
		r.Println(FormatKeyValue("Runner pool", plan.RunnerPool))
		r.Println(FormatKeyValue("Attempts", fmt.Sprintf("%d", plan.Attempts)))
	}
	for _, qc := range record.Recommendations.QuarantineCandidates {
		r.Printf("  %s quarantine candidate %s %s\n", s.Warning.Render("!"), qc.TestID,
			s.Muted.Render(fmt.Sprintf("(score %.2f)", qc.FlakeScore)))
	}

	if len(record.DecisionReasons) > 0 {
		r.Println()
		r.Println(s.Header2.Render("Reasons"))
		for _, reason := range record.DecisionReasons {
			label := strings.ToUpper(string(reason.Severity))
			if reason.Severity == core.SeverityHigh {
				label = s.Error.Render(label)
			} else {
				label = s.Warning.Render(label)
			}
			r.Printf("  [%s] %s\n", label, reason.Message)
		}
	}

	for _, e := range record.AnalysisErrors {
		r.Printf("  %s %s\n", s.Warning.Render("degraded:"), e)
	}
}

// Clusters renders failure clusters in the effective mode.
func (r *Renderer) Clusters(clusters []*core.FailureCluster) error {
	mode := r.EffectiveMode()
	if mode == ModeJSON {
		if clusters == nil {
			clusters = []*core.FailureCluster{}
		}
		return r.JSON(clusters)
	}
	if len(clusters) == 0 {
		r.Println("(0 clusters)")
		return nil
	}

	t := r.table()
	t.AppendHeader(table.Row{"Fingerprint", "Occurrences", "Tests", "Last seen", "Hints", "Example"})
	for _, c := range clusters {
		t.AppendRow(table.Row{
			shortFingerprint(c.Fingerprint),
			c.OccurrenceCount,
			len(c.TestIDs),
			c.LastSeenAt.UTC().Format(time.DateTime),
			joinHints(c.InfraHints),
			firstLine(c.ExampleFailureText),
		})
	}
	if mode == ModeMarkdown {
		t.RenderMarkdown()
	} else {
		t.Render()
	}
	return nil
}

// Table returns a go-pretty writer mirrored to the output.
func (r *Renderer) Table() table.Writer {
	return r.table()
}

func (r *Renderer) table() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	return t
}

const firstLineRunes = 80

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return cluster.Excerpt(line, firstLineRunes)
}
