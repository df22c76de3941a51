package commands

import (
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/rqg/internal/analyze"
	"github.com/leapstack-labs/rqg/internal/metrics"
	"github.com/leapstack-labs/rqg/internal/output"
)

// Decision artifact names.
const (
	DefaultOutputDir = "rqg"
	DecisionFile     = "decision.json"
	SummaryFile      = "summary.md"
)

// AnalyzeOptions holds options for the analyze command.
type AnalyzeOptions struct {
	Bundle    string
	OutputDir string
	Force     bool
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	opts := &AnalyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a run bundle against history and decide the gate",
		Long: `Analyze a run bundle against recent history and produce a gate decision.

The decision is written to decision.json and summary.md in the output
directory, and the run is added to history. The exit code reflects the
decision:

  0   PASS
  10  SOFT_BLOCK
  20  HARD_BLOCK
  1   error`,
		Example: `  # Analyze the bundle written by rqg collect
  rqg analyze

  # Analyze a specific bundle and print JSON
  rqg analyze --bundle out/run.json -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Bundle, "bundle", "b", DefaultBundlePath, "Bundle file to analyze")
	cmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "d", DefaultOutputDir, "Directory for decision.json and summary.md")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Re-analyze a run that is already in history")

	return cmd
}

func runAnalyze(cmd *cobra.Command, opts *AnalyzeOptions) error {
	ctx := cmd.Context()
	cc := NewCommandContext(cmd)

	run, err := analyze.LoadBundle(opts.Bundle)
	if err != nil {
		return err
	}

	policy := cc.Policy()
	store, err := cc.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	analyzer := analyze.New(store, policy, cc.Logger, metrics.New(prometheus.NewRegistry()))
	res, err := analyzer.Analyze(ctx, run, analyze.Options{Force: opts.Force})
	if err != nil {
		return err
	}

	if err := output.WriteDecision(filepath.Join(opts.OutputDir, DecisionFile), res.Record); err != nil {
		return err
	}
	if err := output.WriteSummary(filepath.Join(opts.OutputDir, SummaryFile), res.Record); err != nil {
		return err
	}

	if err := cc.Renderer.Decision(res.Record); err != nil {
		return err
	}
	return output.DecisionError(res.Record.Decision)
}
