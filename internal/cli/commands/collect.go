package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/rqg/internal/collect"
)

// DefaultBundlePath is where collect writes and analyze/upload read bundles.
const DefaultBundlePath = "rqg/bundle.json"

// CollectOptions holds options for the collect command.
type CollectOptions struct {
	Root     string
	Bundle   string
	RunID    string
	Metadata collect.Overrides
}

// NewCollectCommand creates the collect command.
func NewCollectCommand() *cobra.Command {
	opts := &CollectOptions{}
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect test reports and logs into a run bundle",
		Long: `Collect JUnit XML reports and CI logs from the workspace into a run bundle.

Files are found with the inputs.junit_globs and inputs.log_globs patterns of
rqg.yml. Repository, branch, commit and build details are detected from the CI
environment (GitHub Actions, GitLab CI, Jenkins) unless given as flags.`,
		Example: `  # Collect from the current directory
  rqg collect

  # Collect from a build directory with explicit metadata
  rqg collect --root build --repo acme/shop --branch main --commit $SHA --os linux`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Root, "root", ".", "Workspace directory to search")
	f.StringVarP(&opts.Bundle, "bundle", "b", DefaultBundlePath, "Bundle file to write")
	f.StringVar(&opts.RunID, "run-id", "", "Run id (generated when empty)")
	f.StringVar(&opts.Metadata.Repo, "repo", "", "Repository name")
	f.StringVar(&opts.Metadata.Branch, "branch", "", "Branch name")
	f.StringVar(&opts.Metadata.Commit, "commit", "", "Commit SHA")
	f.StringVar(&opts.Metadata.Workflow, "workflow", "", "CI workflow name")
	f.StringVar(&opts.Metadata.Job, "job", "", "CI job name")
	f.StringVar(&opts.Metadata.BuildNumber, "build-number", "", "CI build number")
	f.IntVar(&opts.Metadata.Attempt, "attempt", 0, "Retry attempt number")
	f.StringVar(&opts.Metadata.OS, "os", "", "Operating system of the run")
	f.StringVar(&opts.Metadata.Browser, "browser", "", "Browser of the run")
	f.StringVar(&opts.Metadata.Device, "device", "", "Device of the run")
	f.StringVar(&opts.Metadata.RunnerPool, "runner-pool", "", "Runner pool of the run")
	f.StringVar(&opts.Metadata.ShardID, "shard", "", "Shard id of the run")

	return cmd
}

func runCollect(cmd *cobra.Command, opts *CollectOptions) error {
	cc := NewCommandContext(cmd)
	r := cc.Renderer

	collector := collect.New(cc.Policy(), cc.Logger)
	res, err := collector.Collect(cmd.Context(), collect.Options{
		Root:     opts.Root,
		RunID:    opts.RunID,
		Metadata: opts.Metadata,
	})
	if err != nil {
		return err
	}
	if res.Skipped != nil {
		r.Warnf("some inputs were skipped: %v", res.Skipped)
	}

	if err := collect.WriteBundle(opts.Bundle, res.Run); err != nil {
		return err
	}

	summary := res.Run.Summary()
	r.StatusLine(fmt.Sprintf("Bundle created: %s", opts.Bundle), "success", "")
	r.Printf("  run %s: %d JUnit file(s), %d log file(s), %d tests (%d failed)\n",
		res.Run.RunID, len(res.JUnitFiles), len(res.LogFiles), summary.TotalTests, summary.Failed)
	return nil
}
