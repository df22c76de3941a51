package commands

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/rqg/internal/collect"
	"github.com/leapstack-labs/rqg/internal/explain"
)

// NewExplainCommand creates the explain command.
func NewExplainCommand() *cobra.Command {
	opts := explain.Options{}
	cmd := &cobra.Command{
		Use:   "explain <test-id>",
		Short: "Explain how a test has behaved in recent history",
		Long: `Show the flake score, latest outcome and failure of a test for every
environment it ran in during the history window.

The repository defaults to the one detected from the CI environment.`,
		Example: `  rqg explain "com.acme.CheckoutTest::pays"
  rqg explain "cart::adds" --repo acme/shop --branch main -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cc := NewCommandContext(cmd)

			if opts.Repo == "" {
				opts.Repo = collect.DetectMetadata(os.Getenv, collect.Overrides{}, time.Now()).Repo
			}

			store, err := cc.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			report, err := explain.Explain(ctx, store, cc.Policy(), args[0], opts)
			if err != nil {
				return err
			}
			return explain.Render(cc.Renderer, report)
		},
	}

	cmd.Flags().StringVar(&opts.Repo, "repo", "", "Repository to search")
	cmd.Flags().StringVar(&opts.Branch, "branch", "", "Restrict history to a branch")

	return cmd
}
