package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewClustersCommand creates the clusters command.
func NewClustersCommand() *cobra.Command {
	var lookbackDays, limit int
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "List failure clusters seen in the history window",
		Long: `List failure clusters from history, most recently seen first.

A cluster groups failures sharing a fingerprint across tests, runs and
environments. The window defaults to history.lookback_days of rqg.yml.`,
		Example: `  rqg clusters
  rqg clusters --lookback-days 30 --limit 20 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cc := NewCommandContext(cmd)

			days := lookbackDays
			if days == 0 {
				days = cc.Policy().History.LookbackDays
			}
			if days < 0 {
				return fmt.Errorf("--lookback-days must be positive, got %d", days)
			}

			store, err := cc.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			clusters, err := store.GetFailureClusters(ctx, days)
			if err != nil {
				return err
			}
			if limit > 0 && len(clusters) > limit {
				clusters = clusters[:limit]
			}
			return cc.Renderer.Clusters(clusters)
		},
	}

	cmd.Flags().IntVar(&lookbackDays, "lookback-days", 0, "History window in days (default from rqg.yml)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many clusters, most recent first")

	return cmd
}
