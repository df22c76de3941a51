package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/rqg/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var addr, inbox string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the rqg HTTP server",
		Long: `Run an HTTP server that analyzes uploaded bundles.

Endpoints:
  POST /api/v1/bundles                 analyze a bundle, returns the decision
  GET  /api/v1/runs/{run_id}/decision  stored decision of a run
  GET  /api/v1/clusters                failure clusters (?lookback_days=N)
  GET  /api/v1/events                  decisions as server-sent events
  GET  /healthz                        liveness
  GET  /metrics                        Prometheus metrics

With --inbox, bundle files dropped into the directory are analyzed too and
the decision is written next to them as <name>.decision.json.`,
		Example: `  rqg serve --addr :9090 --inbox /var/spool/rqg`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cc := NewCommandContext(cmd)
			if addr == "" {
				addr = cc.Cfg.Server.Addr
			}
			if inbox == "" {
				inbox = cc.Cfg.Server.Inbox
			}

			store, err := cc.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			srv := server.New(server.Config{
				Store:    store,
				Policy:   cc.Policy(),
				Addr:     addr,
				Inbox:    inbox,
				Registry: registry,
				Logger:   cc.Logger,
			})
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from server.addr)")
	cmd.Flags().StringVar(&inbox, "inbox", "", "Directory watched for bundle files")

	return cmd
}
