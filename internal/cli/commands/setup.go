package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/rqg/internal/cli/config"
	intconfig "github.com/leapstack-labs/rqg/internal/config"
	"github.com/leapstack-labs/rqg/internal/output"
	"github.com/leapstack-labs/rqg/internal/state"
	"github.com/leapstack-labs/rqg/pkg/core"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext builds the context from the config and logger stored on
// the command by the root command.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := config.GetConfig(cmd.Context())
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

// Policy loads the gating policy. An unreadable or invalid file falls back to
// defaults with a warning.
func (c *CommandContext) Policy() *core.PolicyConfig {
	policy, err := intconfig.Load(c.Cfg.PolicyPath)
	if err != nil {
		c.Logger.Warn("using default policy", "path", c.Cfg.PolicyPath, "error", err)
		c.Renderer.Warnf("%v (using defaults)", err)
	}
	return policy
}

// OpenStore opens the configured history store. The caller must close it.
func (c *CommandContext) OpenStore(ctx context.Context) (core.HistoryStore, error) {
	store, err := state.Open(ctx, c.Cfg.Store, state.Options{Path: c.Cfg.StatePath, DSN: c.Cfg.DSN}, c.Logger)
	if err != nil {
		return nil, core.NewError(core.ErrStore, "open store", fmt.Errorf("failed to open %s store: %w", c.Cfg.Store, err))
	}
	return store, nil
}
