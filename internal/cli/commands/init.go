package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/rqg/internal/cli/config"
	intconfig "github.com/leapstack-labs/rqg/internal/config"
)

// projectConfig is the .rqg/config.yaml written by init.
type projectConfig struct {
	Policy    string `yaml:"policy"`
	Store     string `yaml:"store"`
	StatePath string `yaml:"state_path"`
	Output    string `yaml:"output"`
	Server    struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize rqg in a repository",
		Long: `Initialize rqg with a default gating policy and CLI configuration.

This creates:
  - rqg.yml            gating policy with every default spelled out
  - .rqg/config.yaml   where history is stored and how output is rendered`,
		Example: `  # Initialize in current directory
  rqg init

  # Overwrite an existing policy
  rqg init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(NewCommandContext(cmd), dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(cc *CommandContext, dir string, force bool) error {
	r := cc.Renderer

	if err := os.MkdirAll(filepath.Join(dir, config.DefaultConfigDir), 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	policyPath := filepath.Join(dir, intconfig.ConfigFileName)
	if _, err := os.Stat(policyPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", intconfig.ConfigFileName)
	}
	if err := intconfig.WriteFile(policyPath, intconfig.Default()); err != nil {
		return err
	}
	r.StatusLine(intconfig.ConfigFileName, "success", "")

	cliPath := filepath.Join(dir, config.DefaultConfigDir, config.DefaultConfigFile)
	if _, err := os.Stat(cliPath); err == nil && !force {
		r.StatusLine(filepath.ToSlash(filepath.Join(config.DefaultConfigDir, config.DefaultConfigFile)), "warning", "exists, kept")
	} else {
		d := config.Default()
		pc := projectConfig{
			Policy:    intconfig.ConfigFileName,
			Store:     d.Store,
			StatePath: d.StatePath,
			Output:    d.OutputFormat,
		}
		pc.Server.Addr = d.Server.Addr

		data, err := yaml.Marshal(pc)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		if err := os.WriteFile(cliPath, data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", cliPath, err)
		}
		r.StatusLine(filepath.ToSlash(filepath.Join(config.DefaultConfigDir, config.DefaultConfigFile)), "success", "")
	}

	r.Println("")
	r.Println(r.Styles().Success.Render("rqg initialized!"))
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Tune gating thresholds in rqg.yml")
	r.Println("  2. Run 'rqg collect' after your test step in CI")
	r.Println("  3. Run 'rqg analyze' to gate the build on the decision")
	return nil
}
