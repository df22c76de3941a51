// Package cli provides the command-line interface for rqg.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/rqg/internal/cli/commands"
	"github.com/leapstack-labs/rqg/internal/cli/config"
	"github.com/leapstack-labs/rqg/internal/logging"
	"github.com/leapstack-labs/rqg/internal/output"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rqg",
		Short: "rqg - Release Quality Gate",
		Long: `rqg turns CI test reports into a release decision.

It normalizes JUnit, Surefire, pytest and Playwright reports into a run bundle,
compares failures against recent history to separate new regressions from
known flakes and infrastructure noise, and answers PASS, SOFT_BLOCK or
HARD_BLOCK with the reasons and recommended follow-ups.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := cfg.LogLevel
			if cfg.Verbose {
				level = "debug"
			}
			logger, err := logging.New(level, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx := config.WithConfig(cmd.Context(), cfg)
			ctx = config.WithLogger(ctx, logger)
			cmd.SetContext(ctx)

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", "path", configFile)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .rqg/config.yaml)")
	rootCmd.PersistentFlags().String("policy", "", "Path to policy file (default: rqg.yml)")
	rootCmd.PersistentFlags().String("state", "", "Path to SQLite history database")
	rootCmd.PersistentFlags().String("store", "", "History store (sqlite|postgres|memory)")
	rootCmd.PersistentFlags().String("dsn", "", "Postgres connection string")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (auto|text|markdown|json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"auto", "text", "markdown", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("store", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"sqlite", "postgres", "memory"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewCollectCommand())
	rootCmd.AddCommand(commands.NewAnalyzeCommand())
	rootCmd.AddCommand(commands.NewExplainCommand())
	rootCmd.AddCommand(commands.NewClustersCommand())
	rootCmd.AddCommand(commands.NewUploadCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(commands.NewDoctorCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version, GitCommit, BuildDate))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command. Gate decisions other than PASS come back as
// an *output.ExitError and are not printed as errors.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		var exitErr *output.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for rqg.

To load completions:

Bash:
  $ source <(rqg completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ rqg completion bash > /etc/bash_completion.d/rqg
  # macOS:
  $ rqg completion bash > $(brew --prefix)/etc/bash_completion.d/rqg

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ rqg completion zsh > "${fpath[1]}/_rqg"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ rqg completion fish | source

  # To load completions for each session, execute once:
  $ rqg completion fish > ~/.config/fish/completions/rqg.fish

PowerShell:
  PS> rqg completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> rqg completion powershell > rqg.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
