package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/rqg/internal/cli/config"
	intconfig "github.com/leapstack-labs/rqg/internal/config"
	"github.com/leapstack-labs/rqg/internal/output"
)

// Check statuses.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "error"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that rqg is configured and history is reachable",
		Long: `Check the CLI configuration, the gating policy, the history store and
the server inbox, and report problems.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  rqg doctor
  rqg doctor -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			out := buildDoctorOutput(cmd.Context(), cc)

			r := cc.Renderer
			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(out)
			case output.ModeMarkdown:
				renderDoctorMarkdown(r, out)
			default:
				renderDoctorText(r, out)
			}
			return nil
		},
	}
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Checks  []HealthCheck `json:"checks"`
	Healthy bool          `json:"healthy"`
}

// HealthCheck represents a single check result.
type HealthCheck struct {
	Name    string `json:"name"`
	Group   string `json:"group"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func buildDoctorOutput(ctx context.Context, cc *CommandContext) *DoctorOutput {
	checks := []HealthCheck{
		checkConfigFile(),
		checkPolicy(cc.Cfg.PolicyPath),
		checkStore(ctx, cc),
	}
	if cc.Cfg.Server.Inbox != "" {
		checks = append(checks, checkInbox(cc.Cfg.Server.Inbox))
	}

	healthy := true
	for _, c := range checks {
		if c.Status == StatusFail {
			healthy = false
		}
	}
	return &DoctorOutput{Checks: checks, Healthy: healthy}
}

func checkConfigFile() HealthCheck {
	c := HealthCheck{Name: "CLI config", Group: "configuration", Status: StatusPass}
	if path := config.GetConfigFileUsed(); path != "" {
		c.Message = path
	} else {
		c.Status = StatusWarn
		c.Message = "no .rqg/config.yaml found, using defaults"
	}
	return c
}

func checkPolicy(path string) HealthCheck {
	c := HealthCheck{Name: "Gating policy", Group: "configuration", Status: StatusPass}
	if _, err := os.Stat(path); err != nil {
		c.Status = StatusWarn
		c.Message = fmt.Sprintf("%s not found, using defaults", path)
		return c
	}
	policy, err := intconfig.Load(path)
	if err != nil {
		c.Status = StatusFail
		c.Message = err.Error()
		return c
	}
	c.Message = fmt.Sprintf("%s (mode %s, hash %s)", path, policy.Mode, policy.Hash()[:12])
	return c
}

type schemaVersioner interface {
	SchemaVersion(ctx context.Context) (int64, error)
}

func checkStore(ctx context.Context, cc *CommandContext) HealthCheck {
	c := HealthCheck{Name: "History store", Group: "storage", Status: StatusPass}

	store, err := cc.OpenStore(ctx)
	if err != nil {
		c.Status = StatusFail
		c.Message = err.Error()
		return c
	}
	defer func() { _ = store.Close() }()

	parts := []string{cc.Cfg.Store}
	if sv, ok := store.(schemaVersioner); ok {
		v, err := sv.SchemaVersion(ctx)
		if err != nil {
			c.Status = StatusFail
			c.Message = fmt.Sprintf("failed to read schema version: %v", err)
			return c
		}
		parts = append(parts, fmt.Sprintf("schema v%d", v))
	}

	policy, _ := intconfig.Load(cc.Cfg.PolicyPath)
	clusters, err := store.GetFailureClusters(ctx, policy.History.LookbackDays)
	if err != nil {
		c.Status = StatusFail
		c.Message = err.Error()
		return c
	}
	parts = append(parts, fmt.Sprintf("%d cluster(s) in the last %d days", len(clusters), policy.History.LookbackDays))
	c.Message = strings.Join(parts, ", ")
	return c
}

func checkInbox(dir string) HealthCheck {
	c := HealthCheck{Name: "Server inbox", Group: "server", Status: StatusPass, Message: dir}
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		c.Status = StatusWarn
		c.Message = fmt.Sprintf("%s does not exist yet, serve will create it", dir)
	case !info.IsDir():
		c.Status = StatusFail
		c.Message = fmt.Sprintf("%s is not a directory", dir)
	}
	return c
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header1.Render("rqg Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.Checks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("")
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.Success.Render("✓")
		switch check.Status {
		case StatusWarn:
			icon = styles.Warning.Render("!")
		case StatusFail:
			icon = styles.Error.Render("✗")
		}
		r.Printf("   %s %s: %s\n", icon, check.Name, check.Message)
	}
	r.Println("")

	if out.Healthy {
		r.Println(styles.Success.Render("   Ready to gate."))
	} else {
		r.Println(styles.Error.Render("   Fix the errors above before running rqg analyze."))
	}
	r.Println("")
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) {
	r.Println("# rqg Health Report")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.Checks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("")
			r.Println("## " + titleCaser.String(currentGroup))
			r.Println("")
		}
		r.Printf("- **[%s]** %s: %s\n", strings.ToUpper(check.Status), check.Name, check.Message)
	}
	r.Println("")
}

