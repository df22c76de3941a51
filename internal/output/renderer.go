// Package output renders decisions for terminals, markdown and JSON, and
// writes the decision artifacts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Mode selects how command output is rendered.
type Mode string

// Output modes.
const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// Styles are the lipgloss styles used for text output.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// Renderer writes command output in the selected mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer. Colors are disabled when out is not a
// terminal or NO_COLOR is set.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	lr := lipgloss.NewRenderer(out)
	if !isTTY || termenv.EnvNoColor() {
		lr.SetColorProfile(termenv.Ascii)
	}

	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		isTTY:  isTTY,
		styles: newStyles(lr),
	}
}

func newStyles(lr *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1: lr.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2: lr.NewStyle().Bold(true).Underline(true),
		Bold:    lr.NewStyle().Bold(true),
		Muted:   lr.NewStyle().Foreground(lipgloss.Color("8")),
		Success: lr.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		Warning: lr.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		Error:   lr.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
}

// EffectiveMode resolves ModeAuto: text on a terminal, markdown otherwise.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// Styles returns the text styles.
func (r *Renderer) Styles() *Styles {
	return r.styles
}

// Writer returns the output writer.
func (r *Renderer) Writer() io.Writer {
	return r.out
}

// Println writes a line to the output.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Warnf writes a warning line to the error output.
func (r *Renderer) Warnf(format string, a ...any) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("Warning:")+" "+fmt.Sprintf(format, a...))
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// StatusLine prints "✓ name" or "✗ name (detail)" depending on status.
func (r *Renderer) StatusLine(name, status, detail string) {
	var mark string
	switch status {
	case "success":
		mark = r.styles.Success.Render("✓")
	case "warning":
		mark = r.styles.Warning.Render("!")
	default:
		mark = r.styles.Error.Render("✗")
	}
	if detail != "" {
		r.Printf("%s %s %s\n", mark, name, r.styles.Muted.Render("("+detail+")"))
		return
	}
	r.Printf("%s %s\n", mark, name)
}

// FormatKeyValue formats an indented "key: value" line.
func FormatKeyValue(key, value string) string {
	return fmt.Sprintf("  %-20s %s", key+":", value)
}
