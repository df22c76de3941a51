// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/rqg/internal/cli/config"
	rqgtest "github.com/leapstack-labs/rqg/internal/testutil"
)

// PassingReport is a JUnit report where every test passes.
const PassingReport = `<?xml version="1.0" encoding="UTF-8"?>
<testsuite name="checkout" tests="2">
  <testcase classname="com.acme.CheckoutTest" name="adds" time="0.120"/>
  <testcase classname="com.acme.CheckoutTest" name="pays" time="1.5"/>
</testsuite>
`

// FailingReport is a JUnit report with one assertion failure.
const FailingReport = `<?xml version="1.0" encoding="UTF-8"?>
<testsuite name="checkout" tests="2" failures="1">
  <testcase classname="com.acme.CheckoutTest" name="adds" time="0.120"/>
  <testcase classname="com.acme.CheckoutTest" name="pays" time="1.5">
    <failure message="expected 200">java.lang.AssertionError: expected 200 but was 500
	at com.acme.CheckoutTest.pays(CheckoutTest.java:42)</failure>
  </testcase>
</testsuite>
`

// SetupTestProject creates a temporary workspace containing the given JUnit
// report at reports/junit-checkout.xml.
func SetupTestProject(t *testing.T, report string) string {
	t.Helper()

	dir := t.TempDir()
	WriteFile(t, dir, "reports/junit-checkout.xml", report)
	return dir
}

// WriteFile writes content to dir/name, creating parent directories.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// TestConfig returns a CLI config keeping history and policy inside dir.
func TestConfig(t *testing.T, dir string) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.ProjectRoot = dir
	cfg.StatePath = filepath.Join(dir, ".rqg", "rqg.db")
	cfg.PolicyPath = filepath.Join(dir, "rqg.yml")
	cfg.OutputFormat = "text"
	return cfg
}

// Execute runs cmd with cfg and a test logger in its context, returning
// everything written to stdout and stderr.
func Execute(t *testing.T, cmd *cobra.Command, cfg *config.Config, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)

	ctx := config.WithConfig(context.Background(), cfg)
	ctx = config.WithLogger(ctx, rqgtest.NewTestLogger(t))
	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and basic structure.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
