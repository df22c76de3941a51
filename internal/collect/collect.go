// Package collect gathers CI artifacts into a run bundle: JUnit reports,
// log files and run metadata detected from the CI environment.
package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/mattn/go-zglob"

	"github.com/leapstack-labs/rqg/internal/logging"
	"github.com/leapstack-labs/rqg/pkg/core"
	"github.com/leapstack-labs/rqg/pkg/fingerprint"
)

// MaxLogBytes bounds each collected log file; longer logs keep their tail.
const MaxLogBytes = 1 << 20

// Options controls one collection.
type Options struct {
	// Root is the directory globs are resolved against. Defaults to ".".
	Root string
	// RunID overrides the generated run id.
	RunID    string
	Metadata Overrides
}

// Result is a collected run plus what was read to build it.
type Result struct {
	Run        *core.Run
	JUnitFiles []string
	LogFiles   []string
	// Skipped holds per-file failures. They never fail the collection.
	Skipped error
}

// Collector builds run bundles from files on disk.
type Collector struct {
	cfg    *core.PolicyConfig
	logger *slog.Logger
	getenv func(string) string
	now    func() time.Time
	newID  func() string
}

// New creates a collector for the inputs and identity settings in cfg.
func New(cfg *core.PolicyConfig, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Collector{
		cfg:    cfg,
		logger: logging.Component(logger, "collect"),
		getenv: os.Getenv,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Collect parses every JUnit report and log file matched by the configured
// globs. Files that cannot be read or parsed are skipped and reported in Result.Skipped.
func (c *Collector) Collect(ctx context.Context, opts Options) (*Result, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}

	runID := opts.RunID
	if runID == "" {
		runID = c.newID()
	}

	var merr *multierror.Error
	res := &Result{
		Run: &core.Run{
			RunID:       runID,
			Metadata:    DetectMetadata(c.getenv, opts.Metadata, c.now()),
			TestResults: []*core.TestResult{},
		},
	}

	junitFiles, err := expandGlobs(root, c.cfg.Inputs.JUnitGlobs)
	if err != nil {
		return nil, core.NewError(core.ErrInput, "collect", err)
	}
	for _, path := range junitFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, err := c.parseFile(path)
		if err != nil {
			c.logger.Warn("skipping junit file", "path", path, "error", err)
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", path, err))
			continue
		}
		res.JUnitFiles = append(res.JUnitFiles, path)
		res.Run.TestResults = append(res.Run.TestResults, results...)
	}

	logFiles, err := expandGlobs(root, c.cfg.Inputs.LogGlobs)
	if err != nil {
		return nil, core.NewError(core.ErrInput, "collect", err)
	}
	for _, path := range logFiles {
		text, err := readLog(path)
		if err != nil {
			c.logger.Warn("skipping log file", "path", path, "error", err)
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", path, err))
			continue
		}
		res.LogFiles = append(res.LogFiles, path)
		res.Run.LogEvents = append(res.Run.LogEvents, core.LogEvent{Source: relativeTo(root, path), Text: text})
	}

	for _, tr := range res.Run.Failures() {
		fingerprint.Ensure(tr, c.cfg.Identity.FingerprintVersion)
	}

	res.Skipped = merr.ErrorOrNil()
	c.logger.Info("collected run",
		"run_id", runID,
		"junit_files", len(res.JUnitFiles),
		"log_files", len(res.LogFiles),
		"results", len(res.Run.TestResults))
	return res, nil
}

func (c *Collector) parseFile(path string) ([]*core.TestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ParseJUnit(f, c.cfg.Identity.TestIDStrategy)
}

// expandGlobs resolves patterns (with ** support) under root, returning
// sorted, de-duplicated regular files.
func expandGlobs(root string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(root, pattern)
		}
		matches, err := zglob.Glob(pattern)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			if info, err := os.Stat(m); err != nil || !info.Mode().IsRegular() {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

func readLog(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) > MaxLogBytes {
		data = data[len(data)-MaxLogBytes:]
	}
	return string(data), nil
}

func relativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// WriteBundle writes run as indented JSON, creating parent directories.
func WriteBundle(path string, run *core.Run) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create bundle directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	return nil
}
