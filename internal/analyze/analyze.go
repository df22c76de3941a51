// Package analyze runs the gate over one run: fingerprinting, clustering
// against history, flake scoring, policy evaluation and recommendations.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/hashicorp/go-multierror"

	"github.com/leapstack-labs/rqg/internal/logging"
	"github.com/leapstack-labs/rqg/internal/metrics"
	"github.com/leapstack-labs/rqg/pkg/cluster"
	"github.com/leapstack-labs/rqg/pkg/core"
	"github.com/leapstack-labs/rqg/pkg/fingerprint"
	"github.com/leapstack-labs/rqg/pkg/policy"
	"github.com/leapstack-labs/rqg/pkg/recommend"
	"github.com/leapstack-labs/rqg/pkg/scoring"
)

// Degradation stages.
const (
	StageFingerprint = "fingerprint"
	StageHints       = "hints"
)

// Options controls a single analysis.
type Options struct {
	// Force re-analyzes a run id that is already stored.
	Force bool
}

// Degradation is a per-result failure that did not stop the analysis.
type Degradation struct {
	TestID string
	Stage  string
	Err    error
}

func (d Degradation) Error() string {
	return fmt.Sprintf("%s %s: %v", d.Stage, d.TestID, d.Err)
}

// Result is the outcome of one analysis.
type Result struct {
	Record       *core.DecisionRecord
	Scores       map[string]*core.FlakeScore
	Degradations []Degradation
}

// Analyzer evaluates runs against stored history.
type Analyzer struct {
	store   core.HistoryStore
	policy  *core.PolicyConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	now         func() time.Time
	fingerprint func(tr *core.TestResult, version string) string
	hints       func(failureText, logText string) []core.Hint
}

// New creates an analyzer. A nil logger discards output; nil metrics record nothing.
func New(store core.HistoryStore, cfg *core.PolicyConfig, logger *slog.Logger, m *metrics.Metrics) *Analyzer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Analyzer{
		store:       store,
		policy:      cfg,
		logger:      logging.Component(logger, "analyze"),
		metrics:     m,
		now:         time.Now,
		fingerprint: fingerprint.Ensure,
		hints:       fingerprint.DetectHints,
	}
}

// Analyze produces the decision for run and persists the run, new clusters
// and the decision. Store failures abort without a decision.
func (a *Analyzer) Analyze(ctx context.Context, run *core.Run, opts Options) (*Result, error) {
	const op = "analyze"
	start := a.now()
	cfg := a.policy

	if run == nil || run.RunID == "" {
		return nil, core.NewError(core.ErrInput, op, fmt.Errorf("run_id is required"))
	}

	exists, err := a.store.HasRun(ctx, run.RunID)
	if err != nil {
		return nil, core.NewError(core.ErrStore, op, err)
	}
	if exists && !opts.Force {
		return nil, core.NewError(core.ErrInput, op, fmt.Errorf("run %s: %w", run.RunID, core.ErrAlreadyAnalyzed))
	}

	var merr *multierror.Error
	var degradations []Degradation
	degrade := func(testID, stage string, err error) {
		d := Degradation{TestID: testID, Stage: stage, Err: err}
		degradations = append(degradations, d)
		merr = multierror.Append(merr, d)
		a.metrics.ObserveDegradation(stage)
		if ge, ok := err.(*goerrors.Error); ok {
			a.logger.Debug("recovered panic", "stage", stage, "test_id", testID, "stack", ge.ErrorStack())
		}
	}

	failing := run.Failures()
	for _, tr := range failing {
		if err := guard(func() { a.fingerprint(tr, cfg.Identity.FingerprintVersion) }); err != nil {
			tr.Fingerprint = ""
			degrade(tr.TestID, StageFingerprint, err)
		}
	}

	history, err := a.store.GetRecentRuns(ctx, run.Metadata.Repo, run.Metadata.Branch,
		cfg.History.LookbackRuns, cfg.History.LookbackDays)
	if err != nil {
		return nil, core.NewError(core.ErrStore, op, err)
	}
	history = slices.DeleteFunc(history, func(r *core.Run) bool { return r.RunID == run.RunID })

	clusters, err := a.store.GetFailureClusters(ctx, cfg.History.LookbackDays)
	if err != nil {
		return nil, core.NewError(core.ErrStore, op, err)
	}

	tracker := cluster.NewTracker(a.store, a.logger)
	classified, err := tracker.Classify(ctx, run, failing, cluster.IndexByFingerprint(clusters))
	if err != nil {
		return nil, core.NewError(core.ErrStore, op, err)
	}

	scores := a.score(run, history, failing)

	var knownFlaky []core.FlakyEvidence
	var infra []core.InfraEvidence
	hintsByFingerprint := make(map[string][]core.Hint)
	for _, tr := range failing {
		if tr.Fingerprint != "" && classified.IsKnown(tr.Fingerprint) {
			if s := scores[tr.TestID]; s != nil && s.FlakeScore >= cfg.FlakeDetection.KnownFlakyThreshold {
				knownFlaky = append(knownFlaky, core.FlakyEvidence{
					TestID:      tr.TestID,
					Fingerprint: tr.Fingerprint,
					FlakeScore:  s.FlakeScore,
					Confidence:  s.Confidence,
					Evidence:    s.Evidence,
				})
			}
		}

		var hints []core.Hint
		if err := guard(func() { hints = a.hints(tr.FailureText, tr.LogText()) }); err != nil {
			degrade(tr.TestID, StageHints, err)
			continue
		}
		if len(hints) == 0 {
			continue
		}
		infra = append(infra, core.InfraEvidence{TestID: tr.TestID, Fingerprint: tr.Fingerprint, Hints: hints})
		if tr.Fingerprint != "" {
			hintsByFingerprint[tr.Fingerprint] = mergeHints(hintsByFingerprint[tr.Fingerprint], hints)
		}
	}

	record := policy.NewEngine(cfg).Decide(run, classified.New, knownFlaky, infra)
	record.Recommendations = recommend.Generate(run, knownFlaky, infra, cfg)
	record.InputsPresent.HistoryRuns = len(history)
	record.InputsPresent.KnownClusters = len(clusters)
	record.Timestamp = a.now().UTC()
	if merr != nil {
		for _, e := range merr.Errors {
			record.AnalysisErrors = append(record.AnalysisErrors, e.Error())
		}
		a.logger.Warn("analysis degraded", "run_id", run.RunID, "error", merr.ErrorOrNil())
	}

	if err := a.store.SaveRun(ctx, run); err != nil {
		return nil, core.NewError(core.ErrStore, op, err)
	}
	if err := tracker.Seed(ctx, run, failing, classified, hintsByFingerprint); err != nil {
		return nil, core.NewError(core.ErrStore, op, err)
	}
	if err := a.store.SaveDecision(ctx, record); err != nil {
		return nil, core.NewError(core.ErrStore, op, err)
	}

	a.metrics.ObserveAnalysis(record.Decision, len(classified.New), a.now().Sub(start))
	a.logger.Info("analyzed run",
		"run_id", run.RunID,
		"decision", record.Decision,
		"failures", len(failing),
		"new_clusters", len(classified.New),
		"known_flaky", len(knownFlaky),
		"infra", len(infra))

	return &Result{Record: record, Scores: scores, Degradations: degradations}, nil
}

// score computes a flake score for every failing test in the run's environment
// over history (oldest first) plus the run itself.
func (a *Analyzer) score(run *core.Run, history []*core.Run, failing []*core.TestResult) map[string]*core.FlakeScore {
	fields := a.policy.Identity.EnvKeyFields
	envKey := run.Metadata.EnvKey(fields)

	chronological := make([]*core.Run, 0, len(history)+1)
	for i := len(history) - 1; i >= 0; i-- {
		chronological = append(chronological, history[i])
	}
	chronological = append(chronological, run)

	scores := make(map[string]*core.FlakeScore)
	for _, tr := range failing {
		if _, ok := scores[tr.TestID]; ok {
			continue
		}
		scores[tr.TestID] = scoring.Score(tr.TestID, envKey, chronological, fields)
	}
	return scores
}

// guard runs fn and converts a panic into an error carrying its stack.
func guard(fn func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = goerrors.Wrap(rec, 2)
		}
	}()
	fn()
	return nil
}

func mergeHints(existing, add []core.Hint) []core.Hint {
	for _, h := range add {
		if !slices.Contains(existing, h) {
			existing = append(existing, h)
		}
	}
	return existing
}
