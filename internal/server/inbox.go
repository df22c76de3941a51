package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/rqg/internal/analyze"
	"github.com/leapstack-labs/rqg/internal/output"
	"github.com/leapstack-labs/rqg/pkg/core"
)

const (
	decisionSuffix = ".decision.json"
	inboxDebounce  = 200 * time.Millisecond
)

// isBundleFile reports whether name looks like a bundle rather than a decision.
func isBundleFile(name string) bool {
	return filepath.Ext(name) == ".json" && !strings.HasSuffix(name, decisionSuffix)
}

// DecisionPath returns where the decision for a bundle file is written.
func DecisionPath(bundlePath string) string {
	return strings.TrimSuffix(bundlePath, ".json") + decisionSuffix
}

// watchInbox analyzes bundles already waiting in the inbox, then every bundle
// written to it until ctx is cancelled.
func (s *Server) watchInbox(ctx context.Context) error {
	if err := os.MkdirAll(s.inbox, 0o755); err != nil {
		return fmt.Errorf("failed to create inbox %s: %w", s.inbox, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(s.inbox); err != nil {
		return fmt.Errorf("failed to watch inbox %s: %w", s.inbox, err)
	}
	s.logger.Info("watching inbox", "dir", s.inbox)

	s.scanInbox(ctx)

	var (
		mu       sync.Mutex
		inflight sync.WaitGroup
		closed   bool
		timers   = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		closed = true
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
		inflight.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isBundleFile(event.Name) {
				continue
			}

			path := event.Name
			mu.Lock()
			if t, ok := timers[path]; ok {
				t.Stop()
			}
			timers[path] = time.AfterFunc(inboxDebounce, func() {
				mu.Lock()
				if closed {
					mu.Unlock()
					return
				}
				delete(timers, path)
				inflight.Add(1)
				mu.Unlock()
				defer inflight.Done()

				if _, err := s.ProcessBundle(ctx, path); err != nil {
					s.logInboxError(path, err)
				}
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

// scanInbox processes bundles that have no decision file yet.
func (s *Server) scanInbox(ctx context.Context) {
	entries, err := os.ReadDir(s.inbox)
	if err != nil {
		s.logger.Error("failed to read inbox", "dir", s.inbox, "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isBundleFile(e.Name()) {
			continue
		}
		path := filepath.Join(s.inbox, e.Name())
		if _, err := os.Stat(DecisionPath(path)); err == nil {
			continue
		}
		if _, err := s.ProcessBundle(ctx, path); err != nil {
			s.logInboxError(path, err)
		}
	}
}

// ProcessBundle analyzes the bundle at path and writes its decision next to it.
func (s *Server) ProcessBundle(ctx context.Context, path string) (*core.DecisionRecord, error) {
	run, err := analyze.LoadBundle(path)
	if err != nil {
		return nil, err
	}
	res, err := s.analyze(ctx, run, analyze.Options{})
	if err != nil {
		return nil, err
	}

	out := DecisionPath(path)
	if err := output.WriteDecision(out, res.Record); err != nil {
		return nil, err
	}
	s.logger.Info("inbox bundle analyzed",
		"bundle", filepath.Base(path),
		"run_id", run.RunID,
		"decision", res.Record.Decision,
		"output", out,
	)
	return res.Record, nil
}

func (s *Server) logInboxError(path string, err error) {
	if errors.Is(err, core.ErrAlreadyAnalyzed) {
		s.logger.Warn("inbox bundle already analyzed", "bundle", filepath.Base(path))
		return
	}
	s.logger.Error("failed to process inbox bundle", "bundle", filepath.Base(path), "error", err)
}
