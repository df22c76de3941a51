// Package server exposes the gate over HTTP and watches an inbox directory
// for bundles.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/rqg/internal/analyze"
	"github.com/leapstack-labs/rqg/internal/logging"
	"github.com/leapstack-labs/rqg/internal/metrics"
	"github.com/leapstack-labs/rqg/pkg/core"
)

// Defaults.
const (
	DefaultAddr     = ":8080"
	shutdownTimeout = 5 * time.Second
	maxBundleBytes  = 64 << 20
)

// Config holds configuration for the server.
type Config struct {
	Store  core.HistoryStore
	Policy *core.PolicyConfig
	Addr   string
	// Inbox is a directory watched for bundle files. Empty disables the watcher.
	Inbox    string
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Server serves analysis requests. Analyses are serialized.
type Server struct {
	store    core.HistoryStore
	policy   *core.PolicyConfig
	analyzer *analyze.Analyzer
	registry *prometheus.Registry
	addr     string
	inbox    string
	logger   *slog.Logger
	events   *decisionFeed

	mu sync.Mutex
}

// New creates a server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	return &Server{
		store:    cfg.Store,
		policy:   cfg.Policy,
		analyzer: analyze.New(cfg.Store, cfg.Policy, logger, metrics.New(registry)),
		registry: registry,
		addr:     addr,
		inbox:    cfg.Inbox,
		logger:   logging.Component(logger, "server"),
		events:   newDecisionFeed(),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(s.logger),
		middleware.Recoverer,
	)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/bundles", s.handleBundle)
		r.Get("/runs/{runID}/decision", s.handleDecision)
		r.Get("/clusters", s.handleClusters)
		r.Get("/events", s.handleEvents)
	})
	return r
}

// Serve runs the HTTP server, and the inbox watcher when configured, until
// ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.inbox != "" {
		eg.Go(func() error {
			return s.watchInbox(egctx)
		})
	}

	eg.Go(func() error {
		s.logger.Info("starting server", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// analyze runs one analysis under the server lock and publishes the decision.
func (s *Server) analyze(ctx context.Context, run *core.Run, opts analyze.Options) (*analyze.Result, error) {
	s.mu.Lock()
	res, err := s.analyzer.Analyze(ctx, run, opts)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.events.publish(res.Record)
	return res, nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
