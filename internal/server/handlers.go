package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/rqg/internal/analyze"
	"github.com/leapstack-labs/rqg/pkg/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps analysis errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrAlreadyAnalyzed):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case core.IsKind(err, core.ErrInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBundleBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read bundle: %w", err))
		return
	}

	run, err := analyze.DecodeBundle(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	res, err := s.analyze(r.Context(), run, analyze.Options{Force: force})
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("analysis failed", "run_id", run.RunID, "error", err)
		}
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, res.Record)
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	record, err := s.store.GetDecision(r.Context(), runID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	days := s.policy.History.LookbackDays
	if v := r.URL.Query().Get("lookback_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid lookback_days %q", v))
			return
		}
		days = n
	}

	clusters, err := s.store.GetFailureClusters(r.Context(), days)
	if err != nil {
		s.logger.Error("failed to list clusters", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if clusters == nil {
		clusters = []*core.FailureCluster{}
	}
	writeJSON(w, http.StatusOK, clusters)
}
