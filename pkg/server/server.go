// Package server exposes the orchestration pipeline and the stored
// analytics over HTTP. The orchestrate endpoint streams run events as
// server-sent events; the remaining endpoints are plain JSON reads over
// the document store.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/pipeline"
	"github.com/GouthamCharan06/OSS-Maintainer-Elastic/pkg/store"
)

const (
	serviceName      = "oss-maintainer-intelligence"
	defaultRiskLimit = 20

	// staleAfter is how long the service may go without a completed run
	// before healthz reports it as stale.
	staleAfter = 15 * time.Minute
)

// Runner executes one orchestration run, streaming events to emit.
type Runner interface {
	Run(ctx context.Context, repoURL string, emit func(pipeline.Event)) (*pipeline.Result, error)
}

// RunnerFactory builds a Runner for one request. A non-empty token
// overrides the service credential for that run only.
type RunnerFactory func(ctx context.Context, token string) (Runner, error)

// Server routes HTTP requests to the pipeline and the document store.
type Server struct {
	newRunner RunnerFactory
	store     store.DocumentStore
	metrics   *MetricsCollector
}

// New creates a server over the given runner factory and store.
func New(newRunner RunnerFactory, st store.DocumentStore) *Server {
	return &Server{
		newRunner: newRunner,
		store:     st,
		metrics:   NewMetricsCollector(),
	}
}

// Routes builds the router with middleware and all endpoints mounted.
func (s *Server) Routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(s.requestID)
	mux.Use(s.logRequest)

	mux.Get("/", s.handleRoot)
	mux.Get("/healthz", s.handleHealthz)
	mux.Post("/api/orchestrate", s.handleOrchestrate)
	mux.Get("/api/risk", s.handleRisk)
	mux.Get("/api/summary", s.handleSummary)
	mux.Delete("/api/repo", s.handleDeleteRepo)

	return mux
}

type orchestrateRequest struct {
	RepoURL string `json:"repo_url"`
	Token   string `json:"token"`
}

// handleOrchestrate runs the full pipeline for one repository, streaming
// each orchestration event as an SSE data frame. The stream stays open for
// the lifetime of the run; a client disconnect cancels it.
func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	var req orchestrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RepoURL == "" {
		s.respondError(w, http.StatusBadRequest, "repo_url is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	runner, err := s.newRunner(r.Context(), req.Token)
	if err != nil {
		slog.Error("Failed to build pipeline", "component", "server", "error", err)
		s.respondError(w, http.StatusInternalServerError, "orchestration setup failed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(ev pipeline.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("Failed to encode event", "component", "server", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	result, err := runner.Run(r.Context(), req.RepoURL, emit)
	if err != nil {
		// The error event has already been streamed.
		s.metrics.RecordRun("", true)
		slog.Error("Orchestration failed", "component", "server",
			"request_id", getRequestID(r.Context()), "repo_url", req.RepoURL, "error", err)
		return
	}
	s.metrics.RecordRun(result.Repo, false)
}

// handleRisk returns the highest-risk pull requests for one repository.
func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	if repo == "" {
		s.respondError(w, http.StatusBadRequest, "repo parameter is required")
		return
	}

	limit := defaultRiskLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	prs, err := s.store.PRsByRisk(r.Context(), repo, limit)
	if err != nil {
		s.handleStoreError(w, r, "risk query failed", err)
		return
	}

	s.respond(w, http.StatusOK, map[string]any{
		"repo":          repo,
		"total":         len(prs),
		"high_risk_prs": prs,
	})
}

// handleSummary returns the aggregated health telemetry for one repository.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	if repo == "" {
		s.respondError(w, http.StatusBadRequest, "repo parameter is required")
		return
	}

	summary, err := s.store.HealthSummary(r.Context(), repo)
	if err != nil {
		s.handleStoreError(w, r, "summary query failed", err)
		return
	}
	s.respond(w, http.StatusOK, summary)
}

// handleDeleteRepo drops all ingested documents for one repository.
func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	if repo == "" {
		s.respondError(w, http.StatusBadRequest, "repo parameter is required")
		return
	}

	if err := s.store.DeleteRepoData(r.Context(), repo); err != nil {
		s.handleStoreError(w, r, "delete failed", err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"repo": repo, "deleted": true})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"endpoints": map[string]string{
			"orchestrate": "POST /api/orchestrate",
			"risk":        "GET /api/risk?repo=owner/name",
			"summary":     "GET /api/summary?repo=owner/name",
			"health":      "GET /healthz",
		},
	})
}

// handleHealthz reports run metrics. Once at least one run has completed,
// going too long without another reports the service as stale.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	stats := s.metrics.GetStats()

	status := "ok"
	code := http.StatusOK
	if stats.TotalRuns > 0 && time.Since(stats.LastRun) > staleAfter {
		status = "stale"
		code = http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status":      status,
		"service":     serviceName,
		"total_runs":  stats.TotalRuns,
		"failed_runs": stats.FailedRuns,
		"repos_seen":  stats.Repos,
	}
	if !stats.LastRun.IsZero() {
		body["last_run"] = stats.LastRun.UTC().Format(time.RFC3339)
	}
	s.respond(w, code, body)
}

// handleStoreError maps store failures onto HTTP responses, surfacing
// credential and availability problems distinctly.
func (s *Server) handleStoreError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error("Store query failed", "component", "server",
		"request_id", getRequestID(r.Context()), "error", err)

	code := http.StatusInternalServerError
	if errors.Is(err, store.ErrUnavailable) {
		code = http.StatusBadGateway
	}
	s.respond(w, code, map[string]string{"error": msg, "message": err.Error()})
}

func (s *Server) respond(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("Failed to encode response", "component", "server", "error", err)
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, message string) {
	s.respond(w, code, map[string]string{"error": message})
}
