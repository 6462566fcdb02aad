package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/flow-alert-service/internal/domain"
	"github.com/couchcryptid/flow-alert-service/internal/pipeline"
)

// RunTimeout bounds a manually triggered run.
const RunTimeout = 2 * time.Minute

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// AlertRunner triggers alert evaluation on demand.
type AlertRunner interface {
	RunForUser(ctx context.Context, userID string) (pipeline.RunResult, error)
	LastRun() (pipeline.RunResult, bool)
}

// AlertHistory lists recorded alerts.
type AlertHistory interface {
	ListAlerts(ctx context.Context, userID string, limit int) ([]domain.AlertRecord, error)
}

// Server exposes the admin API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	runner     AlertRunner
	history    AlertHistory
	logger     *slog.Logger
}

// NewServer creates the HTTP server and its routes.
func NewServer(addr string, ready ReadinessChecker, runner AlertRunner, history AlertHistory, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: RunTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		runner:  runner,
		history: history,
		logger:  logger,
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", handleReady(ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/alerts/run", s.handleRun)
		r.Get("/alerts/runs/last", s.handleLastRun)
		r.Get("/users/{userID}/alerts", s.handleUserAlerts)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

type runRequest struct {
	UserID string `json:"userId"`
}

type runResponse struct {
	RunID          string                `json:"runId"`
	UsersProcessed int                   `json:"usersProcessed"`
	PerUserOutcome []pipeline.Outcome    `json:"perUserOutcome"`
	Results        []pipeline.UserResult `json:"results"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		req.UserID = pipeline.AllUsers
	}

	// The run outlives a disconnected client so a started evaluation finishes
	// and records its history.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), RunTimeout)
	defer cancel()

	result, err := s.runner.RunForUser(ctx, req.UserID)
	if err != nil {
		s.logger.Error("manual run failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(result))
}

func (s *Server) handleLastRun(w http.ResponseWriter, _ *http.Request) {
	result, ok := s.runner.LastRun()
	if !ok {
		writeError(w, http.StatusNotFound, "no run has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUserAlerts(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	alerts, err := s.history.ListAlerts(r.Context(), userID, limit)
	if err != nil {
		s.logger.Error("list alerts failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "alerts": alerts})
}

func toRunResponse(r pipeline.RunResult) runResponse {
	resp := runResponse{
		RunID:          r.RunID,
		UsersProcessed: r.UsersProcessed,
		PerUserOutcome: r.PerUserOutcome,
		Results:        r.Results,
	}
	if resp.PerUserOutcome == nil {
		resp.PerUserOutcome = []pipeline.Outcome{}
	}
	if resp.Results == nil {
		resp.Results = []pipeline.UserResult{}
	}
	return resp
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
