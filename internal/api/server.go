// Package api exposes the operational HTTP surface: health probes, metrics,
// and run control.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ending-signal/crawler/internal/pipeline"
)

// Runner is the pipeline surface the server drives.
type Runner interface {
	TriggerAsync() bool
	Running() bool
	LastReport() (pipeline.Report, bool)
}

// Pinger reports database reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the pipeline.
type Server struct {
	router chi.Router
	runner Runner
	db     Pinger
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. db may be nil,
// in which case readiness only covers the process itself.
func NewServer(runner Runner, db Pinger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{runner: runner, db: db, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.triggerRun)
			r.Get("/last", s.lastRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) triggerRun(w http.ResponseWriter, _ *http.Request) {
	if !s.runner.TriggerAsync() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) lastRun(w http.ResponseWriter, _ *http.Request) {
	report, ok := s.runner.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "no completed runs yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running": s.runner.Running(),
		"report":  report,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
