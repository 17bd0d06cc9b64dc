// Package api provides the HTTP surface of the bridge: task intake and
// status, the provider callback receiver, and breaker administration.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aviz85/elevenlabs-bridge-sub001/internal/app/tasks"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/app/webhook"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/domain"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/health"
	"github.com/aviz85/elevenlabs-bridge-sub001/internal/infra/breaker"
)

// Server is the bridge HTTP API server.
type Server struct {
	tasks          *tasks.Service
	correlator     *webhook.Correlator
	breakers       *breaker.Registry
	checker        *health.Checker
	uploadDir      string
	version        string
	metricsEnabled bool
}

// NewServer creates an API server. uploadDir receives submitted source
// files before splitting.
func NewServer(t *tasks.Service, c *webhook.Correlator, reg *breaker.Registry, uploadDir string) *Server {
	return &Server{tasks: t, correlator: c, breakers: reg, uploadDir: uploadDir, version: "dev"}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetVersion sets the version reported by /api/version.
func (s *Server) SetVersion(v string) { s.version = v }

// SetHealthChecker wires the periodic health checker into /health.
func (s *Server) SetHealthChecker(c *health.Checker) { s.checker = c }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", s.handleHealth)

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/tasks", s.handleSubmitTask)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{id}", s.handleTaskStatus)
		r.Get("/breakers", s.handleListBreakers)
		r.Post("/breakers/{name}/reset", s.handleResetBreaker)
	})

	// Provider callbacks land here, outside the /v1 namespace.
	r.Post("/webhooks/transcription", s.handleProviderCallback)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	snap := s.checker.Snapshot()
	status := http.StatusOK
	if !snap.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrSegmentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
