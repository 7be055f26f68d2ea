// Package ops exposes the operational HTTP surface: health probes,
// Prometheus metrics and the admin endpoints the CLI talks to.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medscribe/dispatch/internal/core/domain"
	"github.com/medscribe/dispatch/internal/dlq"
	"github.com/medscribe/dispatch/internal/jobs"
	"github.com/medscribe/dispatch/internal/resilience/breaker"
	"github.com/medscribe/dispatch/internal/store"
	"github.com/medscribe/dispatch/internal/worker"
)

// SystemStatus is the coarse state reported by the health probe.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Pools lets the server scale worker pools by queue name.
type Pools interface {
	Pool(queue string) (*worker.Pool, bool)
}

// Server provides the ops HTTP endpoints.
type Server struct {
	jobs       *jobs.Service
	deadLetter *dlq.Service
	registry   *worker.Registry
	breakers   *breaker.Registry
	pools      Pools
	logger     *slog.Logger
	server     *http.Server
}

// NewServer builds the ops server on the given port.
func NewServer(
	port int,
	jobSvc *jobs.Service,
	deadLetter *dlq.Service,
	registry *worker.Registry,
	breakers *breaker.Registry,
	pools Pools,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()
	s := &Server{
		jobs:       jobSvc,
		deadLetter: deadLetter,
		registry:   registry,
		breakers:   breakers,
		pools:      pools,
		logger:     logger.With("component", "ops"),
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /admin/status", s.handleStatus)
	mux.HandleFunc("GET /admin/workers", s.handleWorkers)
	mux.HandleFunc("GET /admin/breakers", s.handleBreakers)
	mux.HandleFunc("POST /admin/breakers/{service}/reset", s.handleBreakerReset)
	mux.HandleFunc("POST /admin/breakers/{service}/open", s.handleBreakerOpen)
	mux.HandleFunc("POST /admin/pools/{queue}/scale", s.handleScale)
	mux.HandleFunc("GET /admin/dlq/{queue}", s.handleDLQList)
	mux.HandleFunc("GET /admin/dlq/{queue}/stats", s.handleDLQStats)
	mux.HandleFunc("GET /admin/dlq/{queue}/eligible", s.handleDLQEligible)
	mux.HandleFunc("POST /admin/dlq/{queue}/requeue-eligible", s.handleDLQRequeueEligible)
	mux.HandleFunc("POST /admin/dlq/{queue}/{job}/requeue", s.handleDLQRequeue)
	mux.HandleFunc("DELETE /admin/dlq/{queue}/{job}", s.handleDLQDiscard)

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("ops server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	score := s.registry.HealthScore()
	status := StatusHealthy
	switch {
	case score < 40:
		status = StatusCritical
	case score < 70:
		status = StatusDegraded
	}

	code := http.StatusOK
	if status == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "score": score})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"score":           s.registry.HealthScore(),
		"system_load":     s.registry.SystemLoad(),
		"workers":         s.registry.Snapshot(),
		"queues":          s.jobs.QueueDepths(r.Context()),
		"pending_retries": s.jobs.PendingRetries(r.Context()),
		"breakers":        s.breakers.Snapshot(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dlqDepths := make(map[string]int64)
	for _, q := range domain.KnownQueues() {
		if st, err := s.deadLetter.QueueStats(ctx, q); err == nil {
			dlqDepths[q] = st.Depth
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queues":          s.jobs.QueueDepths(ctx),
		"pending_retries": s.jobs.PendingRetries(ctx),
		"dlq":             dlqDepths,
		"system_load":     s.registry.SystemLoad(),
		"health_score":    s.registry.HealthScore(),
	})
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.breakers.Snapshot())
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	if !s.breakers.Reset(service) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no breaker for service %q", service))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"service": service, "state": string(breaker.StateClosed)})
}

func (s *Server) handleBreakerOpen(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	s.breakers.ForceOpen(service)
	writeJSON(w, http.StatusOK, map[string]string{"service": service, "state": string(breaker.StateOpen)})
}

func (s *Server) handleScale(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("queue")
	pool, ok := s.pools.Pool(queue)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no pool for queue %q", queue))
		return
	}

	n, err := strconv.Atoi(r.URL.Query().Get("workers"))
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "workers must be a non-negative integer")
		return
	}

	got := pool.Scale(n)
	writeJSON(w, http.StatusOK, map[string]any{"queue": queue, "workers": got})
}

func (s *Server) handleDLQList(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("queue")
	q := r.URL.Query()

	filter := dlq.ListFilter{
		Category:     domain.ErrorCategory(q.Get("category")),
		EligibleOnly: q.Get("eligible") == "true",
		Limit:        50,
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.Limit = n
		}
	}

	entries, err := s.deadLetter.List(r.Context(), queue, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDLQEligible(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deadLetter.RetryEligible(r.Context(), r.PathValue("queue"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDLQRequeueEligible(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("queue")
	n, err := s.deadLetter.RequeueEligible(r.Context(), queue)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": queue, "requeued": n})
}

func (s *Server) handleDLQStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.deadLetter.QueueStats(r.Context(), r.PathValue("queue"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDLQRequeue(w http.ResponseWriter, r *http.Request) {
	queue := r.PathValue("queue")
	jobID := r.PathValue("job")
	force := r.URL.Query().Get("force") == "true"

	err := s.deadLetter.Requeue(r.Context(), queue, jobID, force)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "requeued"})
	case isNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case isNotEligible(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleDLQDiscard(w http.ResponseWriter, r *http.Request) {
	err := s.deadLetter.Discard(r.Context(), r.PathValue("queue"), r.PathValue("job"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
	case isNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func isNotEligible(err error) bool {
	return errors.Is(err, dlq.ErrNotEligible)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
