package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wisbric/companyid/pkg/queue"
)

// Server is the ops HTTP surface of the worker: health, readiness, metrics,
// and queue status. There is no domain API; resolution runs in-process.
type Server struct {
	Router    *chi.Mux
	logger    *slog.Logger
	db        *pgxpool.Pool
	queues    *queue.Store
	startedAt time.Time
}

// NewServer creates the ops server.
func NewServer(logger *slog.Logger, db *pgxpool.Pool, queues *queue.Store, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		logger:    logger,
		db:        db,
		queues:    queues,
		startedAt: time.Now(),
	}

	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.Recoverer)

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Get("/status", s.handleStatus)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("readiness probe failed", "error", err)
		respond(w, http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleStatus reports queue depths for scheduler and dashboard use.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := s.queues.GetStats(ctx)
	if err != nil {
		s.logger.Error("queue stats query failed", "error", err)
		respond(w, http.StatusInternalServerError, map[string]string{"error": "queue stats unavailable"})
		return
	}
	ready, err := s.queues.Depth(ctx, queue.StatusPending, true)
	if err != nil {
		s.logger.Error("queue depth query failed", "error", err)
		respond(w, http.StatusInternalServerError, map[string]string{"error": "queue depth unavailable"})
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"queue": map[string]int64{
			"pending":       stats.Pending,
			"pending_ready": ready,
			"processing":    stats.Processing,
			"done":          stats.Done,
			"failed":        stats.Failed,
		},
	})
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
