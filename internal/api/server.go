package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"showsync/internal/config"
	"showsync/internal/database"
	"showsync/internal/jobqueue"
	"showsync/internal/models"
)

// JobQueue is the slice of the job manager the server needs.
type JobQueue interface {
	Queue(ctx context.Context, job *models.SyncJob) error
	Size(ctx context.Context) (int, error)
}

// Exporter produces a watched-history report file.
type Exporter interface {
	WatchedHistory(ctx context.Context) (string, error)
}

// Server exposes the local status surface: health, queue state, manual
// resync and Prometheus metrics.
type Server struct {
	cfg      config.APIConfig
	db       *database.DB
	jobs     JobQueue
	exporter Exporter
	logger   *zerolog.Logger
	limiter  *rateLimiter
	server   *http.Server
}

func NewServer(cfg config.APIConfig, db *database.DB, jobs JobQueue, exporter Exporter, logger *zerolog.Logger) *Server {
	srv := &Server{
		cfg:      cfg,
		db:       db,
		jobs:     jobs,
		exporter: exporter,
		logger:   logger,
		limiter:  newRateLimiter(&cfg),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/status", srv.handleStatus)
	mux.HandleFunc("/sync", srv.handleSync)
	mux.HandleFunc("/export", srv.handleExport)
	mux.Handle("/metrics", promhttp.Handler())

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.rateLimit(srv.logging(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("status API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pending, err := s.jobs.Size(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count jobs")
		return
	}
	failed, err := s.db.GetFailedSyncJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list failed jobs")
		return
	}

	type failedJob struct {
		ID         string `json:"id"`
		Kind       string `json:"kind"`
		EntityType string `json:"entity_type"`
		EntityID   int64  `json:"entity_id"`
		Error      string `json:"error"`
	}
	resp := struct {
		Pending int         `json:"pending"`
		Failed  []failedJob `json:"failed"`
	}{Pending: pending, Failed: make([]failedJob, 0, len(failed))}

	for _, job := range failed {
		fj := failedJob{ID: job.ID, Kind: job.Kind, EntityType: job.EntityType, EntityID: job.EntityID}
		if job.LastError != nil {
			fj.Error = *job.LastError
		}
		resp.Failed = append(resp.Failed, fj)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	for _, kind := range []string{jobqueue.KindSyncWatched, jobqueue.KindSyncWatching, jobqueue.KindSyncRatings, jobqueue.KindSyncWatchlist, jobqueue.KindSyncComments} {
		job, err := jobqueue.NewJob(kind, models.EntityUser, 0, nil)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to build sync job")
			return
		}
		if err := s.jobs.Queue(r.Context(), job); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to queue sync job")
			return
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync queued"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export not configured")
		return
	}

	path, err := s.exporter.WatchedHistory(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !s.limiter.getLimiter(host).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
