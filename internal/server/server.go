// Package server exposes the management HTTP API: manual sync triggers,
// sync history, breaker state, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vipul43/jobsync-worker/internal/logging"
	"github.com/vipul43/jobsync-worker/internal/models"
	"github.com/vipul43/jobsync-worker/internal/repository"
	"github.com/vipul43/jobsync-worker/internal/resilience"
	"github.com/vipul43/jobsync-worker/internal/service"
)

// Syncer runs account pipelines on demand.
type Syncer interface {
	RunAccount(ctx context.Context, accountID string) (service.Outcome, error)
	UpdateCleanup(ctx context.Context, accountID string) (service.ReconcileStats, error)
}

// HistoryLister reads sync history.
type HistoryLister interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]models.SyncHistory, error)
	CountByAccount(ctx context.Context, accountID string) (int64, error)
}

// JobCounter counts an account's stored job records.
type JobCounter interface {
	CountByAccount(ctx context.Context, accountID string) (int64, error)
}

type Config struct {
	Addr              string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

type Server struct {
	cfg      Config
	syncer   Syncer
	history  HistoryLister
	jobs     JobCounter
	breakers []*resilience.CircuitBreaker
	router   chi.Router
	http     *http.Server
}

func New(cfg Config, syncer Syncer, history HistoryLister, jobs JobCounter, breakers ...*resilience.CircuitBreaker) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 10
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}

	s := &Server{
		cfg:      cfg,
		syncer:   syncer,
		history:  history,
		jobs:     jobs,
		breakers: breakers,
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/breakers", s.handleBreakers)

		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/history", s.handleHistory)

			r.Group(func(r chi.Router) {
				r.Use(httprate.LimitByIP(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
				r.Post("/sync", s.handleSync)
				r.Post("/cleanup", s.handleCleanup)
			})
		})
	})
	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logging.Info().Str("addr", s.cfg.Addr).Msg("Starting management server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	// A dropped client does not abort a sync that already started.
	outcome, err := s.syncer.RunAccount(context.WithoutCancel(r.Context()), accountID)
	if err != nil {
		writeError(w, err, outcome)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	stats, err := s.syncer.UpdateCleanup(context.WithoutCancel(r.Context()), accountID)
	if err != nil {
		writeError(w, err, stats)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	limit := repository.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	entries, err := s.history.ListByAccount(r.Context(), accountID, limit)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if entries == nil {
		entries = []models.SyncHistory{}
	}

	total, err := s.history.CountByAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	stored, err := s.jobs.CountByAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{
		AccountID:  accountID,
		Total:      total,
		StoredJobs: stored,
		Entries:    entries,
	})
}

func (s *Server) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	snapshots := make([]resilience.Snapshot, 0, len(s.breakers))
	for _, b := range s.breakers {
		snapshots = append(snapshots, b.Snapshot())
	}
	writeJSON(w, http.StatusOK, snapshots)
}

type historyResponse struct {
	AccountID  string               `json:"account_id"`
	Total      int64                `json:"total"`
	StoredJobs int64                `json:"stored_jobs"`
	Entries    []models.SyncHistory `json:"entries"`
}

type errorResponse struct {
	Error   string               `json:"error"`
	Breaker *resilience.Snapshot `json:"breaker,omitempty"`
	Result  interface{}          `json:"result,omitempty"`
}

func writeError(w http.ResponseWriter, err error, partial interface{}) {
	var open *resilience.BreakerOpenError
	switch {
	case errors.As(err, &open):
		snap := open.Snapshot
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(snap.RetryIn.Seconds()))))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:   "service unavailable",
			Breaker: &snap,
			Result:  partial,
		})
	case errors.Is(err, repository.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "account not found"})
	default:
		logging.Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Result: partial})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		logging.Debug().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
