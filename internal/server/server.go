// Package server exposes a read-only status API over the running scheduler:
// health, the engine fleet, per-engine runtime statistics, and persisted
// result history. Task submission stays in-process; nothing here mutates
// scheduler state.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/schedrt/internal/report"
	"github.com/me/schedrt/internal/sched"
	"github.com/me/schedrt/internal/store"
)

// Server is the schedrt status API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	sched     *sched.Scheduler
	stats     *report.Stats
	store     store.Store // optional; /api/results 404s without it
	runID     string
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore enables the result-history endpoints.
func WithStore(st store.Store, runID string) Option {
	return func(s *Server) {
		s.store = st
		s.runID = runID
	}
}

// New creates a Server with all routes registered.
func New(scheduler *sched.Scheduler, stats *report.Stats, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "status-server"),
		startTime: time.Now(),
		sched:     scheduler,
		stats:     stats,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(middleware.Recoverer)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/engines", s.handleEngines)
		r.Get("/stats", s.handleStats)
		r.Get("/results", s.handleResults)
		r.Get("/runs", s.handleRuns)
	})
	return s
}

// Handler returns the HTTP handler for mounting or serving.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves the status API until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("status server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
