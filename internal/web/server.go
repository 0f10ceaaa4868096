// Package web serves the pipeline's run history, quality reports and a run
// trigger over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/fleximart-etl/internal/config"
	"github.com/JonMunkholm/fleximart-etl/internal/core"
	"github.com/JonMunkholm/fleximart-etl/internal/logging"
	"github.com/JonMunkholm/fleximart-etl/internal/store"
	mw "github.com/JonMunkholm/fleximart-etl/internal/web/middleware"
)

// RunStore reads recorded runs.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
	LatestRun(ctx context.Context) (store.RunSummary, error)
	Rejections(ctx context.Context, runID string) ([]core.Rejection, error)
}

// RunFunc executes one pipeline pass.
type RunFunc func(ctx context.Context) (*core.Report, error)

// ErrRunInProgress is returned when a run is triggered while another is active.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// Server is the HTTP server for pipeline status and reports.
type Server struct {
	cfg    config.ServerConfig
	runs   RunStore
	run    RunFunc
	router *chi.Mux
	server *http.Server

	// baseCtx outlives requests; triggered runs derive from it.
	baseCtx context.Context
	running atomic.Bool
	wg      sync.WaitGroup
}

// NewServer creates a Server. run may be nil, in which case runs cannot be
// triggered over HTTP.
func NewServer(ctx context.Context, cfg config.ServerConfig, runs RunStore, run RunFunc) *Server {
	s := &Server{
		cfg:     cfg,
		runs:    runs,
		run:     run,
		router:  chi.NewRouter(),
		baseCtx: ctx,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/runs/latest", http.StatusFound)
	})
	s.router.Get("/runs/latest", s.handleReportPage)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.handleListRuns)
		r.Post("/runs", s.handleTriggerRun)
		r.Get("/runs/latest", s.handleLatestRun)
		r.Get("/runs/latest/report", s.handleLatestReport)
		r.Get("/runs/{runID}/rejections", s.handleRejections)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		IdleTimeout:       60 * time.Second,
	}

	slog.Info("starting server", "addr", s.cfg.Addr())
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for a triggered run to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Running reports whether a triggered run is in progress.
func (s *Server) Running() bool {
	return s.running.Load()
}

// startRun launches s.run in the background unless a run is already active.
func (s *Server) startRun(requestID string) error {
	if s.run == nil {
		return errors.New("run trigger is disabled")
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		log := logging.WithFields(s.baseCtx, "trigger_request_id", requestID)
		report, err := s.run(s.baseCtx)
		if err != nil {
			log.Error("triggered run failed", "error", err)
			return
		}
		log.Info("triggered run finished", "run_id", report.RunID, "state", report.State.String())
	}()
	return nil
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
