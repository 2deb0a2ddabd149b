package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mindburn-Labs/assetrisk/pkg/batch"
	"github.com/Mindburn-Labs/assetrisk/pkg/config"
	"github.com/Mindburn-Labs/assetrisk/pkg/formula"
	"github.com/Mindburn-Labs/assetrisk/pkg/session"
)

const maxBodyBytes = 1 << 20

// Options tunes a Server. Zero values take the documented defaults.
type Options struct {
	RateLimitRPS     float64       // default 20
	RateLimitBurst   int           // default 40
	SessionTTL       time.Duration // zero disables eviction
	IdempotencyTTL   time.Duration // default 10m
	BatchParallelism int           // default 4
	Observer         session.Observer
	Profiles         map[string]*config.SiteProfile
	Version          string
}

// Server routes HTTP requests to the engine and session store.
type Server struct {
	engine   *formula.Engine
	sessions *SessionStore
	batch    *batch.Runner
	limiter  *ClientLimiter
	replays  *ReplayCache
	profiles map[string]*config.SiteProfile
	version  string
	logger   *slog.Logger
}

// NewServer wires a server. Background sweepers stop when ctx ends.
func NewServer(ctx context.Context, engine *formula.Engine, opts Options) *Server {
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 20
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 40
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 10 * time.Minute
	}
	if opts.BatchParallelism <= 0 {
		opts.BatchParallelism = 4
	}

	sessOpts := []session.Option{}
	if opts.Observer != nil {
		sessOpts = append(sessOpts, session.WithObserver(opts.Observer))
	}

	s := &Server{
		engine: engine,
		sessions: NewSessionStore(opts.SessionTTL, func() *session.Session {
			return session.New(engine, sessOpts...)
		}),
		batch:    batch.NewRunner(engine, opts.BatchParallelism),
		limiter:  NewClientLimiter(ctx, opts.RateLimitRPS, opts.RateLimitBurst),
		replays:  NewReplayCache(ctx, opts.IdempotencyTTL),
		profiles: opts.Profiles,
		version:  opts.Version,
		logger:   slog.Default().With("component", "api"),
	}
	go s.sessions.Run(ctx)
	return s
}

// Sessions exposes the session store.
func (s *Server) Sessions() *SessionStore { return s.sessions }

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/formulas", s.handleListFormulas)
	mux.HandleFunc("GET /v1/formulas/{variant}", s.handleDescribeFormula)
	mux.HandleFunc("GET /v1/types/{type}/formulas", s.handleFormulasByType)
	mux.HandleFunc("GET /v1/profiles", s.handleListProfiles)
	mux.HandleFunc("POST /v1/risk/classify", s.handleClassify)
	mux.HandleFunc("POST /v1/batch", s.handleBatch)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/calculate", s.handleCalculate)
	mux.HandleFunc("GET /v1/sessions/{id}/latest", s.handleLatest)
	mux.HandleFunc("DELETE /v1/sessions/{id}/result", s.handleClearResult)
	mux.HandleFunc("GET /v1/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("DELETE /v1/sessions/{id}/history", s.handleClearHistory)

	var h http.Handler = mux
	h = s.replays.Middleware(h)
	h = s.limiter.Middleware(h)
	h = recoverer(h)
	h = accessLog(s.logger, h)
	h = requestID(h)
	return h
}

// ListenAndServe serves on addr until ctx ends, then drains in-flight
// requests for up to 10 seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
