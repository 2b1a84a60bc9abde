// Package httpserver wires handlers and middleware into the build server's
// http.Server.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/fwbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/fwbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
	"git.home.luguber.info/inful/fwbuilder/internal/server/handlers"
	smw "git.home.luguber.info/inful/fwbuilder/internal/server/middleware"
)

// Options carries the collaborators the server exposes over HTTP. Runner is
// required; the rest are optional.
type Options struct {
	Runner    handlers.Runner
	History   handlers.History
	Artifacts handlers.ArtifactLocator
	Metrics   http.Handler
	Logger    *slog.Logger
}

// Server owns the HTTP listener of the build service.
type Server struct {
	cfg          *config.Config
	opts         Options
	logger       *slog.Logger
	errorAdapter *ferrors.HTTPErrorAdapter
	startTime    time.Time

	monitoringHandlers *handlers.MonitoringHandlers
	buildHandlers      *handlers.BuildHandlers
	historyHandlers    *handlers.HistoryHandlers
	artifactHandlers   *handlers.ArtifactHandlers

	mchain func(http.Handler) http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
	done       chan error
}

// New constructs a server. Nothing is bound until Start.
func New(cfg *config.Config, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:          cfg,
		opts:         opts,
		logger:       logger,
		errorAdapter: ferrors.NewHTTPErrorAdapter(logger),
		startTime:    time.Now(),
	}

	s.monitoringHandlers = handlers.NewMonitoringHandlers(s.startTime, opts.History, s.errorAdapter)
	s.buildHandlers = handlers.NewBuildHandlers(opts.Runner, s.errorAdapter)
	s.historyHandlers = handlers.NewHistoryHandlers(opts.History, s.errorAdapter)
	if opts.Artifacts != nil {
		s.artifactHandlers = handlers.NewArtifactHandlers(opts.Artifacts, s.errorAdapter)
	}

	s.mchain = smw.Chain(logger, s.errorAdapter, cfg.Server.MaxRequestBytes)
	return s
}

// Handler returns the routed and wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.monitoringHandlers.HandleHealthCheck)
	mux.HandleFunc("/build", s.buildHandlers.HandleBuild)
	mux.HandleFunc("/builds", s.historyHandlers.HandleList)
	mux.HandleFunc("/builds/{id}", s.historyHandlers.HandleGet)
	if s.artifactHandlers != nil {
		mux.HandleFunc("/artifacts/{identity}", s.artifactHandlers.HandleDownload)
	}
	if s.opts.Metrics != nil {
		mux.Handle("/metrics", s.opts.Metrics)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.errorAdapter.WriteErrorResponse(w, r, ferrors.NotFoundError("no such endpoint").
			WithContext("path", r.URL.Path).
			Build())
	})
	return s.mchain(mux)
}

// Start binds the listen address and serves in the background. Binding
// happens synchronously so address errors surface immediately.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("http server already started")
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("http startup failed: listen %s: %w", s.cfg.Server.Listen, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.httpServer = srv
	s.addr = ln.Addr()
	s.done = make(chan error, 1)

	s.logger.Info("HTTP server listening", logfields.URL("http://"+ln.Addr().String()))
	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", logfields.Error(err))
			s.done <- err
		}
		close(s.done)
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts the server down, waiting for in-flight builds until
// ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Run starts the server and blocks until ctx is done or serving fails, then
// shuts down within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-s.done:
	}

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	s.logger.Info("HTTP server shutting down", slog.Duration("timeout", timeout))
	if err := s.Stop(shutdownCtx); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}
