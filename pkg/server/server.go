package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/custodian/pkg/api"
)

// Server is the admin HTTP server plus the runtime's background jobs.
type Server struct {
	runtime    *Runtime
	httpServer *http.Server
	logger     *slog.Logger

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// New creates a server for rt. The runtime stays owned by the caller.
func New(rt *Runtime) *Server {
	return &Server{
		runtime: rt,
		logger:  slog.Default().With("component", "server"),
	}
}

// Handler builds the admin API router.
func (s *Server) Handler() http.Handler {
	cfg := s.runtime.Config
	var metricsPath string
	if cfg.Telemetry.Metrics.Enabled {
		metricsPath = cfg.Telemetry.Metrics.Path
	}
	return api.NewRouter(api.Services{
		Detections: s.runtime.Detections,
		Policies:   s.runtime.Registry,
		Requests:   s.runtime.Requests,
		Enforcer:   s.runtime.Enforcer,
		Audit:      s.runtime.Audit,
		Reports:    s.runtime.Reports,
		Health:     s.runtime.Health,
		Metrics:    s.runtime.Metrics,
	}, api.Options{
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		IngestLimiter: api.NewLimiter(cfg.Limits.IngestRate, cfg.Limits.IngestBurst),
		MetricsPath:   metricsPath,
	})
}

// Addr returns the bound listen address once Start is serving.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Start starts the background jobs and serves HTTP until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	cfg := s.runtime.Config.Server
	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddress, err)
	}

	if err := s.runtime.StartBackground(ctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to start background jobs: %w", err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting admin server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	}
}

// Shutdown stops accepting requests, waits for in-flight ones up to the
// configured timeout and stops the background jobs.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		srv := s.httpServer
		s.mu.RUnlock()
		if !running {
			return
		}

		timeout := s.runtime.Config.Server.ShutdownTimeout
		s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}
		s.runtime.Scheduler.Stop()

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("admin server stopped")
	})

	return shutdownErr
}
