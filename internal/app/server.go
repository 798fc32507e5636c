package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	dbStatsInterval = 30 * time.Second
	workerDrainTime = 10 * time.Second
)

// Server owns the HTTP listener and the background workers: tenant timers
// and the hourly sweep.
type Server struct {
	router    *gin.Engine
	container *Container

	workerCtx    context.Context
	workerCancel context.CancelFunc
	workers      sync.WaitGroup
}

func NewServer(container *Container) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		router:       SetupRouter(container),
		container:    container,
		workerCtx:    ctx,
		workerCancel: cancel,
	}
}

// Start serves until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is done or the listener fails, then shuts down in
// order: HTTP, workers, infrastructure.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.container.Config.Server
	srv := &http.Server{
		Addr:           net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:        s.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	s.startBackgroundWorkers()
	s.startMetricsCollector()

	log := s.container.Logger
	log.Info(ctx, "Starting server",
		zap.String("addr", srv.Addr),
		zap.String("env", cfg.Env),
		zap.String("store", s.container.Config.Store.Driver),
	)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("server failed: %w", err)
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case runErr = <-serveErr:
	case <-ctx.Done():
		log.Info(context.Background(), "Shutdown signal received", zap.NamedError("cause", context.Cause(ctx)))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "HTTP server shutdown failed", zap.Error(err))
	}
	s.stopBackgroundWorkers()
	s.container.Close()
	log.Info(shutdownCtx, "Server exited")
	return runErr
}

// goWorker runs fn until the worker context ends; a panic is logged and
// counted rather than taking the process down.
func (s *Server) goWorker(name string, fn func(ctx context.Context)) {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer func() {
			if r := recover(); r != nil {
				s.container.Logger.Error(s.workerCtx, "Panic in background worker", zap.String("worker", name), zap.Any("panic", r))
				s.container.Metrics.RecordBackgroundJob(name, 0, fmt.Errorf("panic: %v", r))
			}
		}()
		fn(s.workerCtx)
	}()
}

// startBackgroundWorkers rebuilds every tenant timer from the store and starts
// the hourly sweep loop.
func (s *Server) startBackgroundWorkers() {
	cfg := s.container.Config
	if cfg.Scheduler.Enabled {
		if err := s.container.Scheduler.RecoverAll(s.workerCtx); err != nil {
			s.container.Logger.Error(s.workerCtx, "Scheduler recovery finished with errors", zap.Error(err))
		}
	}
	if cfg.Sweep.Enabled {
		s.goWorker("sweep", s.container.Sweep.Start)
	}
}

// startMetricsCollector samples connection pool stats for the mysql store.
func (s *Server) startMetricsCollector() {
	if !s.container.Config.Metrics.Enabled || s.container.DB == nil {
		return
	}
	s.goWorker("db_stats", func(ctx context.Context) {
		ticker := time.NewTicker(dbStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := s.container.DB.Stats()
				s.container.Metrics.RecordDatabaseStats(st.OpenConnections, st.InUse, st.Idle)
			}
		}
	})
}

// stopBackgroundWorkers stops the sweep loop and every tenant timer, waiting
// for absentee checks already in flight.
func (s *Server) stopBackgroundWorkers() {
	s.workerCancel()

	ctx, cancel := context.WithTimeout(context.Background(), workerDrainTime)
	defer cancel()

	log := s.container.Logger
	if err := s.container.Scheduler.Shutdown(ctx); err != nil {
		log.Warn(ctx, "Scheduler did not drain in time", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info(ctx, "Background workers finished")
	case <-ctx.Done():
		log.Warn(ctx, "Background workers did not finish in time, proceeding with shutdown")
	}
}
