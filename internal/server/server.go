package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/quic-go/quic-go/http3"

	"github.com/zsiec/reel/internal/config"
	apperrors "github.com/zsiec/reel/internal/errors"
	"github.com/zsiec/reel/internal/health"
	"github.com/zsiec/reel/internal/jobs"
	"github.com/zsiec/reel/internal/logger"
	"github.com/zsiec/reel/internal/render"
)

// healthInterval is how often registered checkers run in the background.
const healthInterval = 30 * time.Second

// JobService is the part of jobs.Manager the API needs.
type JobService interface {
	Submit(ctx context.Context, name string, body io.ReadSeekCloser) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context) ([]*jobs.Job, error)
	Preview(id string) (*render.LatestFrame, bool)
	Cancel(id string) error
	Delete(ctx context.Context, id string) error
	Running() int
}

// Server serves the job API over HTTP/1.1 and, when TLS material is
// configured, HTTP/3.
type Server struct {
	config       *config.ServerConfig
	router       *mux.Router
	httpServer   *http.Server
	http3Server  *http3.Server
	logger       logger.Logger
	jobs         JobService
	healthMgr    *health.Manager
	errorHandler *apperrors.ErrorHandler
}

// New creates a server for svc. checkers are registered with the health
// manager behind /health and /ready.
func New(cfg *config.ServerConfig, log logger.Logger, svc JobService, checkers ...health.Checker) *Server {
	if log == nil {
		log = logger.Discard()
	}
	log = logger.WithComponent(log, "server")

	s := &Server{
		config:       cfg,
		router:       mux.NewRouter(),
		logger:       log,
		jobs:         svc,
		healthMgr:    health.NewManager(log),
		errorHandler: apperrors.NewErrorHandler(log),
	}
	for _, c := range checkers {
		s.healthMgr.Register(c)
	}

	if cfg.HTTP3Enabled() {
		s.http3Server = &http3.Server{
			Addr:    fmt.Sprintf(":%d", cfg.HTTP3Port),
			Handler: s.router,
		}
	}

	s.setupRoutes()
	return s
}

// Start serves until ctx is cancelled or a listener fails, then shuts
// down within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	go s.healthMgr.StartPeriodicChecks(ctx, healthInterval)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 2)

	go func() {
		s.logger.WithField("port", s.config.HTTPPort).Info("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if s.http3Server != nil {
		cert, err := tls.LoadX509KeyPair(s.config.TLSCertFile, s.config.TLSKeyFile)
		if err != nil {
			_ = s.httpServer.Close()
			return fmt.Errorf("failed to load TLS certificates: %w", err)
		}
		s.http3Server.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS13,
			NextProtos:   []string{"h3"},
			Certificates: []tls.Certificate{cert},
		}

		go func() {
			s.logger.WithField("port", s.config.HTTP3Port).Info("Starting HTTP/3 server")
			if err := s.http3Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http3 server: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		_ = s.Shutdown()
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops both listeners. In-flight HTTP/1.1 requests get up to
// ShutdownTimeout to finish.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}
	if s.http3Server != nil {
		// http3.Server.Close has no graceful variant
		if err := s.http3Server.Close(); err != nil {
			errs = append(errs, fmt.Errorf("http3 server: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info("Server shutdown complete")
	return nil
}

func (s *Server) setupRoutes() {
	s.router.Use(logger.RequestLoggerMiddleware(s.logger))
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.errorHandler.Middleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.http3Server != nil {
		s.router.Use(s.altSvcMiddleware)
	}

	var running func() int
	if s.jobs != nil {
		running = s.jobs.Running
	}
	healthHandler := health.NewHandler(s.healthMgr, running)
	s.router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")
	s.router.HandleFunc("/ready", healthHandler.HandleReady).Methods("GET")
	s.router.HandleFunc("/live", healthHandler.HandleLive).Methods("GET")

	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/jobs", s.handleCreateJob).Methods("POST")
	api.HandleFunc("/jobs", s.handleListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}", s.handleDeleteJob).Methods("DELETE")
	api.HandleFunc("/jobs/{id}/preview", s.handlePreview).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(s.errorHandler.HandleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.errorHandler.HandleMethodNotAllowed)
}

// RegisterRoutes adds handlers to the router, e.g. the metrics endpoint.
func (s *Server) RegisterRoutes(registerFunc func(*mux.Router)) {
	registerFunc(s.router)
}

// GetRouter returns the router for testing.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}
