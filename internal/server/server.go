package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quic-go/quic-go/http3"

	"github.com/zsiec/fdclink/internal/config"
	apperrors "github.com/zsiec/fdclink/internal/errors"
	"github.com/zsiec/fdclink/internal/health"
	"github.com/zsiec/fdclink/internal/link"
	"github.com/zsiec/fdclink/internal/logger"
	"github.com/zsiec/fdclink/internal/telemetry"
)

// healthInterval is how often the background health checks run.
const healthInterval = 30 * time.Second

// Deps are the parts of the running pipeline the status server reports on.
type Deps struct {
	Health   *health.Manager
	Stats    func() link.Stats
	Registry *telemetry.Registry
}

// Server is the status server: health probes, link counters and the schema
// table over HTTP/1.1, optionally mirrored on HTTP/3.
type Server struct {
	config       *config.ServerConfig
	router       *mux.Router
	httpServer   *http.Server
	http3Server  *http3.Server
	logger       logger.Logger
	healthMgr    *health.Manager
	errorHandler *apperrors.ErrorHandler
	stats        func() link.Stats
	registry     *telemetry.Registry

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server with its routes registered. Nothing listens until
// Start is called.
func New(cfg *config.ServerConfig, log logger.Logger, deps Deps) *Server {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(log)
	}
	if deps.Registry == nil {
		deps.Registry = telemetry.DefaultRegistry()
	}
	if deps.Stats == nil {
		deps.Stats = func() link.Stats { return link.Stats{} }
	}

	s := &Server{
		config:       cfg,
		router:       mux.NewRouter(),
		logger:       log,
		healthMgr:    deps.Health,
		errorHandler: apperrors.NewErrorHandler(log),
		stats:        deps.Stats,
		registry:     deps.Registry,
	}
	s.setupRoutes()
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.mu.Unlock()

	errCh := make(chan error, 2)
	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("Starting status server")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.config.HTTP3 {
		if err := s.startHTTP3(errCh); err != nil {
			_ = s.httpServer.Close()
			return err
		}
	}

	go s.healthMgr.StartPeriodicChecks(ctx, healthInterval)

	select {
	case err := <-errCh:
		_ = s.Shutdown()
		return fmt.Errorf("status server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

func (s *Server) startHTTP3(errCh chan<- error) error {
	cert, err := tls.LoadX509KeyPair(s.config.TLSCertFile, s.config.TLSKeyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS certificates: %w", err)
	}

	s.mu.Lock()
	s.http3Server = &http3.Server{
		Addr:    s.config.HTTP3Addr,
		Handler: s.router,
		TLSConfig: &tls.Config{
			MinVersion:   tls.VersionTLS13,
			NextProtos:   []string{"h3"},
			Certificates: []tls.Certificate{cert},
		},
	}
	s.mu.Unlock()

	go func() {
		s.logger.WithField("addr", s.config.HTTP3Addr).Info("Starting HTTP/3 status server")
		if err := s.http3Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return nil
}

// Shutdown stops both listeners, waiting up to the configured shutdown
// timeout for in-flight requests.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down status server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.mu.Lock()
	httpServer, http3Server := s.httpServer, s.http3Server
	s.mu.Unlock()

	var errs []error
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	// http3.Server.Close does not drain; the timeout is enforced above.
	if http3Server != nil {
		if err := http3Server.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Status server shutdown complete")
	return nil
}

// Addr returns the bound TCP address once Start is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// RegisterRoutes adds additional route handlers to the server.
func (s *Server) RegisterRoutes(registerFunc func(*mux.Router)) {
	registerFunc(s.router)
}

// GetRouter returns the router for testing.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// NewMetricsServer exposes the Prometheus registry on its own port.
func NewMetricsServer(cfg config.MetricsConfig) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ServeMetrics runs srv until ctx is cancelled.
func ServeMetrics(ctx context.Context, srv *http.Server, log logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("Starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
