package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/engine"
	"mercator-hq/ganymede/pkg/telemetry/health"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

// Options carries the optional collaborators a Server can be wired
// with. The zero value runs without metrics and with the default
// logger.
type Options struct {
	// Logger receives request and lifecycle logs. Defaults to
	// slog.Default.
	Logger *slog.Logger

	// Collector, when set, receives per-route HTTP metrics and exposes
	// the scrape endpoint. The server also registers the engine
	// snapshot on it so gauges like live resource counts appear per
	// scrape.
	Collector *metrics.Collector

	// BuildInfo is served on the version endpoint.
	BuildInfo health.BuildInfo
}

// Server is the admin HTTP server in front of one engine.
type Server struct {
	config    *config.Config
	engine    *engine.Engine
	logger    *slog.Logger
	collector *metrics.Collector
	checker   *health.Checker
	buildInfo health.BuildInfo

	httpServer    *http.Server
	metricsServer *http.Server
	shutdownChan  chan struct{}
	stopOnce      sync.Once
	shutdownOnce  sync.Once
	mu            sync.RWMutex
	isRunning     bool
}

// NewServer creates a server for eng. The engine's storage probes are
// registered on the readiness checker, and when a metrics collector is
// given the engine stats snapshot is registered for scraping.
func NewServer(cfg *config.Config, eng *engine.Engine, opts *Options) *Server {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterAll(eng.HealthChecks())

	s := &Server{
		config:       cfg,
		engine:       eng,
		logger:       logger,
		collector:    opts.Collector,
		checker:      checker,
		buildInfo:    opts.BuildInfo,
		shutdownChan: make(chan struct{}),
	}

	if s.collector != nil {
		s.collector.RegisterEngineSnapshot(s.snapshot)
	}

	return s
}

// snapshot adapts the engine's stats to the metrics snapshot read on
// each scrape.
func (s *Server) snapshot(ctx context.Context) metrics.EngineSnapshot {
	st := s.engine.Stats(ctx)
	return metrics.EngineSnapshot{
		RunsTracked:    st.Pipeline.Runs,
		RunsActive:     st.Pipeline.Active,
		ResourcesLive:  st.Registry.Live,
		Buckets:        st.Limiter.Buckets,
		ActiveRules:    st.RuleCount,
		RuleSetVersion: st.RuleSetVersion,
		Sweeps:         st.Registry.Sweeps,
		StaleScans:     st.Pipeline.Scans,
	}
}

// Start starts the HTTP listener and blocks until shutdown. Shutdown
// triggers are context cancellation, SIGINT or SIGTERM, a listener
// error, or a Shutdown call.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.Server.ListenAddress,
		Handler:        s.buildHandler(),
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	if s.config.Security.TLS.Enabled {
		tlsConfig, err := s.configureTLS()
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting admin server",
			"address", s.config.Server.ListenAddress,
			"tls_enabled", s.config.Security.TLS.Enabled,
			"auth_enabled", s.config.Security.Authentication.Enabled,
		)

		var err error
		if s.config.Security.TLS.Enabled {
			err = s.httpServer.ListenAndServeTLS(
				s.config.Security.TLS.CertFile,
				s.config.Security.TLS.KeyFile,
			)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	s.startMetricsServer()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// startMetricsServer brings up the separate metrics listener when one
// is configured. With port 0 the scrape endpoint rides the main
// listener instead and this is a no-op.
func (s *Server) startMetricsServer() {
	mc := s.config.Telemetry.Metrics
	if !mc.Enabled || mc.Port == 0 || s.collector == nil {
		return
	}

	host, _, err := net.SplitHostPort(s.config.Server.ListenAddress)
	if err != nil {
		host = "127.0.0.1"
	}

	mux := http.NewServeMux()
	mux.Handle(mc.Path, s.collector.Handler())
	s.metricsServer = &http.Server{
		Addr:         net.JoinHostPort(host, strconv.Itoa(mc.Port)),
		Handler:      mux,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	go func() {
		s.logger.Info("starting metrics server", "address", s.metricsServer.Addr, "path", mc.Path)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
}

// Shutdown drains in-flight requests and stops the listeners. It is
// safe to call more than once and from a different goroutine than
// Start; closing the shutdown channel first wakes a blocked Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.shutdownChan) })

	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}
		if s.metricsServer != nil {
			if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during metrics server shutdown", "error", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("admin server stopped")
	})

	return shutdownErr
}

// configureTLS builds the TLS listener configuration from the security
// section.
func (s *Server) configureTLS() (*tls.Config, error) {
	tc := s.config.Security.TLS
	if tc.CertFile == "" {
		return nil, fmt.Errorf("TLS cert file not specified")
	}
	if tc.KeyFile == "" {
		return nil, fmt.Errorf("TLS key file not specified")
	}
	if _, err := os.Stat(tc.CertFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("TLS cert file not found: %s", tc.CertFile)
	}
	if _, err := os.Stat(tc.KeyFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("TLS key file not found: %s", tc.KeyFile)
	}

	minVersion := uint16(tls.VersionTLS13)
	if tc.MinVersion == "1.2" {
		minVersion = tls.VersionTLS12
	}

	return &tls.Config{MinVersion: minVersion}, nil
}

// IsRunning reports whether Start has been called and Shutdown has not
// completed.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the fully assembled HTTP handler without binding a
// listener, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.buildHandler()
}
