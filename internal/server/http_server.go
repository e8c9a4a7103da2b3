package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/crowdzone/internal/clock"
	"github.com/Tyrowin/crowdzone/internal/geofence"
)

// Dependencies are the collaborators a Server can be given. Zero values
// select defaults: the configured static admin pair, the system clock and
// slog.Default.
type Dependencies struct {
	Auth   geofence.Authenticator
	Clock  clock.Clock
	Logger *slog.Logger
}

// Server ties the hub, transport and HTTP routes together.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	tracker  *geofence.Tracker
	hub      *Hub
	metrics  *Metrics
	upgrader websocket.Upgrader

	startOnce sync.Once
	started   atomic.Bool
}

// New validates cfg, builds the tracker and hub and seeds zones from
// cfg.ZonesFile when set. The hub is not running until StartHub.
func New(cfg *Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	c := cfg.sanitized()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := deps.Auth
	if auth == nil {
		auth = geofence.StaticCredentials{Email: c.AdminEmail, Password: c.AdminPassword}
	}

	var metrics *Metrics
	var recorder geofence.Recorder
	if c.MetricsEnabled {
		metrics = NewMetrics()
		recorder = metrics
	}

	tracker := geofence.NewTracker(geofence.Options{
		Auth:     auth,
		Clock:    deps.Clock,
		Logger:   logger,
		Recorder: recorder,
	})

	if c.ZonesFile != "" {
		zones, err := LoadZonesFile(c.ZonesFile)
		if err != nil {
			return nil, err
		}
		for _, attrs := range zones {
			tracker.SeedZone(attrs)
		}
		logger.Info("seeded zones from file", "path", c.ZonesFile, "count", len(zones))
	}

	origins := newOriginPolicy(c.AllowedOrigins, logger)
	s := &Server{
		cfg:     c,
		logger:  logger,
		tracker: tracker,
		hub:     NewHub(tracker, metrics, logger),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.cfg
}

// StartHub runs the hub in its own goroutine. Later calls are no-ops.
func (s *Server) StartHub() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.hub.Run()
		s.logger.Info("hub started and ready to manage WebSocket connections")
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.StartHub()
	httpServer := CreateServer(s.cfg.Addr(), s.SetupRoutes())

	errCh := make(chan error, 1)
	go func() {
		errCh <- StartServer(httpServer, s.logger)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", httpServer.Addr, err)
	case <-ctx.Done():
	}

	httpErr := ShutdownServer(httpServer, s.cfg.ShutdownTimeout, s.logger)
	hubErr := s.Shutdown()
	return errors.Join(httpErr, hubErr)
}

// Shutdown stops the hub, closing every client connection.
func (s *Server) Shutdown() error {
	if !s.started.Load() {
		return nil
	}
	return s.hub.Shutdown(s.cfg.ShutdownTimeout)
}

// CreateServer creates an HTTP server with production timeouts.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer blocks serving HTTP until the server is closed.
func StartServer(server *http.Server, logger *slog.Logger) error {
	logger.Info("server listening", "addr", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server, waiting for active
// requests until the timeout elapses. Hijacked WebSocket connections are
// closed by the hub, not here.
func ShutdownServer(server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	logger.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "err", err)
		return err
	}

	logger.Info("HTTP server shutdown completed")
	return nil
}
