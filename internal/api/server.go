package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/DeGirum/face-recognition/internal/api/middleware"
	"github.com/DeGirum/face-recognition/internal/annotation"
	"github.com/DeGirum/face-recognition/internal/clips"
	"github.com/DeGirum/face-recognition/internal/logger"
	"github.com/DeGirum/face-recognition/internal/media"
	"github.com/DeGirum/face-recognition/internal/notification"
	"github.com/DeGirum/face-recognition/internal/observability"
	"github.com/DeGirum/face-recognition/internal/pipeline"
)

// HealthReporter aggregates pipeline liveness.
type HealthReporter interface {
	Health() pipeline.Report
}

// EventHub accepts notifications and hands them to live viewers.
type EventHub interface {
	Publish(message string) notification.Stats
	Subscribe() (<-chan *notification.Event, context.Context)
	Unsubscribe(ch <-chan *notification.Event)
}

// ClipServer answers clip byte requests.
type ClipServer interface {
	Serve(ctx context.Context, name, rangeHeader string) (*media.Response, error)
}

// ClipLister lists stored clips.
type ClipLister interface {
	List(ctx context.Context) ([]clips.Clip, error)
}

// Server is the facetrack HTTP server.
type Server struct {
	echo   *echo.Echo
	config *Config
	log    logger.Logger

	// Dependencies
	health   HealthReporter
	events   EventHub
	media    ClipServer
	clips    ClipLister
	sessions *annotation.Manager
	metrics  *observability.Metrics

	shutdown  chan struct{}
	closeOnce sync.Once
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(log logger.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// WithHealth sets the pipeline health source.
func WithHealth(h HealthReporter) ServerOption {
	return func(s *Server) { s.health = h }
}

// WithEvents sets the notification hub.
func WithEvents(hub EventHub) ServerOption {
	return func(s *Server) { s.events = hub }
}

// WithMedia sets the clip byte server.
func WithMedia(m ClipServer) ServerOption {
	return func(s *Server) { s.media = m }
}

// WithClips sets the clip catalog.
func WithClips(c ClipLister) ServerOption {
	return func(s *Server) { s.clips = c }
}

// WithSessions sets the annotation session manager.
func WithSessions(m *annotation.Manager) ServerOption {
	return func(s *Server) { s.sessions = m }
}

// WithMetrics sets the observability metrics for the server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// New creates the HTTP server. Routes whose dependency was not provided are not registered.
func New(config *Config, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:   config,
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	s.log = s.log.Module("api")

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}

	s.log.Info("HTTP server initialized", logger.String("address", config.Address()))
	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLogger(s.log))
	if s.metrics != nil {
		s.echo.Use(mw.NewRequestMetrics(s.metrics.HTTP))
	}
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() error {
	if s.health != nil {
		s.echo.GET("/health", s.handleHealth)
	}
	if s.events != nil {
		s.echo.POST("/notify", s.handleNotify, s.notifyRateLimiter()...)
		s.echo.GET("/events", s.handleEvents)
	}
	if s.media != nil {
		s.echo.GET("/video/:filename", s.handleVideo)
	}
	if s.metrics != nil && s.config.MetricsEnabled {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	if err := s.registerPages(); err != nil {
		return err
	}
	s.registerAPIRoutes(s.echo.Group("/api/v1"))
	return nil
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.config.Address())
	}()
	s.log.Info("HTTP server listening", logger.String("address", s.config.Address()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	return s.Shutdown()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("shutting down HTTP server")
	// end event streams first; echo.Shutdown waits for open connections
	s.closeOnce.Do(func() { close(s.shutdown) })
	if err := s.echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}
