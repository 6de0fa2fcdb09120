package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/termhub/internal/api/http"
	"github.com/GriffinCanCode/termhub/internal/api/middleware"
	"github.com/GriffinCanCode/termhub/internal/api/ws"
	"github.com/GriffinCanCode/termhub/internal/events"
	"github.com/GriffinCanCode/termhub/internal/infrastructure/config"
	"github.com/GriffinCanCode/termhub/internal/infrastructure/logging"
	"github.com/GriffinCanCode/termhub/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termhub/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/termhub/internal/profiles"
	"github.com/GriffinCanCode/termhub/internal/terminal"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	hub      *events.Hub
	registry *terminal.Registry
	tracer   *tracing.Tracer
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	config   *config.Config
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, version string) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Initialize logger
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}
	if cfg.Logging.Level != "" {
		if err := logger.SetLevel(cfg.Logging.Level); err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
	}

	logger.Info("Initializing termhub server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("version", version),
	)

	// Private registry: NewServer may run more than once per process
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(promRegistry)

	tracer := tracing.New("termhubd", logger.Component("tracing"))

	store := profiles.Empty()
	if cfg.Profiles.Path != "" {
		loaded, err := profiles.Load(cfg.Profiles.Path)
		if err != nil {
			tracer.Close()
			return nil, fmt.Errorf("failed to load host profiles: %w", err)
		}
		store = loaded
		logger.Info("Host profiles loaded",
			zap.String("path", cfg.Profiles.Path),
			zap.Int("count", store.Len()),
		)
	}

	hub := events.NewHub(events.Config{
		RetainBytes:      cfg.Terminal.RetainBytes,
		SubscriberBuffer: cfg.Terminal.SubscriberBuffer,
	}, logger.Component("events"))

	registry := terminal.NewRegistry(hub, logger.Component("terminal"), terminal.Options{
		DefaultCols:     cfg.Terminal.DefaultCols,
		DefaultRows:     cfg.Terminal.DefaultRows,
		ReadBufferSize:  cfg.Terminal.ReadBufferSize,
		InputQueueBytes: cfg.Terminal.InputQueueBytes,
	}).WithMetrics(metrics)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(registry, store, metrics, logger.Component("api"), version)
	wsHandler := ws.NewHandler(hub, registry, metrics, logger.Component("ws"))

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Metrics endpoints
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))
	router.GET("/metrics/json", handlers.GetMetricsSummary)

	// Session endpoints
	sessions := router.Group("/sessions")
	sessions.POST("/local", handlers.OpenLocal)
	sessions.POST("/ssh", handlers.OpenSSH)
	sessions.GET("", handlers.ListSessions)
	sessions.GET("/:id", handlers.GetSession)
	sessions.POST("/:id/write", handlers.WriteSession)
	sessions.POST("/:id/resize", handlers.ResizeSession)
	sessions.POST("/:id/exited", handlers.MarkExited)
	sessions.DELETE("/:id", handlers.CloseSession)

	// WebSocket
	sessions.GET("/:id/stream", wsHandler.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		http: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		hub:      hub,
		registry: registry,
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
	}, nil
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the session registry the server drives
func (s *Server) Registry() *terminal.Registry {
	return s.registry
}

// Run listens on the configured address and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Server.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. Every session is closed before Serve returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Sessions first: closing their topics ends every attached stream
	if err := s.registry.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to close sessions", zap.Error(err))
	}
	if err := s.http.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
		if serveErr == nil {
			serveErr = fmt.Errorf("http shutdown: %w", err)
		}
	}

	s.Close()
	return serveErr
}

// Close releases the bus, tracer and logger. Serve calls it on the way out.
func (s *Server) Close() {
	s.hub.Shutdown()
	s.tracer.Close()
	// Sync on stderr can fail; ignored
	_ = s.logger.Sync()
}
