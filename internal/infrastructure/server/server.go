package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/docworker/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/deps"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/runtime"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/worker"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/ws"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	workers *ws.Handler
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// Option configures a Server
type Option func(*options)

type options struct {
	logger   *logging.Logger
	resolver deps.Resolver
}

// WithLogger replaces the logger built from the logging config
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithResolver replaces the registry resolver shared by all workers
func WithResolver(r deps.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// NewServer creates a new server instance serving app to every connection
func NewServer(cfg *config.Config, app App, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
			OutputPaths: []string{"stdout"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	logger.Info("Initializing document worker host",
		zap.String("port", cfg.Server.Port),
		zap.String("app", app.Payload.Name),
		zap.Int("dependencies", len(app.Dependencies)),
	)

	metrics := monitoring.NewMetrics()

	resolver := o.resolver
	if resolver == nil {
		regCfg := deps.DefaultRegistryConfig()
		regCfg.Dir = cfg.Registry.Dir
		regCfg.RPS = cfg.Registry.RPS
		regCfg.Retries = cfg.Registry.Retries
		regCfg.Timeout = cfg.Registry.Timeout
		regCfg.HostFailures = cfg.Registry.HostFailures
		regCfg.HostCooldown = cfg.Registry.HostCooldown
		regCfg.MaxBytes = cfg.Registry.MaxBytes
		resolver = deps.NewRegistry(regCfg, logger.ForComponent("registry"))
	}

	runtimeCfg := runtime.DefaultConfig()
	if cfg.Worker.MaxCallStack > 0 {
		runtimeCfg.MaxCallStackSize = cfg.Worker.MaxCallStack
	}
	workerCfg := worker.Config{
		Runtime:      runtimeCfg,
		Dependencies: app.Dependencies,
		Payload:      app.Payload,
	}
	factory := func(port protocol.Port, l *zap.Logger) *worker.Worker {
		return worker.New(workerCfg, port, l,
			worker.WithResolver(resolver),
			worker.WithMetrics(metrics),
		)
	}

	wsCfg := ws.DefaultConfig()
	wsCfg.InboxSize = cfg.Worker.InboxSize
	wsCfg.MaxMessageBytes = cfg.Worker.MaxMessageBytes
	workers := ws.NewHandler(wsCfg, factory, metrics, logger.Named("ws"))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Named("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowedOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	var hosts apihttp.HostLister
	if reg, ok := resolver.(*deps.Registry); ok {
		hosts = reg
	}
	handlers := apihttp.NewHandlers(workers, hosts, metrics, logger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/workers", handlers.ListWorkers)
	router.POST("/logs", handlers.StreamLogs)
	router.GET("/admin/log-level", handlers.GetLogLevel)
	router.PUT("/admin/log-level", handlers.SetLogLevel)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", handlers.Metrics)

	// WebSocket
	router.GET("/worker", workers.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		workers: workers,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		http: &http.Server{
			Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's metrics
func (s *Server) Metrics() *monitoring.Metrics {
	return s.metrics
}

// Run starts the HTTP server and blocks until it is shut down
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections, ends every worker and waits for
// them within ctx
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.workers.Shutdown(ctx); err != nil {
		s.logger.Warn("Workers did not stop in time", zap.Int("active", s.workers.Active()))
		errs = append(errs, fmt.Errorf("failed to stop workers: %w", err))
	}
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop http server: %w", err))
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}
