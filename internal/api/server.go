package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apimiddleware "github.com/tsanders-rh/kubecostd/internal/api/middleware"
	"github.com/tsanders-rh/kubecostd/internal/auth"
	"github.com/tsanders-rh/kubecostd/internal/logging"
	"github.com/tsanders-rh/kubecostd/internal/query"
)

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"gte=1,lte=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	EnableCORS      bool          `mapstructure:"enable_cors"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxBodySize     string        `mapstructure:"max_body_size" validate:"required"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            8080,
		ShutdownTimeout: 10 * time.Second,
		RequestTimeout:  30 * time.Second,
		EnableCORS:      false,
		AllowedOrigins:  []string{"*"},
		MaxBodySize:     "1M",
	}
}

// ReadinessCheck reports whether a dependency of the server is usable
type ReadinessCheck func(ctx context.Context) error

// ServerOption configures a Server
type ServerOption func(*Server)

// WithAuth requires a bearer token with read scope on every /api/v1 route
func WithAuth(a *auth.Auth) ServerOption {
	return func(s *Server) { s.auth = a }
}

// WithReadinessCheck adds a named check to /ready
func WithReadinessCheck(name string, check ReadinessCheck) ServerOption {
	return func(s *Server) {
		s.checks = append(s.checks, namedCheck{name: name, check: check})
	}
}

type namedCheck struct {
	name  string
	check ReadinessCheck
}

// Server represents the HTTP API server
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	query  *query.Service
	auth   *auth.Auth
	checks []namedCheck
	logger *zap.Logger
}

// NewServer creates a new API server
func NewServer(config *ServerConfig, svc *query.Service, logger *zap.Logger, opts ...ServerOption) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Disable Echo's default logger, requests are logged through zap
	e.Logger.SetOutput(io.Discard)

	e.Validator = NewValidator()

	s := &Server{
		echo:   e,
		config: config,
		query:  svc,
		logger: logging.OrNop(logger).Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware stack
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimiddleware.Logger(s.logger))

	if s.config.EnableCORS {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  s.config.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			ExposeHeaders: []string{echo.HeaderContentLength},
		}))
	}

	s.echo.Use(middleware.BodyLimit(s.config.MaxBodySize))
	s.echo.Use(middleware.ContextTimeout(s.config.RequestTimeout))
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ready", s.readyCheck)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	if s.auth != nil {
		v1.Use(auth.RequireAuth(s.auth), auth.RequireScope(auth.ScopeRead))
	}

	metricsHandler := NewMetricsHandler(s.query)
	v1.GET("/metrics/:kind", metricsHandler.Rows)

	costHandler := NewCostHandler(s.query)
	v1.GET("/costs/nodes/capacity", costHandler.NodeCapacity)
	v1.GET("/costs/:kind", costHandler.List)
	v1.GET("/costs/:kind/summary", costHandler.Summary)
	v1.GET("/costs/:kind/trend", costHandler.Trend)
	v1.GET("/efficiency", costHandler.Efficiency)

	priceHandler := NewPriceHandler(s.query)
	v1.GET("/prices", priceHandler.Current)
}

// healthCheck returns basic health status
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// readyCheck runs every readiness check and fails on the first error
func (s *Server) readyCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	for _, nc := range s.checks {
		if err := nc.check(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.String("check", nc.name), zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  fmt.Sprintf("%s unavailable", nc.name),
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting API server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance for testing
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
