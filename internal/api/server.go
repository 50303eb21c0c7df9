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
	"github.com/tsanders-rh/modelctl/internal/analytics"
	apimiddleware "github.com/tsanders-rh/modelctl/internal/api/middleware"
	"github.com/tsanders-rh/modelctl/internal/auth"
	"github.com/tsanders-rh/modelctl/internal/deployment"
	"github.com/tsanders-rh/modelctl/internal/events"
	"github.com/tsanders-rh/modelctl/internal/logger"
	"github.com/tsanders-rh/modelctl/internal/monitoring"
	"github.com/tsanders-rh/modelctl/internal/optimizer"
	"github.com/tsanders-rh/modelctl/internal/pricing"
	"github.com/tsanders-rh/modelctl/internal/profile"
	"github.com/tsanders-rh/modelctl/internal/registry"
	"github.com/tsanders-rh/modelctl/internal/store"
	"github.com/tsanders-rh/modelctl/internal/tiering"
	"golang.org/x/time/rate"
)

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	EnableCORS      bool
	EnableAuth      bool
	JWTSecret       string
	TokenTTL        time.Duration
	AllowedOrigins  []string
	MaxBodySize     string
	RequestTimeout  time.Duration
	RateLimit       rate.Limit // per client IP; zero disables limiting
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            8080,
		ShutdownTimeout: 10 * time.Second,
		EnableCORS:      true,
		EnableAuth:      false,
		TokenTTL:        24 * time.Hour,
		AllowedOrigins:  []string{"http://localhost:3000"},
		MaxBodySize:     "1M",
		RequestTimeout:  30 * time.Second,
		RateLimit:       20,
	}
}

// Services bundles the components the handlers call into
type Services struct {
	Store       *store.Store
	Deployments *deployment.Service
	Registry    *registry.Registry
	Optimizer   *optimizer.Optimizer
	Prices      *pricing.Tracker
	Tiering     *tiering.Engine
	Collector   *monitoring.Collector
	Analytics   *analytics.Service
	Profiles    *profile.Registry
	Events      *events.Memory // nil when no in-process buffer is kept
}

// Server represents the HTTP API server
type Server struct {
	echo     *echo.Echo
	config   *ServerConfig
	services *Services
	auth     *auth.Auth
}

// NewServer creates a new API server
func NewServer(config *ServerConfig, services *Services) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Echo's own logger is replaced by the zap request logger
	e.Logger.SetOutput(io.Discard)

	e.Validator = NewValidator()

	s := &Server{
		echo:     e,
		config:   config,
		services: services,
		auth:     auth.NewAuth(config.JWTSecret, config.TokenTTL),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware stack
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimiddleware.Logger(logger.Log))

	if s.config.EnableCORS {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  s.config.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			ExposeHeaders: []string{echo.HeaderContentLength},
		}))
	}

	if s.config.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/health" || c.Path() == "/ready" || c.Path() == "/metrics"
			},
			Store: middleware.NewRateLimiterMemoryStore(s.config.RateLimit),
		}))
	}

	s.echo.Use(middleware.BodyLimit(s.config.MaxBodySize))

	if s.config.RequestTimeout > 0 {
		s.echo.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: s.config.RequestTimeout,
		}))
	}
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ready", s.readyCheck)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var guard []echo.MiddlewareFunc
	if s.config.EnableAuth {
		guard = []echo.MiddlewareFunc{auth.RequireAuth(s.auth), auth.RequireOperator()}
	}
	v1 := s.echo.Group("/api/v1", guard...)

	if s.config.EnableAuth {
		authHandler := NewAuthHandler(s.auth)
		v1.GET("/auth/me", authHandler.GetMe)
		v1.POST("/auth/tokens", authHandler.IssueToken, auth.RequireAdmin())
	}

	models := NewModelHandler(s.services.Registry)
	v1.POST("/models", models.Create)
	v1.GET("/models", models.List)
	v1.GET("/models/:id", models.Get)
	v1.DELETE("/models/:id", models.Delete)
	v1.POST("/models/:id/optimized", models.CreateOptimized)
	v1.GET("/models/:id/optimized", models.ListOptimized)
	v1.GET("/optimized-models/:id", models.GetOptimized)
	v1.DELETE("/optimized-models/:id", models.DeleteOptimized)

	deployments := NewDeploymentHandler(s.services.Deployments, s.services.Collector, s.services.Analytics)
	v1.POST("/deployments", deployments.Create)
	v1.GET("/deployments", deployments.List)
	v1.GET("/deployments/:id", deployments.Get)
	v1.PATCH("/deployments/:id", deployments.Update)
	v1.DELETE("/deployments/:id", deployments.Delete)
	v1.POST("/deployments/:id/hibernate", deployments.Hibernate)
	v1.POST("/deployments/:id/activate", deployments.Activate)
	v1.POST("/deployments/:id/migrate", deployments.Migrate)
	v1.GET("/deployments/:id/metrics", deployments.Metrics)
	v1.GET("/deployments/:id/outcomes", deployments.Outcomes)

	opt := NewOptimizerHandler(s.services.Optimizer)
	v1.POST("/deployments/:id/optimize", opt.Optimize)
	v1.POST("/optimizer/run", opt.Run)

	prices := NewPriceHandler(s.services.Prices)
	v1.GET("/prices", prices.Table)
	v1.GET("/prices/cheapest", prices.Cheapest)
	v1.POST("/prices/refresh", prices.Refresh)

	storage := NewStorageHandler(s.services.Tiering)
	v1.GET("/artifacts/:key/access", storage.GetAccess)
	v1.POST("/artifacts/:key/access", storage.RecordAccess)
	v1.POST("/storage/optimize", storage.Optimize)

	reports := NewAnalyticsHandler(s.services.Analytics)
	v1.GET("/analytics/cost", reports.Cost)
	v1.GET("/analytics/performance", reports.Performance)
	v1.GET("/analytics/forecast", reports.Forecast)
	v1.GET("/analytics/suggestions", reports.Suggestions)

	profiles := NewProfileHandler(s.services.Profiles)
	v1.GET("/profiles", profiles.List)
	v1.GET("/profiles/:name", profiles.Get)

	v1.GET("/events", NewEventHandler(s.services.Events).List)
}

// healthCheck returns basic health status
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// readyCheck checks if server is ready to handle requests
func (s *Server) readyCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := s.services.Store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  "database unavailable",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	logger.Log.Infow("api server listening", "addr", addr)
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
