// Package http provides the HTTP API for patternd.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/patternd/internal/analytics"
)

// Server provides HTTP endpoints for patternd.
type Server struct {
	echo        *echo.Echo
	svc         *analytics.Service
	logger      *zap.Logger
	config      *Config
	maintenance *rate.Limiter
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// MaintenanceRPS rate-limits the partition and link-rebuild routes,
	// which rebuild whole-domain state on every call.
	MaintenanceRPS float64

	// AnomalyWindowSeconds and AnomalyZThreshold are applied to anomaly
	// requests that do not pass their own query parameters.
	AnomalyWindowSeconds int
	AnomalyZThreshold    float64
}

// NewServer creates a new HTTP server.
func NewServer(svc *analytics.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("analytics service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9092,
		}
	}
	if cfg.MaintenanceRPS <= 0 {
		cfg.MaintenanceRPS = 1
	}
	if cfg.AnomalyWindowSeconds <= 0 {
		cfg.AnomalyWindowSeconds = analytics.DefaultAnomalyWindowSeconds
	}
	if cfg.AnomalyZThreshold <= 0 {
		cfg.AnomalyZThreshold = analytics.DefaultAnomalyZThreshold
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})
	e.Use(NewHTTPMetrics(logger).Middleware())

	burst := int(cfg.MaintenanceRPS)
	if burst < 1 {
		burst = 1
	}

	s := &Server{
		echo:        e,
		svc:         svc,
		logger:      logger,
		config:      cfg,
		maintenance: rate.NewLimiter(rate.Limit(cfg.MaintenanceRPS), burst),
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check and Prometheus scrape endpoint
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.echo.Group("/api/v1")

	domains := v1.Group("/domains/:domain")
	domains.GET("/edges", s.handleEdges)
	domains.GET("/mincut", s.handleMincut)
	domains.POST("/partition", s.handlePartition, s.maintenanceLimit)
	domains.GET("/novelty/:id", s.handleNovelty)
	domains.GET("/pagerank", s.handlePageRank)
	domains.POST("/links/rebuild", s.handleRebuildLinks, s.maintenanceLimit)
	domains.GET("/network", s.handleNetworkState)
	domains.POST("/network/reset", s.handleNetworkReset)
	domains.GET("/anomalies", s.handleAnomalies)
	domains.POST("/search", s.handleSearch)

	v1.POST("/patterns", s.handleCreatePattern)
	v1.GET("/patterns/:id", s.handleGetPattern)
	v1.POST("/patterns/:id/spike", s.handleSpike)
	v1.POST("/trajectories", s.handleCreateTrajectory)
}

// maintenanceLimit throttles routes that rebuild whole-domain state. One
// limiter covers all maintenance routes together.
func (s *Server) maintenanceLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.maintenance.Allow() {
			return echo.NewHTTPError(http.StatusTooManyRequests, "maintenance rate limit exceeded")
		}
		return next(c)
	}
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
