// Package http provides the HTTP API for failbankd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/failbank/internal/engine"
	"github.com/fyrsmithlabs/failbank/internal/provider"
)

// Resolver is the engine surface the HTTP layer depends on.
type Resolver interface {
	Resolve(ctx context.Context, content string) (*engine.Result, error)
	Search(ctx context.Context, query string, limit int) ([]engine.SearchHit, error)
	Stats(ctx context.Context) (*engine.Stats, error)
	Healthy(ctx context.Context) *engine.Health
}

// Server provides HTTP endpoints for failbankd.
type Server struct {
	echo   *echo.Echo
	engine Resolver
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(eng Resolver, logger *zap.Logger, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 8000,
		}
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

	s := &Server{
		echo:   e,
		engine: eng,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/resolve", s.handleResolve)
	v1.POST("/search", s.handleSearch)
	v1.GET("/stats", s.handleStats)
}

// ResolveRequest is the request body for POST /api/v1/resolve.
type ResolveRequest struct {
	Content string `json:"content"`
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Results []engine.SearchHit `json:"results"`
	Count   int                `json:"count"`
	Query   string             `json:"query"`
}

// handleResolve runs one failure log through the resolution protocol.
func (s *Server) handleResolve(c echo.Context) error {
	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid resolve request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.engine.Resolve(c.Request().Context(), req.Content)
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusOK, result)
}

// handleSearch runs a semantic query over the knowledge base.
func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	hits, err := s.engine.Search(c.Request().Context(), req.Query, req.Limit)
	if err != nil {
		return s.mapError(err)
	}

	if hits == nil {
		hits = []engine.SearchHit{}
	}

	return c.JSON(http.StatusOK, SearchResponse{
		Results: hits,
		Count:   len(hits),
		Query:   req.Query,
	})
}

// handleStats returns knowledge-base statistics.
func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.engine.Stats(c.Request().Context())
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// handleHealth reports daemon liveness.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Healthy(c.Request().Context()))
}

// mapError translates engine errors to HTTP status codes. Internal detail
// stays in the log; the client gets the sanitized message.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, provider.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "language model provider unavailable")
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
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
