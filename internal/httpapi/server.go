// Package httpapi provides the HTTP surface of resultd: health, search,
// statistics, the live event feed, and Prometheus metrics.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resultd/internal/analytics"
	"github.com/fyrsmithlabs/resultd/internal/artifact"
	"github.com/fyrsmithlabs/resultd/internal/logging"
	"github.com/fyrsmithlabs/resultd/internal/pipeline"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes the pipeline over HTTP.
type Server struct {
	echo     *echo.Echo
	pipeline *pipeline.Pipeline
	logger   *logging.Logger
	config   Config
}

// NewServer creates the HTTP server around a running pipeline.
func NewServer(p *pipeline.Pipeline, logger *logging.Logger, cfg Config) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9340
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	log := logger.Named("http")

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			ctx := logging.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			log.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		pipeline: p,
		logger:   log,
		config:   cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/search", s.handleSearch)
	v1.GET("/statistics", s.handleStatistics)
	v1.GET("/events", s.handleEvents)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	QueueDepth int    `json:"queue_depth"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:     "ok",
		QueueDepth: s.pipeline.QueueDepth(),
	})
}

// SearchResponse is the response body for GET /api/v1/search.
type SearchResponse struct {
	Category artifact.Category       `json:"category"`
	Count    int                     `json:"count"`
	Results  []artifact.SearchResult `json:"results"`
}

// handleSearch queries one category. Query parameters: category
// (required), text, tag (repeatable), since, until (RFC 3339),
// min_quality, limit.
func (s *Server) handleSearch(c echo.Context) error {
	cat := artifact.Category(c.QueryParam("category"))
	if cat == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "category parameter is required")
	}
	if !cat.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown category %q", cat))
	}

	q := artifact.SearchQuery{
		Text: c.QueryParam("text"),
		Tags: c.QueryParams()["tag"],
	}
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be RFC 3339")
		}
		q.Since = t
	}
	if v := c.QueryParam("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "until must be RFC 3339")
		}
		q.Until = t
	}
	if v := c.QueryParam("min_quality"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &q.MinQuality); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "min_quality must be an integer")
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &q.Limit); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
	}

	results, err := s.pipeline.Search(c.Request().Context(), cat, q)
	if err != nil {
		s.logger.Error(c.Request().Context(), "search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}
	if results == nil {
		results = []artifact.SearchResult{}
	}

	return c.JSON(http.StatusOK, SearchResponse{Category: cat, Count: len(results), Results: results})
}

// StatisticsResponse is the response body for GET /api/v1/statistics.
type StatisticsResponse struct {
	artifact.SystemStatistics
	Analytics analytics.Report `json:"analytics"`
}

func (s *Server) handleStatistics(c echo.Context) error {
	stats, report := s.pipeline.Statistics(c.Request().Context())
	return c.JSON(http.StatusOK, StatisticsResponse{
		SystemStatistics: stats,
		Analytics:        report,
	})
}

// handleEvents streams pipeline notifications as server-sent events
// until the client disconnects.
func (s *Server) handleEvents(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	notes, cancel := s.pipeline.Subscribe(32)
	defer cancel()

	enc := newEventEncoder(w)
	for {
		select {
		case note, ok := <-notes:
			if !ok {
				return nil
			}
			if err := enc.write(note); err != nil {
				return nil
			}
			w.Flush()
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
