// Package server wires the echo HTTP surface: webhook intake, the rating
// API, health probes, and metrics.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/postpulse/postpulse/internal/platform/config"
	"github.com/postpulse/postpulse/internal/platform/correlation"
	"github.com/postpulse/postpulse/internal/rating"
)

// webhookHandler receives signed bot updates.
type webhookHandler interface {
	HandleUpdate(c echo.Context) error
}

// aggregateReader is the engine surface the API needs.
type aggregateReader interface {
	Aggregate(ctx context.Context, post rating.PostID) (rating.Aggregate, error)
}

// postgresPinger is a minimal interface for Postgres health checks.
type postgresPinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	engine    aggregateReader
	webhook   webhookHandler
	pg        postgresPinger
	redis     *goredis.Client
	startTime time.Time
}

// NewServer builds the HTTP server. pg and redis may be nil when the
// corresponding backend is not configured; readiness skips them.
func NewServer(cfg *config.Config, engine aggregateReader, webhook webhookHandler, pg postgresPinger, redis *goredis.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(correlationMiddleware)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:      e,
		config:    cfg,
		engine:    engine,
		webhook:   webhook,
		pg:        pg,
		redis:     redis,
		startTime: time.Now(),
	}

	srv.registerRoutes()

	return srv
}

// correlationMiddleware stamps every request context with a correlation ID
// so log lines from one request hang together.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := correlation.WithID(req.Context(), correlation.NewID())
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
