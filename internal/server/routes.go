package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Rating API
	s.echo.GET("/api/posts/:channel/:message/rating", s.handleGetRating)

	// Webhook intake from the messaging platform (signature-verified)
	s.echo.POST("/webhooks/updates", s.webhook.HandleUpdate)
}
