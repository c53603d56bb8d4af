package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Admin routes: connection status for the "reconnect your account"
	// banner, and the single sanctioned is_active toggle. Token material
	// never leaves this process.
	s.echo.GET("/admin/credentials", s.handleListCredentials)
	s.echo.POST("/admin/credentials/:user_id/:provider/active", s.handleSetActive)
}
