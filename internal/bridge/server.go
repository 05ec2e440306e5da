package bridge

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/config"
)

// Server is the bridge's HTTP front: the WebSocket endpoint plus health.
type Server struct {
	echo *echo.Echo
	hub  *Hub
}

// NewServer creates the bridge HTTP server.
func NewServer(cfg *config.BridgeConfig, h *Hub, relay ActionRelay, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, hub: h}
	ws := NewWSServer(cfg, h, relay, logger)

	e.GET("/health", s.handleHealth)
	e.GET("/ws", ws.HandleWebSocket)

	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"connections": s.hub.ConnectionCount(),
		"channels":    s.hub.ChannelCount(),
	})
}
