// Package internalapi provides HTTP handlers for the notification bridge and
// schedulers. These routes are served on the internal listener only.
package internalapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/internal/service"
)

// InteractionParser turns a chat platform callback into a channel action.
type InteractionParser interface {
	ParseInteraction(r *http.Request) (domain.ChannelActionRequest, error)
}

// Handler handles internal HTTP requests.
type Handler struct {
	service      *service.Service
	interactions InteractionParser
	logger       *zap.Logger
}

// NewHandler creates a new internal API handler. interactions may be nil when
// no chat platform delivers callbacks directly.
func NewHandler(service *service.Service, interactions InteractionParser, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:      service,
		interactions: interactions,
		logger:       logger.With(zap.String("component", "internalapi")),
	}
}

// RegisterRoutes registers internal routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Channel actions relayed by the bridge
	e.POST("/internal/channel/actions", h.HandleChannelAction)
	if h.interactions != nil {
		e.POST("/internal/slack/interactions", h.HandleSlackInteraction)
	}

	// Approvals
	e.POST("/internal/approvals/:approval_id/submit", h.SubmitApprovalDecision)
	e.POST("/internal/approvals/sweep", h.SweepExpiredApprovals)
}
