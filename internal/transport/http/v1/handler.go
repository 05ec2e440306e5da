// Package v1 provides the public HTTP API of agentgate.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	logger  *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: service,
		logger:  logger.With(zap.String("component", "http")),
	}
}

// RegisterRoutes registers external routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/v1")

	// Agent registry
	g.POST("/agents", h.RegisterAgent)
	g.GET("/agents", h.ListAgents)
	g.GET("/agents/:agent_id", h.GetAgent)
	g.PUT("/agents/:agent_id/status", h.UpdateAgentStatus)

	// Autonomy policy
	g.POST("/autonomy/check", h.CheckAutonomy)
	g.GET("/agents/:agent_id/autonomy", h.GetAutonomySettings)
	g.PUT("/agents/:agent_id/autonomy", h.UpsertAutonomySettings)
	g.GET("/agents/:agent_id/autonomy/actions", h.ListActionAutonomy)
	g.GET("/agents/:agent_id/autonomy/actions/:action_type", h.GetActionAutonomy)
	g.PUT("/agents/:agent_id/autonomy/actions/:action_type", h.UpsertActionAutonomy)
	g.DELETE("/agents/:agent_id/autonomy/actions/:action_type", h.DeleteActionAutonomy)

	// Action log
	g.POST("/actions", h.LogAction)
	g.POST("/actions/request", h.RequestAction)
	g.GET("/actions", h.ListActionLogs)
	g.GET("/actions/:action_id", h.GetActionLog)

	// Approvals
	g.POST("/approvals", h.CreateApproval)
	g.GET("/approvals", h.ListApprovals)
	g.GET("/approvals/:approval_id", h.GetApproval)
	g.POST("/approvals/:approval_id/decide", h.SubmitApprovalDecision)

	// Handoffs
	g.POST("/handoffs", h.InitiateHandoff)
	g.GET("/handoffs/:handoff_id", h.GetHandoff)
	g.GET("/handoffs/:handoff_id/context", h.GetHandoffContext)
	g.POST("/handoffs/:handoff_id/accept", h.AcceptHandoff)
	g.POST("/handoffs/:handoff_id/auto-accept", h.AutoAcceptHandoff)
	g.POST("/handoffs/:handoff_id/decline", h.DeclineHandoff)
	g.POST("/handoffs/:handoff_id/complete", h.CompleteHandoff)
	g.POST("/handoffs/:handoff_id/cancel", h.CancelHandoff)
	g.GET("/agents/:agent_id/handoffs/pending", h.ListPendingHandoffs)

	// Conversations
	g.POST("/conversations/:conversation_id/messages", h.AppendMessage)
	g.GET("/conversations/:conversation_id/messages", h.GetMessages)
	g.GET("/conversations/:conversation_id", h.GetConversation)
	g.PUT("/conversations/:conversation_id/owner", h.AssignConversation)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
