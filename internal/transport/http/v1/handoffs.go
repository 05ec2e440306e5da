package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// InitiateHandoffRequest starts a handoff. Notify posts it to the chat channel.
type InitiateHandoffRequest struct {
	domain.InitiateHandoffInput
	Notify bool `json:"notify"`
}

// InitiateHandoff creates a pending handoff.
// POST /v1/handoffs
func (h *Handler) InitiateHandoff(c echo.Context) error {
	var req InitiateHandoffRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()

	if req.Notify {
		res, err := h.service.InitiateAndNotifyHandoff(ctx, req.InitiateHandoffInput)
		if err != nil {
			return WriteError(c, h.logger, err)
		}
		return c.JSON(http.StatusCreated, res)
	}

	handoff, err := h.service.InitiateHandoff(ctx, req.InitiateHandoffInput)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, domain.NotifyResult{Handoff: handoff})
}

// GetHandoff gets a handoff.
// GET /v1/handoffs/:handoff_id
func (h *Handler) GetHandoff(c echo.Context) error {
	handoff, err := h.service.GetHandoff(c.Request().Context(), c.Param("handoff_id"))
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, handoff)
}

// GetHandoffContext returns the briefing the receiving agent gets.
// GET /v1/handoffs/:handoff_id/context
func (h *Handler) GetHandoffContext(c echo.Context) error {
	hc, err := h.service.BuildHandoffContext(c.Request().Context(), c.Param("handoff_id"))
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, hc)
}

// AcceptHandoff accepts a pending handoff and returns its context.
// POST /v1/handoffs/:handoff_id/accept
func (h *Handler) AcceptHandoff(c echo.Context) error {
	var req domain.HandoffActionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.AgentID == "" {
		return badRequest(c, "agent_id is required")
	}

	hc, err := h.service.AcceptHandoff(c.Request().Context(), c.Param("handoff_id"), req.AgentID)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, hc)
}

// AutoAcceptHandoff accepts a handoff when the recipient is eligible. It never fails.
// POST /v1/handoffs/:handoff_id/auto-accept
func (h *Handler) AutoAcceptHandoff(c echo.Context) error {
	var req domain.HandoffActionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res := h.service.AutoAcceptIfEligible(c.Request().Context(), c.Param("handoff_id"), req.AgentID)
	return c.JSON(http.StatusOK, res)
}

// DeclineHandoff declines a pending handoff.
// POST /v1/handoffs/:handoff_id/decline
func (h *Handler) DeclineHandoff(c echo.Context) error {
	var req domain.HandoffActionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.AgentID == "" {
		return badRequest(c, "agent_id is required")
	}

	handoff, err := h.service.DeclineHandoff(c.Request().Context(), c.Param("handoff_id"), req.AgentID, req.Reason)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, handoff)
}

// CompleteHandoff completes an accepted handoff and transfers the conversation.
// POST /v1/handoffs/:handoff_id/complete
func (h *Handler) CompleteHandoff(c echo.Context) error {
	var req domain.HandoffActionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.AgentID == "" {
		return badRequest(c, "agent_id is required")
	}

	handoff, err := h.service.CompleteHandoff(c.Request().Context(), c.Param("handoff_id"), req.AgentID)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, handoff)
}

// CancelHandoff withdraws a pending handoff. Only the sender may cancel.
// POST /v1/handoffs/:handoff_id/cancel
func (h *Handler) CancelHandoff(c echo.Context) error {
	var req domain.HandoffActionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.AgentID == "" {
		return badRequest(c, "agent_id is required")
	}

	handoff, err := h.service.CancelHandoff(c.Request().Context(), c.Param("handoff_id"), req.AgentID)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, handoff)
}

// ListPendingHandoffs lists handoffs waiting for an agent, oldest first.
// GET /v1/agents/:agent_id/handoffs/pending
func (h *Handler) ListPendingHandoffs(c echo.Context) error {
	handoffs, err := h.service.ListPendingHandoffs(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	if handoffs == nil {
		handoffs = []domain.AgentHandoffWithAgents{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"handoffs": handoffs})
}
