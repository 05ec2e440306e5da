package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/internal/service"
)

// AgentStatusRequest changes an agent's status.
type AgentStatusRequest struct {
	Status domain.AgentStatus `json:"status"`
}

// RegisterAgent registers or updates an agent.
// POST /v1/agents
func (h *Handler) RegisterAgent(c echo.Context) error {
	var req service.RegisterAgentInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	agent, err := h.service.RegisterAgent(c.Request().Context(), req)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, agent)
}

// ListAgents lists all registered agents.
// GET /v1/agents
func (h *Handler) ListAgents(c echo.Context) error {
	agents, err := h.service.ListAgents(c.Request().Context())
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	if agents == nil {
		agents = []domain.Agent{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"agents": agents})
}

// GetAgent gets a specific agent by ID.
// GET /v1/agents/:agent_id
func (h *Handler) GetAgent(c echo.Context) error {
	agent, err := h.service.GetAgent(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, agent)
}

// UpdateAgentStatus pauses, retires or reactivates an agent.
// PUT /v1/agents/:agent_id/status
func (h *Handler) UpdateAgentStatus(c echo.Context) error {
	var req AgentStatusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	agent, err := h.service.UpdateAgentStatus(c.Request().Context(), c.Param("agent_id"), req.Status)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, agent)
}
