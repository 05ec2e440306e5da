package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// CheckAutonomy classifies an intended action without logging it.
// POST /v1/autonomy/check
func (h *Handler) CheckAutonomy(c echo.Context) error {
	var req domain.AutonomyCheckInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.service.CheckAutonomy(c.Request().Context(), req)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, res)
}

// GetAutonomySettings returns the agent-wide throttles.
// GET /v1/agents/:agent_id/autonomy
func (h *Handler) GetAutonomySettings(c echo.Context) error {
	settings, err := h.service.GetAutonomySettings(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, settings)
}

// UpsertAutonomySettings replaces the agent-wide throttles.
// PUT /v1/agents/:agent_id/autonomy
func (h *Handler) UpsertAutonomySettings(c echo.Context) error {
	var req domain.AutonomySettings
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.AgentID = c.Param("agent_id")

	settings, err := h.service.UpsertAutonomySettings(c.Request().Context(), req)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, settings)
}

// ListActionAutonomy lists the per-action overrides of an agent.
// GET /v1/agents/:agent_id/autonomy/actions
func (h *Handler) ListActionAutonomy(c echo.Context) error {
	rows, err := h.service.ListActionAutonomy(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	if rows == nil {
		rows = []domain.ActionAutonomy{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"actions": rows})
}

// GetActionAutonomy returns the effective policy row, override or default.
// GET /v1/agents/:agent_id/autonomy/actions/:action_type
func (h *Handler) GetActionAutonomy(c echo.Context) error {
	row, err := h.service.GetEffectiveActionAutonomy(c.Request().Context(), c.Param("agent_id"), c.Param("action_type"))
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, row)
}

// UpsertActionAutonomy creates or replaces a per-action override.
// PUT /v1/agents/:agent_id/autonomy/actions/:action_type
func (h *Handler) UpsertActionAutonomy(c echo.Context) error {
	var req domain.ActionAutonomy
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.AgentID = c.Param("agent_id")
	req.ActionType = c.Param("action_type")

	row, err := h.service.UpsertActionAutonomy(c.Request().Context(), req)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, row)
}

// DeleteActionAutonomy removes an override so the default table applies.
// DELETE /v1/agents/:agent_id/autonomy/actions/:action_type
func (h *Handler) DeleteActionAutonomy(c echo.Context) error {
	if err := h.service.DeleteActionAutonomy(c.Request().Context(), c.Param("agent_id"), c.Param("action_type")); err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}
