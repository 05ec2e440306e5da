package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// LogAction appends an entry to the action log.
// POST /v1/actions
func (h *Handler) LogAction(c echo.Context) error {
	var req domain.LogActionInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	entry, err := h.service.LogAction(c.Request().Context(), req)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, entry)
}

// RequestAction gates, logs and, when required, opens an approval for an action.
// POST /v1/actions/request
func (h *Handler) RequestAction(c echo.Context) error {
	var req domain.ActionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	out, err := h.service.RequestAction(c.Request().Context(), req)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	status := http.StatusOK
	if out.Approval != nil {
		status = http.StatusAccepted
	}
	return c.JSON(status, out)
}

// GetActionLog gets an action log entry.
// GET /v1/actions/:action_id
func (h *Handler) GetActionLog(c echo.Context) error {
	entry, err := h.service.GetActionLog(c.Request().Context(), c.Param("action_id"))
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// ListActionLogs lists action log entries, newest first.
// GET /v1/actions?agent_id=&action_type=&conversation_id=&approval_status=&since=&limit=
func (h *Handler) ListActionLogs(c echo.Context) error {
	filter := domain.ActionLogFilter{
		AgentID:        c.QueryParam("agent_id"),
		ActionType:     c.QueryParam("action_type"),
		ConversationID: c.QueryParam("conversation_id"),
		ApprovalStatus: domain.ApprovalStatus(c.QueryParam("approval_status")),
	}
	if since := c.QueryParam("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return badRequest(c, "since must be an RFC 3339 timestamp")
		}
		filter.Since = t
	}
	limit, err := parseLimit(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	filter.Limit = limit

	entries, err := h.service.ListActionLogs(c.Request().Context(), filter)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	if entries == nil {
		entries = []domain.ActionLogEntry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"actions": entries})
}

func parseLimit(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, &domain.ValidationError{Field: "limit", Message: "must be a non-negative integer"}
	}
	return limit, nil
}
