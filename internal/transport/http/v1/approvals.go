package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// CreateApproval opens an approval request.
// POST /v1/approvals
func (h *Handler) CreateApproval(c echo.Context) error {
	var req domain.CreateApprovalInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ap, err := h.service.CreateApprovalRequest(c.Request().Context(), req)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, ap)
}

// GetApproval gets an approval request.
// GET /v1/approvals/:approval_id
func (h *Handler) GetApproval(c echo.Context) error {
	ap, err := h.service.GetApproval(c.Request().Context(), c.Param("approval_id"))
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, ap)
}

// ListApprovals lists approval requests, newest first.
// GET /v1/approvals?agent_id=&action_log_id=&status=&limit=
func (h *Handler) ListApprovals(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	approvals, err := h.service.ListApprovalRequests(c.Request().Context(), domain.ApprovalFilter{
		AgentID:     c.QueryParam("agent_id"),
		ActionLogID: c.QueryParam("action_log_id"),
		Status:      domain.ApprovalStatus(c.QueryParam("status")),
		Limit:       limit,
	})
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	if approvals == nil {
		approvals = []domain.ApprovalRequest{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"approvals": approvals})
}

// SubmitApprovalDecision approves, rejects or cancels a pending approval request.
// POST /v1/approvals/:approval_id/decide
func (h *Handler) SubmitApprovalDecision(c echo.Context) error {
	var req domain.ApprovalDecisionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	status, ok := domain.ApprovalStatusForDecision(req.Decision)
	if !ok {
		return badRequest(c, "decision must be approve, reject or cancel")
	}
	if req.DecidedBy == "" {
		return badRequest(c, "decided_by is required")
	}
	if req.ApproverType == "" {
		req.ApproverType = domain.ApproverHuman
	}

	ap, err := h.service.ResolveApproval(c.Request().Context(), c.Param("approval_id"), domain.ResolveApprovalInput{
		Status:       status,
		ResponderID:  req.DecidedBy,
		ApproverType: req.ApproverType,
		Note:         req.Reason,
	})
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, ap)
}
