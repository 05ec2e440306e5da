package internalapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	v1 "github.com/xiaot623/gogo/agentgate/internal/transport/http/v1"
)

// SubmitApprovalDecision handles approval decision submission from the bridge.
// POST /internal/approvals/:approval_id/submit
func (h *Handler) SubmitApprovalDecision(c echo.Context) error {
	approvalID := c.Param("approval_id")
	var req domain.ApprovalDecisionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, v1.ErrorResponse{Error: "invalid request body", Code: domain.KindValidation})
	}

	status, ok := domain.ApprovalStatusForDecision(req.Decision)
	if !ok {
		return c.JSON(http.StatusBadRequest, v1.ErrorResponse{Error: "decision must be approve, reject or cancel", Code: domain.KindValidation})
	}
	approverType := req.ApproverType
	if approverType == "" {
		approverType = domain.ApproverHuman
	}

	if _, err := h.service.ResolveApproval(c.Request().Context(), approvalID, domain.ResolveApprovalInput{
		Status:       status,
		ResponderID:  req.DecidedBy,
		ApproverType: approverType,
		Note:         req.Reason,
	}); err != nil {
		return v1.WriteError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// SweepExpiredApprovals times out pending approvals past their expiry.
// POST /internal/approvals/sweep
func (h *Handler) SweepExpiredApprovals(c echo.Context) error {
	n, err := h.service.SweepExpiredApprovals(c.Request().Context())
	if err != nil {
		return v1.WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"timed_out": n})
}
