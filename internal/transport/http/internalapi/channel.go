package internalapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	v1 "github.com/xiaot623/gogo/agentgate/internal/transport/http/v1"
)

// HandleChannelAction applies a button press relayed by the bridge.
// POST /internal/channel/actions
func (h *Handler) HandleChannelAction(c echo.Context) error {
	var req domain.ChannelActionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, v1.ErrorResponse{Error: "invalid request body", Code: domain.KindValidation})
	}

	res, err := h.service.HandleChannelAction(c.Request().Context(), req)
	if err != nil {
		return v1.WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, res)
}

// HandleSlackInteraction verifies and applies a Slack block action callback.
// Slack only needs a 200; guard failures are reported back as ephemeral text.
// POST /internal/slack/interactions
func (h *Handler) HandleSlackInteraction(c echo.Context) error {
	req, err := h.interactions.ParseInteraction(c.Request())
	if err != nil {
		h.logger.Warn("rejected slack interaction", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, v1.ErrorResponse{Error: err.Error(), Code: domain.KindOf(err)})
	}

	res, err := h.service.HandleChannelAction(c.Request().Context(), req)
	if err != nil {
		kind := domain.KindOf(err)
		if kind == domain.KindInternal {
			return v1.WriteError(c, h.logger, err)
		}
		h.logger.Info("slack interaction not applied",
			zap.String("message_ref", req.MessageRef), zap.String("action", string(req.Action)), zap.Error(err))
		return c.JSON(http.StatusOK, map[string]string{
			"response_type":    "ephemeral",
			"replace_original": "false",
			"text":             err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"response_type":    "ephemeral",
		"replace_original": "false",
		"text":             interactionSummary(req, res),
	})
}

func interactionSummary(req domain.ChannelActionRequest, res *domain.ChannelActionResult) string {
	switch {
	case res.Handoff != nil:
		return "Handoff " + res.Handoff.ID + " " + string(res.Handoff.Status)
	case res.Approval != nil:
		return "Approval " + res.Approval.ID + " " + string(res.Approval.Status)
	}
	return string(req.Action) + " applied"
}
