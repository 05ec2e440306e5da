package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// ConversationOwnerRequest assigns a conversation to an agent.
type ConversationOwnerRequest struct {
	AgentID string `json:"agent_id"`
}

// AppendMessage records a message in a conversation log.
// POST /v1/conversations/:conversation_id/messages
func (h *Handler) AppendMessage(c echo.Context) error {
	var req domain.ConversationMessage
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	msg, err := h.service.AppendMessage(c.Request().Context(), c.Param("conversation_id"), req)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// GetMessages returns the latest messages of a conversation in chronological order.
// GET /v1/conversations/:conversation_id/messages?limit=
func (h *Handler) GetMessages(c echo.Context) error {
	limit, err := parseLimit(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	messages, err := h.service.GetMessages(c.Request().Context(), c.Param("conversation_id"), limit)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	if messages == nil {
		messages = []domain.ConversationMessage{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": messages})
}

// GetConversation returns the owning agent of a conversation.
// GET /v1/conversations/:conversation_id
func (h *Handler) GetConversation(c echo.Context) error {
	conv, err := h.service.GetConversation(c.Request().Context(), c.Param("conversation_id"))
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// AssignConversation sets the owning agent of a conversation.
// PUT /v1/conversations/:conversation_id/owner
func (h *Handler) AssignConversation(c echo.Context) error {
	var req ConversationOwnerRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.AgentID == "" {
		return badRequest(c, "agent_id is required")
	}

	conv, err := h.service.AssignConversation(c.Request().Context(), c.Param("conversation_id"), req.AgentID)
	if err != nil {
		return WriteError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, conv)
}
