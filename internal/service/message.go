package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// AppendMessage records a message in a conversation log.
func (s *Service) AppendMessage(ctx context.Context, conversationID string, msg domain.ConversationMessage) (*domain.ConversationMessage, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, &domain.ValidationError{Field: "conversation_id", Message: "is required"}
	}
	switch msg.Role {
	case domain.RoleUser, domain.RoleAssistant, domain.RoleSystem:
	default:
		return nil, &domain.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", msg.Role)}
	}
	msg.ConversationID = conversationID
	if msg.MessageID == "" {
		msg.MessageID = newID("msg_")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if err := s.store.AppendConversationMessage(ctx, &msg); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return &msg, nil
}

// GetMessages returns up to limit messages of a conversation in chronological order.
func (s *Service) GetMessages(ctx context.Context, conversationID string, limit int) ([]domain.ConversationMessage, error) {
	messages, err := s.store.GetConversationMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}

// GetConversation returns the ownership record of a conversation.
func (s *Service) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	c, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if c == nil {
		return nil, &domain.NotFoundError{Entity: "conversation", ID: conversationID}
	}
	return c, nil
}

// AssignConversation sets the owning agent of a conversation.
func (s *Service) AssignConversation(ctx context.Context, conversationID, agentID string) (*domain.Conversation, error) {
	if _, err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	if err := s.store.SetConversationOwner(ctx, conversationID, agentID, s.now()); err != nil {
		return nil, fmt.Errorf("failed to assign conversation: %w", err)
	}
	return s.GetConversation(ctx, conversationID)
}
