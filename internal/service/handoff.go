package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// InitiateHandoff creates a pending handoff of a conversation from one active
// agent to another. At most one handoff per conversation may be pending.
func (s *Service) InitiateHandoff(ctx context.Context, in domain.InitiateHandoffInput) (*domain.AgentHandoff, error) {
	h, _, _, err := s.initiateHandoff(ctx, in)
	return h, err
}

func (s *Service) initiateHandoff(ctx context.Context, in domain.InitiateHandoffInput) (*domain.AgentHandoff, *domain.Agent, *domain.Agent, error) {
	if strings.TrimSpace(in.ConversationID) == "" {
		return nil, nil, nil, &domain.ValidationError{Field: "conversation_id", Message: "is required"}
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, nil, nil, &domain.ValidationError{Field: "reason", Message: "is required"}
	}

	from, err := s.requireActiveAgent(ctx, in.FromAgentID)
	if err != nil {
		return nil, nil, nil, err
	}
	to, err := s.requireActiveAgent(ctx, in.ToAgentID)
	if err != nil {
		return nil, nil, nil, err
	}
	if in.FromAgentID == in.ToAgentID {
		return nil, nil, nil, &domain.SelfHandoffError{AgentID: in.FromAgentID}
	}

	existing, err := s.store.GetPendingHandoffByConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get pending handoff: %w", err)
	}
	if existing != nil {
		return nil, nil, nil, &domain.DuplicateHandoffError{ConversationID: in.ConversationID, ExistingHandoffID: existing.ID}
	}

	messages, err := s.store.GetConversationMessages(ctx, in.ConversationID, s.config.HandoffHistoryLimit)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get conversation messages: %w", err)
	}
	summary := in.ContextSummary
	if summary == "" && len(messages) > 0 {
		summary = SummarizeConversation(messages)
	}

	h := &domain.AgentHandoff{
		ID:             newID("ho_"),
		ConversationID: in.ConversationID,
		FromAgentID:    in.FromAgentID,
		ToAgentID:      in.ToAgentID,
		Reason:         in.Reason,
		KeyPoints:      ExtractKeyPoints(messages, s.config.HandoffKeyPointLimit),
		ContextSummary: summary,
		Status:         domain.HandoffStatusPending,
		CreatedAt:      s.now(),
	}
	if err := s.store.CreateHandoff(ctx, h); err != nil {
		if domain.KindOf(err) == domain.KindDuplicateHandoff {
			return nil, nil, nil, err
		}
		return nil, nil, nil, fmt.Errorf("failed to create handoff: %w", err)
	}

	s.metrics.RecordHandoffTransition(string(domain.HandoffStatusPending))
	s.audit(ctx, h.FromAgentID, domain.ActionTypeHandoffInitiate,
		fmt.Sprintf("handoff to %s: %s", h.ToAgentID, h.Reason), h.ConversationID,
		map[string]any{"handoff_id": h.ID, "to_agent_id": h.ToAgentID})
	return h, from, to, nil
}

// InitiateAndNotifyHandoff initiates a handoff and posts it to the chat channel.
// A failed notification is reported in the result; the handoff stands.
func (s *Service) InitiateAndNotifyHandoff(ctx context.Context, in domain.InitiateHandoffInput) (*domain.NotifyResult, error) {
	h, from, to, err := s.initiateHandoff(ctx, in)
	if err != nil {
		return nil, err
	}

	res := &domain.NotifyResult{Handoff: h}
	ref, err := s.notifier.PostAgentMessage(ctx, domain.AgentMessage{
		FromAgentID: h.FromAgentID,
		ToAgentID:   h.ToAgentID,
		ChannelRef:  s.channelFor(to),
		MessageType: domain.MessageTypeHandoff,
		Content:     handoffMessage(h, from, to),
		Context: map[string]any{
			"handoff_id":      h.ID,
			"conversation_id": h.ConversationID,
			"key_points":      h.KeyPoints,
		},
	})
	if err != nil {
		s.metrics.RecordNotificationFailure(string(domain.MessageTypeHandoff))
		s.logger.Warn("handoff notification failed", zap.String("handoff_id", h.ID), zap.Error(err))
		res.NotificationError = err.Error()
		return res, nil
	}

	res.NotificationSent = true
	if err := s.store.SetHandoffChannelRef(ctx, h.ID, ref); err != nil {
		s.logger.Warn("failed to record handoff message ref", zap.String("handoff_id", h.ID), zap.Error(err))
	} else {
		h.ChannelMessageRef = ref
	}
	return res, nil
}

func handoffMessage(h *domain.AgentHandoff, from, to *domain.Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Handoff request* from %s to %s\n", from.Name, to.Name)
	fmt.Fprintf(&b, "Reason: %s\n", h.Reason)
	if len(h.KeyPoints) > 0 {
		b.WriteString("Key points:\n")
		for _, p := range h.KeyPoints {
			fmt.Fprintf(&b, "• %s\n", p)
		}
	}
	if h.ContextSummary != "" {
		fmt.Fprintf(&b, "Context: %s\n", h.ContextSummary)
	}
	return strings.TrimRight(b.String(), "\n")
}

// AcceptHandoff lets the recipient take a pending handoff and returns the
// briefing context. When the briefing cannot be assembled after the accept has
// been committed, the context carries only what the handoff itself records.
func (s *Service) AcceptHandoff(ctx context.Context, handoffID, agentID string) (*domain.HandoffContext, error) {
	_, hc, err := s.acceptHandoff(ctx, handoffID, agentID)
	return hc, err
}

func (s *Service) acceptHandoff(ctx context.Context, handoffID, agentID string) (*domain.AgentHandoff, *domain.HandoffContext, error) {
	h, err := s.transition(ctx, handoffID, agentID, domain.HandoffStatusAccepted, func() (*domain.AgentHandoff, error) {
		return s.store.AcceptHandoff(ctx, handoffID, agentID, s.now())
	})
	if err != nil {
		return nil, nil, err
	}
	s.audit(ctx, agentID, domain.ActionTypeHandoffAccept,
		fmt.Sprintf("accepted handoff from %s", h.FromAgentID), h.ConversationID,
		map[string]any{"handoff_id": h.ID})

	hc, err := s.buildHandoffContext(ctx, h)
	if err != nil {
		// The accept is committed; hand back what the handoff row itself carries.
		s.logger.Warn("handoff accepted with partial context",
			zap.String("handoff_id", h.ID), zap.Error(err))
		hc = partialHandoffContext(h)
	}
	return h, hc, nil
}

// DeclineHandoff lets the recipient refuse a pending handoff.
func (s *Service) DeclineHandoff(ctx context.Context, handoffID, agentID, reason string) (*domain.AgentHandoff, error) {
	h, err := s.transition(ctx, handoffID, agentID, domain.HandoffStatusDeclined, func() (*domain.AgentHandoff, error) {
		return s.store.DeclineHandoff(ctx, handoffID, agentID, reason, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, agentID, domain.ActionTypeHandoffDecline,
		fmt.Sprintf("declined handoff from %s", h.FromAgentID), h.ConversationID,
		map[string]any{"handoff_id": h.ID, "reason": reason})
	return h, nil
}

// CompleteHandoff closes an accepted handoff; the conversation moves to the recipient.
func (s *Service) CompleteHandoff(ctx context.Context, handoffID, agentID string) (*domain.AgentHandoff, error) {
	h, err := s.transition(ctx, handoffID, agentID, domain.HandoffStatusCompleted, func() (*domain.AgentHandoff, error) {
		return s.store.CompleteHandoff(ctx, handoffID, agentID, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, agentID, domain.ActionTypeHandoffComplete,
		fmt.Sprintf("completed handoff from %s", h.FromAgentID), h.ConversationID,
		map[string]any{"handoff_id": h.ID})
	return h, nil
}

// CancelHandoff lets the sender withdraw a pending handoff. Cancelling an
// already cancelled handoff returns it unchanged.
func (s *Service) CancelHandoff(ctx context.Context, handoffID, agentID string) (*domain.AgentHandoff, error) {
	current, err := s.GetHandoff(ctx, handoffID)
	if err != nil {
		return nil, err
	}
	if current.FromAgentID == agentID && current.Status == domain.HandoffStatusCancelled {
		return current, nil
	}

	h, err := s.transition(ctx, handoffID, agentID, domain.HandoffStatusCancelled, func() (*domain.AgentHandoff, error) {
		return s.store.CancelHandoff(ctx, handoffID, agentID, s.now())
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindAlreadyResolved {
			// Lost to a concurrent cancel.
			if latest, gerr := s.GetHandoff(ctx, handoffID); gerr == nil && latest.Status == domain.HandoffStatusCancelled {
				return latest, nil
			}
		}
		return nil, err
	}
	s.audit(ctx, agentID, domain.ActionTypeHandoffCancel,
		fmt.Sprintf("cancelled handoff to %s", h.ToAgentID), h.ConversationID,
		map[string]any{"handoff_id": h.ID})
	return h, nil
}

// transition runs the guard for handoffID then the conditional write. When the
// write matches no row, the handoff is re-read to report which guard failed.
func (s *Service) transition(ctx context.Context, handoffID, agentID string, to domain.HandoffStatus, write func() (*domain.AgentHandoff, error)) (*domain.AgentHandoff, error) {
	h, err := s.GetHandoff(ctx, handoffID)
	if err != nil {
		return nil, err
	}
	if err := guardHandoff(h, agentID, to); err != nil {
		return nil, err
	}

	updated, err := write()
	if err != nil {
		return nil, fmt.Errorf("failed to update handoff: %w", err)
	}
	if updated == nil {
		latest, err := s.GetHandoff(ctx, handoffID)
		if err != nil {
			return nil, err
		}
		if err := guardHandoff(latest, agentID, to); err != nil {
			return nil, err
		}
		return nil, &domain.StaleStateError{Entity: "handoff", ID: handoffID, Current: string(latest.Status), Attempted: string(to)}
	}

	s.metrics.RecordHandoffTransition(string(to))
	s.logger.Info("handoff transitioned",
		zap.String("handoff_id", handoffID), zap.String("agent_id", agentID), zap.String("status", string(to)))
	return updated, nil
}

// guardHandoff checks the caller before the state: the wrong party is always
// NotRecipient, whatever state the handoff is in.
func guardHandoff(h *domain.AgentHandoff, agentID string, to domain.HandoffStatus) error {
	expected := h.ToAgentID
	if to == domain.HandoffStatusCancelled {
		expected = h.FromAgentID
	}
	if agentID != expected {
		return &domain.NotRecipientError{HandoffID: h.ID, AgentID: agentID, Expected: expected}
	}
	return domain.CheckTransition(h, to)
}

// AutoAcceptIfEligible accepts a handoff on the recipient's behalf when every
// guard passes and the recipient is active. It never fails; the reason
// explains a refusal.
func (s *Service) AutoAcceptIfEligible(ctx context.Context, handoffID, agentID string) domain.AutoAcceptResult {
	h, err := s.GetHandoff(ctx, handoffID)
	if err != nil {
		return domain.AutoAcceptResult{Reason: err.Error()}
	}
	if err := guardHandoff(h, agentID, domain.HandoffStatusAccepted); err != nil {
		return domain.AutoAcceptResult{Reason: err.Error()}
	}
	if _, err := s.requireActiveAgent(ctx, agentID); err != nil {
		return domain.AutoAcceptResult{Reason: err.Error()}
	}

	_, hc, err := s.acceptHandoff(ctx, handoffID, agentID)
	if err != nil {
		s.logger.Info("auto-accept declined", zap.String("handoff_id", handoffID), zap.Error(err))
		return domain.AutoAcceptResult{Reason: err.Error()}
	}
	return domain.AutoAcceptResult{Accepted: true, Reason: "auto-accepted", Context: hc}
}

// BuildHandoffContext assembles the briefing for a handoff from its record
// and the most recent conversation messages.
func (s *Service) BuildHandoffContext(ctx context.Context, handoffID string) (*domain.HandoffContext, error) {
	h, err := s.GetHandoff(ctx, handoffID)
	if err != nil {
		return nil, err
	}
	return s.buildHandoffContext(ctx, h)
}

func partialHandoffContext(h *domain.AgentHandoff) *domain.HandoffContext {
	return &domain.HandoffContext{
		HandoffID:           h.ID,
		ConversationID:      h.ConversationID,
		FromAgentID:         h.FromAgentID,
		FromAgentName:       h.FromAgentID,
		Reason:              h.Reason,
		KeyPoints:           h.KeyPoints,
		ContextSummary:      h.ContextSummary,
		ConversationHistory: []domain.ConversationMessage{},
	}
}

func (s *Service) buildHandoffContext(ctx context.Context, h *domain.AgentHandoff) (*domain.HandoffContext, error) {
	fromName := h.FromAgentID
	from, err := s.store.GetAgent(ctx, h.FromAgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if from != nil {
		fromName = from.Name
	}

	history, err := s.store.GetConversationMessages(ctx, h.ConversationID, s.config.HandoffHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation messages: %w", err)
	}
	slices.Reverse(history)
	if history == nil {
		history = []domain.ConversationMessage{}
	}

	return &domain.HandoffContext{
		HandoffID:           h.ID,
		ConversationID:      h.ConversationID,
		FromAgentID:         h.FromAgentID,
		FromAgentName:       fromName,
		Reason:              h.Reason,
		KeyPoints:           h.KeyPoints,
		ContextSummary:      h.ContextSummary,
		ConversationHistory: history,
	}, nil
}

func (s *Service) GetHandoff(ctx context.Context, handoffID string) (*domain.AgentHandoff, error) {
	h, err := s.store.GetHandoff(ctx, handoffID)
	if err != nil {
		return nil, fmt.Errorf("failed to get handoff: %w", err)
	}
	if h == nil {
		return nil, &domain.NotFoundError{Entity: "handoff", ID: handoffID}
	}
	return h, nil
}

// ListPendingHandoffs lists pending handoffs addressed to an agent.
func (s *Service) ListPendingHandoffs(ctx context.Context, agentID string) ([]domain.AgentHandoffWithAgents, error) {
	if _, err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	items, err := s.store.ListPendingHandoffs(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending handoffs: %w", err)
	}
	return items, nil
}
