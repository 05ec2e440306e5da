package domain

import "time"

// AgentHandoff transfers a conversation from one agent to another.
type AgentHandoff struct {
	ID                string        `json:"id"`
	ConversationID    string        `json:"conversation_id"`
	FromAgentID       string        `json:"from_agent_id"`
	ToAgentID         string        `json:"to_agent_id"`
	Reason            string        `json:"reason"`
	KeyPoints         []string      `json:"key_points"`
	ContextSummary    string        `json:"context_summary,omitempty"`
	Status            HandoffStatus `json:"status"`
	ChannelMessageRef string        `json:"channel_message_ref,omitempty"`
	DeclineReason     string        `json:"decline_reason,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	AcceptedAt        *time.Time    `json:"accepted_at,omitempty"`
	ResolvedAt        *time.Time    `json:"resolved_at,omitempty"`
}

// AgentHandoffWithAgents adds display names for both parties.
type AgentHandoffWithAgents struct {
	AgentHandoff
	FromAgentName string `json:"from_agent_name"`
	ToAgentName   string `json:"to_agent_name"`
}

// CreateHandoffInput carries the fields of a new handoff row.
type CreateHandoffInput struct {
	ConversationID string
	FromAgentID    string
	ToAgentID      string
	Reason         string
	ContextSummary string
}

// InitiateHandoffInput is the caller request for a handoff.
type InitiateHandoffInput struct {
	FromAgentID    string `json:"from_agent_id"`
	ToAgentID      string `json:"to_agent_id"`
	ConversationID string `json:"conversation_id"`
	Reason         string `json:"reason"`
	ContextSummary string `json:"context_summary,omitempty"`
}

// HandoffContext briefs the receiving agent. It is derived, never stored.
type HandoffContext struct {
	HandoffID           string                `json:"handoff_id"`
	ConversationID      string                `json:"conversation_id"`
	FromAgentID         string                `json:"from_agent_id"`
	FromAgentName       string                `json:"from_agent_name"`
	Reason              string                `json:"reason"`
	KeyPoints           []string              `json:"key_points"`
	ContextSummary      string                `json:"context_summary,omitempty"`
	ConversationHistory []ConversationMessage `json:"conversation_history"`
}

// NotifyResult reports a handoff together with the best-effort notification outcome.
type NotifyResult struct {
	Handoff           *AgentHandoff `json:"handoff"`
	NotificationSent  bool          `json:"notification_sent"`
	NotificationError string        `json:"notification_error,omitempty"`
}

// AutoAcceptResult is the non-throwing outcome of automatic acceptance.
type AutoAcceptResult struct {
	Accepted bool            `json:"accepted"`
	Reason   string          `json:"reason,omitempty"`
	Context  *HandoffContext `json:"context,omitempty"`
}

// handoffTransitions lists the legal edges of the handoff state machine.
var handoffTransitions = map[HandoffStatus][]HandoffStatus{
	HandoffStatusPending:  {HandoffStatusAccepted, HandoffStatusDeclined, HandoffStatusCancelled},
	HandoffStatusAccepted: {HandoffStatusCompleted},
}

// CanTransition reports whether the handoff state machine allows from -> to.
func (s HandoffStatus) CanTransition(to HandoffStatus) bool {
	for _, next := range handoffTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s HandoffStatus) Terminal() bool {
	return len(handoffTransitions[s]) == 0
}

// CheckTransition returns the typed error for an illegal transition of handoff h, or nil.
// Leaving a terminal state is AlreadyResolved; skipping a state is InvalidTransition.
func CheckTransition(h *AgentHandoff, to HandoffStatus) error {
	if h.Status.CanTransition(to) {
		return nil
	}
	if h.Status.Terminal() || (to != HandoffStatusCompleted && h.Status != HandoffStatusPending) {
		return &AlreadyResolvedError{Entity: "handoff", ID: h.ID, Current: string(h.Status), Attempted: string(to)}
	}
	return &InvalidTransitionError{Entity: "handoff", ID: h.ID, Current: string(h.Status), Attempted: string(to)}
}
