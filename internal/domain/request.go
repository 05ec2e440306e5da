package domain

import "encoding/json"

// ActionRequest is an agent's request to perform a gated action.
type ActionRequest struct {
	AgentID        string          `json:"agent_id"`
	ActionType     string          `json:"action_type"`
	Description    string          `json:"description"`
	InputData      json.RawMessage `json:"input_data,omitempty"`
	OutputData     json.RawMessage `json:"output_data,omitempty"`
	ToolsUsed      []string        `json:"tools_used,omitempty"`
	CreatorID      string          `json:"creator_id,omitempty"`
	ProjectID      string          `json:"project_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Value          *float64        `json:"value,omitempty"`
	Success        *bool           `json:"success,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ApprovalReason string          `json:"approval_reason,omitempty"`
	ExpiresInHours float64         `json:"expires_in_hours,omitempty"`
}

// ActionOutcome is the result of RequestAction.
type ActionOutcome struct {
	Check            AutonomyCheckResult `json:"check"`
	Action           *ActionLogEntry     `json:"action"`
	Approval         *ApprovalRequest    `json:"approval,omitempty"`
	NotificationSent bool                `json:"notification_sent"`
}

// ApprovalDecisionRequest represents a decision on an approval.
type ApprovalDecisionRequest struct {
	Decision     string       `json:"decision"` // approve, reject or cancel
	Reason       string       `json:"reason,omitempty"`
	DecidedBy    string       `json:"decided_by"`
	ApproverType ApproverType `json:"approver_type,omitempty"`
}

// ApprovalStatusForDecision maps a decision verb to its terminal status.
func ApprovalStatusForDecision(decision string) (ApprovalStatus, bool) {
	switch decision {
	case "approve", string(ApprovalStatusApproved):
		return ApprovalStatusApproved, true
	case "reject", string(ApprovalStatusRejected):
		return ApprovalStatusRejected, true
	case "cancel", string(ApprovalStatusCancelled):
		return ApprovalStatusCancelled, true
	}
	return "", false
}

// HandoffActionRequest identifies the agent acting on a handoff.
type HandoffActionRequest struct {
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason,omitempty"`
}

// ChannelActionRequest relays a button press from the chat channel.
type ChannelActionRequest struct {
	MessageRef string        `json:"message_ref"`
	AgentID    string        `json:"agent_id"`
	Action     ChannelAction `json:"action"`
}

// ChannelActionResult reports what a channel action resolved.
type ChannelActionResult struct {
	Handoff  *AgentHandoff    `json:"handoff,omitempty"`
	Approval *ApprovalRequest `json:"approval,omitempty"`
	Context  *HandoffContext  `json:"context,omitempty"`
}

// AgentMessage is posted by the notification bridge.
type AgentMessage struct {
	FromAgentID string         `json:"from_agent_id"`
	ToAgentID   string         `json:"to_agent_id,omitempty"`
	ChannelRef  string         `json:"channel_ref"`
	MessageType MessageType    `json:"message_type"`
	Content     string         `json:"content"`
	Context     map[string]any `json:"context,omitempty"`
}
