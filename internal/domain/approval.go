package domain

import (
	"encoding/json"
	"time"
)

// ApprovalRequest gates an action until a human or delegated agent resolves it.
type ApprovalRequest struct {
	ID                string          `json:"id"`
	AgentID           string          `json:"agent_id"`
	ActionLogID       string          `json:"action_log_id,omitempty"`
	ActionType        string          `json:"action_type"`
	ActionPayload     json.RawMessage `json:"action_payload,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	RequestedAt       time.Time       `json:"requested_at"`
	ApproverType      ApproverType    `json:"approver_type,omitempty"`
	ApproverID        string          `json:"approver_id,omitempty"`
	Status            ApprovalStatus  `json:"status"`
	RespondedAt       *time.Time      `json:"responded_at,omitempty"`
	ResponseNote      string          `json:"response_note,omitempty"`
	ChannelMessageRef string          `json:"channel_message_ref,omitempty"`
	ExpiresAt         time.Time       `json:"expires_at"`
}

// CreateApprovalInput describes a new approval request.
// ExpiresInHours <= 0 selects the configured default.
type CreateApprovalInput struct {
	AgentID        string          `json:"agent_id"`
	ActionLogID    string          `json:"action_log_id,omitempty"`
	ActionType     string          `json:"action_type"`
	ActionPayload  json.RawMessage `json:"action_payload,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	ApproverType   ApproverType    `json:"approver_type,omitempty"`
	ApproverID     string          `json:"approver_id,omitempty"`
	ExpiresInHours float64         `json:"expires_in_hours,omitempty"`
}

// ResolveApprovalInput resolves a pending approval request.
type ResolveApprovalInput struct {
	Status       ApprovalStatus `json:"status"`
	ResponderID  string         `json:"responder_id"`
	ApproverType ApproverType   `json:"approver_type,omitempty"`
	Note         string         `json:"note,omitempty"`
}

// ApprovalResolution is written by the store in one transaction: the approval
// row moves out of pending and the correlated action log mirrors it.
type ApprovalResolution struct {
	ApprovalID   string
	Status       ApprovalStatus
	ApproverType ApproverType
	ResponderID  string
	Note         string
	RespondedAt  time.Time
}

// ApprovalFilter narrows ListApprovalRequests. Zero values are ignored.
type ApprovalFilter struct {
	AgentID     string
	ActionLogID string
	Status      ApprovalStatus
	Limit       int
}
