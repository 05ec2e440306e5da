package domain

import (
	"encoding/json"
	"time"
)

// ActionLogEntry is an append-only record of an action an agent attempted.
// Only the approval fields change after creation.
type ActionLogEntry struct {
	ID               string          `json:"id"`
	AgentID          string          `json:"agent_id"`
	ActionType       string          `json:"action_type"`
	ActionCategory   ActionCategory  `json:"action_category"`
	Description      string          `json:"description"`
	InputData        json.RawMessage `json:"input_data,omitempty"`
	OutputData       json.RawMessage `json:"output_data,omitempty"`
	ToolsUsed        []string        `json:"tools_used"`
	CreatorID        string          `json:"creator_id,omitempty"`
	ProjectID        string          `json:"project_id,omitempty"`
	ConversationID   string          `json:"conversation_id,omitempty"`
	Cost             *float64        `json:"cost,omitempty"`
	RequiresApproval bool            `json:"requires_approval"`
	ApprovalStatus   *ApprovalStatus `json:"approval_status,omitempty"`
	ApprovedBy       string          `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	Success          bool            `json:"success"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Authorized reports whether the action has an explicit approval or never needed one.
// A missing decision counts as a denial.
func (e *ActionLogEntry) Authorized() bool {
	if !e.RequiresApproval {
		return true
	}
	return e.ApprovalStatus != nil && *e.ApprovalStatus == ApprovalStatusApproved
}

// LogActionInput carries the fields of a new action log entry.
type LogActionInput struct {
	AgentID          string          `json:"agent_id"`
	ActionType       string          `json:"action_type"`
	ActionCategory   ActionCategory  `json:"action_category,omitempty"`
	Description      string          `json:"description"`
	InputData        json.RawMessage `json:"input_data,omitempty"`
	OutputData       json.RawMessage `json:"output_data,omitempty"`
	ToolsUsed        []string        `json:"tools_used,omitempty"`
	CreatorID        string          `json:"creator_id,omitempty"`
	ProjectID        string          `json:"project_id,omitempty"`
	ConversationID   string          `json:"conversation_id,omitempty"`
	Cost             *float64        `json:"cost,omitempty"`
	RequiresApproval bool            `json:"requires_approval"`
	Success          bool            `json:"success"`
	ErrorMessage     string          `json:"error_message,omitempty"`
}

// ActionLogFilter narrows ListActionLogs. Zero values are ignored.
type ActionLogFilter struct {
	AgentID        string
	ActionType     string
	ConversationID string
	ApprovalStatus ApprovalStatus
	Since          time.Time
	Limit          int
}
