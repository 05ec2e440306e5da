package domain

import "time"

// Agent is an autonomous actor that takes logged actions and participates in handoffs.
type Agent struct {
	AgentID      string      `json:"agent_id"`
	Name         string      `json:"name"`
	Status       AgentStatus `json:"status"`
	Capabilities []string    `json:"capabilities,omitempty"`
	ToolAccess   []string    `json:"tool_access,omitempty"`
	ChannelRef   string      `json:"channel_ref,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// IsActive reports whether the agent may originate or receive work.
func (a *Agent) IsActive() bool {
	return a != nil && a.Status == AgentStatusActive
}
