package domain

import "time"

// ConversationMessage is one message of a conversation log.
type ConversationMessage struct {
	MessageID      string    `json:"message_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Role           string    `json:"role"` // user, assistant, system
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// Conversation tracks which agent currently owns a conversation.
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	OwnerAgentID   string    `json:"owner_agent_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)
