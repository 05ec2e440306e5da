package bridge

import (
	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// Message types from client to bridge
const (
	TypeSubscribe = "subscribe"
	TypeAction    = "action"
)

// Message types from bridge to client
const (
	TypeSubscribed   = "subscribed"
	TypeAgentMessage = "agent_message"
	TypeActionResult = "action_result"
	TypeError        = "error"
)

// Error codes
const (
	ErrorCodeInvalidMessage  = "INVALID_MESSAGE"
	ErrorCodeUnauthorized    = "UNAUTHORIZED"
	ErrorCodeSubscribeFirst  = "SUBSCRIBE_REQUIRED"
	ErrorCodeActionRejected  = "ACTION_REJECTED"
	ErrorCodeUpstreamFailure = "AGENTGATE_ERROR"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
}

// SubscribeMessage binds a connection to one or more channels.
type SubscribeMessage struct {
	BaseMessage
	Channels []string `json:"channels"`
	APIKey   string   `json:"api_key,omitempty"`
}

// SubscribedMessage acknowledges a subscription.
type SubscribedMessage struct {
	BaseMessage
	Channels []string `json:"channels"`
}

// AgentMessageEvent is a handoff or approval notification pushed to a channel.
// Actions lists the buttons a client may press in reply.
type AgentMessageEvent struct {
	BaseMessage
	MessageRef string                 `json:"message_ref"`
	Channel    string                 `json:"channel"`
	Message    domain.AgentMessage    `json:"message"`
	Actions    []domain.ChannelAction `json:"actions,omitempty"`
}

// ActionMessage is a button press on a posted message.
type ActionMessage struct {
	BaseMessage
	MessageRef string               `json:"message_ref"`
	AgentID    string               `json:"agent_id"`
	Action     domain.ChannelAction `json:"action"`
}

// ActionResultMessage reports what an action resolved.
type ActionResultMessage struct {
	BaseMessage
	MessageRef string                      `json:"message_ref"`
	Result     *domain.ChannelActionResult `json:"result"`
}

// ErrorMessage is sent when a client message cannot be handled.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// actionsFor returns the buttons offered for a message type.
func actionsFor(t domain.MessageType) []domain.ChannelAction {
	switch t {
	case domain.MessageTypeHandoff:
		return []domain.ChannelAction{domain.ChannelActionAccept, domain.ChannelActionDecline}
	case domain.MessageTypeApprovalRequest:
		return []domain.ChannelAction{domain.ChannelActionApprove, domain.ChannelActionReject}
	}
	return nil
}
