// Package domain defines the core domain models for agentgate.
package domain

// AgentStatus represents the lifecycle status of an agent.
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusPaused   AgentStatus = "paused"
	AgentStatusTraining AgentStatus = "training"
	AgentStatusRetired  AgentStatus = "retired"
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusActive, AgentStatusPaused, AgentStatusTraining, AgentStatusRetired:
		return true
	}
	return false
}

// AutonomyLevel classifies how much human oversight an action type requires.
type AutonomyLevel string

const (
	AutonomyAutonomous        AutonomyLevel = "autonomous"
	AutonomySuggestAndConfirm AutonomyLevel = "suggest_and_confirm"
	AutonomyHumanRequired     AutonomyLevel = "human_required"
)

// Valid reports whether l is a known autonomy level.
func (l AutonomyLevel) Valid() bool {
	switch l {
	case AutonomyAutonomous, AutonomySuggestAndConfirm, AutonomyHumanRequired:
		return true
	}
	return false
}

// ActionCategory groups action types for reporting.
type ActionCategory string

const (
	ActionCategoryCommunication ActionCategory = "communication"
	ActionCategoryContent       ActionCategory = "content"
	ActionCategoryCommerce      ActionCategory = "commerce"
	ActionCategoryAdmin         ActionCategory = "admin"
	ActionCategoryGovernance    ActionCategory = "governance"
	ActionCategoryOther         ActionCategory = "other"
)

// ApprovalStatus represents the status of an approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusTimeout   ApprovalStatus = "timeout"
	ApprovalStatusCancelled ApprovalStatus = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s ApprovalStatus) Terminal() bool {
	switch s {
	case ApprovalStatusApproved, ApprovalStatusRejected, ApprovalStatusTimeout, ApprovalStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known approval status.
func (s ApprovalStatus) Valid() bool {
	return s == ApprovalStatusPending || s.Terminal()
}

// ApproverType identifies who resolves an approval request.
type ApproverType string

const (
	ApproverHuman ApproverType = "human"
	ApproverAI    ApproverType = "ai"
)

// HandoffStatus represents the status of an agent handoff.
type HandoffStatus string

const (
	HandoffStatusPending   HandoffStatus = "pending"
	HandoffStatusAccepted  HandoffStatus = "accepted"
	HandoffStatusDeclined  HandoffStatus = "declined"
	HandoffStatusCompleted HandoffStatus = "completed"
	HandoffStatusCancelled HandoffStatus = "cancelled"
)

// ChannelAction is an interactive button press relayed by the notification bridge.
type ChannelAction string

const (
	ChannelActionAccept  ChannelAction = "accept"
	ChannelActionDecline ChannelAction = "decline"
	ChannelActionApprove ChannelAction = "approve"
	ChannelActionReject  ChannelAction = "reject"
)

// MessageType labels notifications posted through the bridge.
type MessageType string

const (
	MessageTypeHandoff         MessageType = "handoff"
	MessageTypeApprovalRequest MessageType = "approval_request"
)

// Action types recorded by agentgate itself.
const (
	ActionTypeHandoffInitiate = "handoff_initiate"
	ActionTypeHandoffAccept   = "handoff_accept"
	ActionTypeHandoffDecline  = "handoff_decline"
	ActionTypeHandoffComplete = "handoff_complete"
	ActionTypeHandoffCancel   = "handoff_cancel"
	ActionTypeApproveAction   = "approve_action"
	ActionTypeRejectAction    = "reject_action"
)
