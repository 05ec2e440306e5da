// Package store provides persistence for agents, the action log, autonomy
// policy, approval requests, handoffs and conversation logs.
//
// Getters return (nil, nil) when a row does not exist. Conditional transitions
// return (nil, nil) when their predicate matched no row; callers re-read the
// row to decide which guard failed.
package store

import (
	"context"
	"time"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// Store defines the persistence operations used by the service layer.
type Store interface {
	// Agent operations
	UpsertAgent(ctx context.Context, agent *domain.Agent) error
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	UpdateAgentStatus(ctx context.Context, agentID string, status domain.AgentStatus, at time.Time) (bool, error)

	// Action log operations
	LogAction(ctx context.Context, entry *domain.ActionLogEntry) error
	GetActionLog(ctx context.Context, id string) (*domain.ActionLogEntry, error)
	ListActionLogs(ctx context.Context, filter domain.ActionLogFilter) ([]domain.ActionLogEntry, error)
	UpdateActionApproval(ctx context.Context, id string, status domain.ApprovalStatus, approverID string, at time.Time) (*domain.ActionLogEntry, error)
	CountActions(ctx context.Context, agentID, actionType string, since time.Time) (int, error)
	LastActionAt(ctx context.Context, agentID, actionType string) (*time.Time, error)
	SumActionCost(ctx context.Context, agentID string, since time.Time) (float64, error)

	// Autonomy policy operations
	GetAutonomySettings(ctx context.Context, agentID string) (*domain.AutonomySettings, error)
	UpsertAutonomySettings(ctx context.Context, settings *domain.AutonomySettings) error
	GetActionAutonomy(ctx context.Context, agentID, actionType string) (*domain.ActionAutonomy, error)
	ListActionAutonomy(ctx context.Context, agentID string) ([]domain.ActionAutonomy, error)
	UpsertActionAutonomy(ctx context.Context, row *domain.ActionAutonomy) error
	DeleteActionAutonomy(ctx context.Context, agentID, actionType string) (bool, error)

	// Approval operations
	CreateApproval(ctx context.Context, approval *domain.ApprovalRequest) error
	GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	GetPendingApprovalForAction(ctx context.Context, actionLogID string) (*domain.ApprovalRequest, error)
	GetApprovalByChannelRef(ctx context.Context, ref string) (*domain.ApprovalRequest, error)
	ListApprovals(ctx context.Context, filter domain.ApprovalFilter) ([]domain.ApprovalRequest, error)
	SetApprovalChannelRef(ctx context.Context, id, ref string) error
	ResolveApproval(ctx context.Context, res domain.ApprovalResolution) (*domain.ApprovalRequest, error)
	ListExpiredApprovals(ctx context.Context, now time.Time, limit int) ([]domain.ApprovalRequest, error)

	// Handoff operations
	CreateHandoff(ctx context.Context, handoff *domain.AgentHandoff) error
	GetHandoff(ctx context.Context, id string) (*domain.AgentHandoff, error)
	GetPendingHandoffByConversation(ctx context.Context, conversationID string) (*domain.AgentHandoff, error)
	GetHandoffByChannelRef(ctx context.Context, ref string) (*domain.AgentHandoff, error)
	ListPendingHandoffs(ctx context.Context, agentID string) ([]domain.AgentHandoffWithAgents, error)
	SetHandoffChannelRef(ctx context.Context, id, ref string) error
	AcceptHandoff(ctx context.Context, id, agentID string, at time.Time) (*domain.AgentHandoff, error)
	DeclineHandoff(ctx context.Context, id, agentID, reason string, at time.Time) (*domain.AgentHandoff, error)
	CompleteHandoff(ctx context.Context, id, agentID string, at time.Time) (*domain.AgentHandoff, error)
	CancelHandoff(ctx context.Context, id, agentID string, at time.Time) (*domain.AgentHandoff, error)

	// Conversation operations
	AppendConversationMessage(ctx context.Context, msg *domain.ConversationMessage) error
	GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]domain.ConversationMessage, error)
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	SetConversationOwner(ctx context.Context, conversationID, ownerAgentID string, at time.Time) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
