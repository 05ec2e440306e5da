package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// RegisterAgentInput provisions or updates an agent.
type RegisterAgentInput struct {
	AgentID      string             `json:"agent_id"`
	Name         string             `json:"name"`
	Status       domain.AgentStatus `json:"status,omitempty"`
	Capabilities []string           `json:"capabilities,omitempty"`
	ToolAccess   []string           `json:"tool_access,omitempty"`
	ChannelRef   string             `json:"channel_ref,omitempty"`
}

func (s *Service) RegisterAgent(ctx context.Context, in RegisterAgentInput) (*domain.Agent, error) {
	in.AgentID = strings.TrimSpace(in.AgentID)
	if in.AgentID == "" {
		return nil, &domain.ValidationError{Field: "agent_id", Message: "is required"}
	}
	if in.Name == "" {
		in.Name = in.AgentID
	}
	if in.Status == "" {
		in.Status = domain.AgentStatusActive
	}
	if !in.Status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", in.Status)}
	}

	now := s.now()
	agent := &domain.Agent{
		AgentID:      in.AgentID,
		Name:         in.Name,
		Status:       in.Status,
		Capabilities: in.Capabilities,
		ToolAccess:   in.ToolAccess,
		ChannelRef:   in.ChannelRef,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	existing, err := s.store.GetAgent(ctx, in.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if existing != nil {
		agent.CreatedAt = existing.CreatedAt
	}

	if err := s.store.UpsertAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to register agent: %w", err)
	}
	return agent, nil
}

func (s *Service) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

func (s *Service) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	return s.requireAgent(ctx, agentID)
}

func (s *Service) UpdateAgentStatus(ctx context.Context, agentID string, status domain.AgentStatus) (*domain.Agent, error) {
	if !status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	ok, err := s.store.UpdateAgentStatus(ctx, agentID, status, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to update agent status: %w", err)
	}
	if !ok {
		return nil, &domain.NotFoundError{Entity: "agent", ID: agentID}
	}
	return s.requireAgent(ctx, agentID)
}

func (s *Service) requireAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if agent == nil {
		return nil, &domain.NotFoundError{Entity: "agent", ID: agentID}
	}
	return agent, nil
}

// requireActiveAgent returns AgentUnavailableError for a known agent that is not active.
func (s *Service) requireActiveAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := s.requireAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !agent.IsActive() {
		return nil, &domain.AgentUnavailableError{AgentID: agentID, Status: agent.Status}
	}
	return agent, nil
}
