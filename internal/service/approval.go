package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// CreateApprovalRequest opens an approval request. When it references an
// action, the action must require approval and still be pending, and no other
// pending request may exist for it.
func (s *Service) CreateApprovalRequest(ctx context.Context, in domain.CreateApprovalInput) (*domain.ApprovalRequest, error) {
	if in.AgentID == "" {
		return nil, &domain.ValidationError{Field: "agent_id", Message: "is required"}
	}
	if _, err := s.requireAgent(ctx, in.AgentID); err != nil {
		return nil, err
	}
	if err := validateExpiresInHours(in.ExpiresInHours); err != nil {
		return nil, err
	}
	if in.ApproverType != "" && in.ApproverType != domain.ApproverHuman && in.ApproverType != domain.ApproverAI {
		return nil, &domain.ValidationError{Field: "approver_type", Message: fmt.Sprintf("unknown approver type %q", in.ApproverType)}
	}

	if in.ActionLogID != "" {
		entry, err := s.store.GetActionLog(ctx, in.ActionLogID)
		if err != nil {
			return nil, fmt.Errorf("failed to get action log: %w", err)
		}
		if entry == nil {
			return nil, &domain.NotFoundError{Entity: "action", ID: in.ActionLogID}
		}
		if !entry.RequiresApproval {
			return nil, &domain.ValidationError{Field: "action_log_id", Message: "action does not require approval"}
		}
		if entry.ApprovalStatus != nil && *entry.ApprovalStatus != domain.ApprovalStatusPending {
			return nil, &domain.AlreadyResolvedError{
				Entity: "action", ID: entry.ID,
				Current: string(*entry.ApprovalStatus), Attempted: string(domain.ApprovalStatusPending),
			}
		}
		existing, err := s.store.GetPendingApprovalForAction(ctx, in.ActionLogID)
		if err != nil {
			return nil, fmt.Errorf("failed to get pending approval: %w", err)
		}
		if existing != nil {
			return nil, &domain.DuplicateApprovalError{ActionLogID: in.ActionLogID, ExistingApprovalID: existing.ID}
		}
		if in.ActionType == "" {
			in.ActionType = entry.ActionType
		}
		if len(in.ActionPayload) == 0 {
			in.ActionPayload = entry.InputData
		}
	}
	if in.ActionType == "" {
		return nil, &domain.ValidationError{Field: "action_type", Message: "is required"}
	}

	hours := in.ExpiresInHours
	if hours == 0 {
		hours = s.config.ApprovalExpiresInHours
	}
	approverType := in.ApproverType
	if approverType == "" {
		approverType = domain.ApproverHuman
	}

	now := s.now()
	approval := &domain.ApprovalRequest{
		ID:            newID("ap_"),
		AgentID:       in.AgentID,
		ActionLogID:   in.ActionLogID,
		ActionType:    in.ActionType,
		ActionPayload: in.ActionPayload,
		Reason:        in.Reason,
		RequestedAt:   now,
		ApproverType:  approverType,
		ApproverID:    in.ApproverID,
		Status:        domain.ApprovalStatusPending,
		ExpiresAt:     now.Add(time.Duration(hours * float64(time.Hour))),
	}
	if err := s.store.CreateApproval(ctx, approval); err != nil {
		if domain.KindOf(err) == domain.KindDuplicateApproval {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create approval: %w", err)
	}
	s.metrics.RecordApprovalCreated(approval.ActionType)
	return approval, nil
}

// ResolveApproval moves a pending approval request to approved, rejected or
// cancelled, updating the correlated action log entry in the same transaction.
// Resolving a request that is no longer pending fails with StaleStateError. A
// request past its expiry is moved to timeout and fails the same way.
func (s *Service) ResolveApproval(ctx context.Context, approvalID string, in domain.ResolveApprovalInput) (*domain.ApprovalRequest, error) {
	switch in.Status {
	case domain.ApprovalStatusApproved, domain.ApprovalStatusRejected, domain.ApprovalStatusCancelled:
	case domain.ApprovalStatusPending, domain.ApprovalStatusTimeout:
		return nil, &domain.InvalidTransitionError{
			Entity: "approval", ID: approvalID,
			Current: string(domain.ApprovalStatusPending), Attempted: string(in.Status),
		}
	default:
		return nil, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", in.Status)}
	}
	if in.ResponderID == "" {
		return nil, &domain.ValidationError{Field: "responder_id", Message: "is required"}
	}

	approval, err := s.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if approval.Status != domain.ApprovalStatusPending {
		return nil, staleApproval(approval, in.Status)
	}
	now := s.now()
	if !now.Before(approval.ExpiresAt) {
		// Expired but not yet swept: time it out here instead of honouring a late answer.
		timedOut, err := s.resolve(ctx, domain.ApprovalResolution{
			ApprovalID:  approvalID,
			Status:      domain.ApprovalStatusTimeout,
			Note:        "expired",
			RespondedAt: now,
		})
		if err != nil {
			return nil, err
		}
		return nil, staleApproval(timedOut, in.Status)
	}
	if in.ApproverType == domain.ApproverAI {
		if _, err := s.requireActiveAgent(ctx, in.ResponderID); err != nil {
			return nil, err
		}
	}

	resolved, err := s.resolve(ctx, domain.ApprovalResolution{
		ApprovalID:   approvalID,
		Status:       in.Status,
		ApproverType: in.ApproverType,
		ResponderID:  in.ResponderID,
		Note:         in.Note,
		RespondedAt:  now,
	})
	if err != nil {
		return nil, err
	}

	if in.ApproverType == domain.ApproverAI && in.Status != domain.ApprovalStatusCancelled {
		actionType := domain.ActionTypeApproveAction
		if in.Status == domain.ApprovalStatusRejected {
			actionType = domain.ActionTypeRejectAction
		}
		s.audit(ctx, in.ResponderID, actionType,
			fmt.Sprintf("%s %s of agent %s", in.Status, resolved.ActionType, resolved.AgentID), "",
			map[string]any{"approval_id": resolved.ID, "action_log_id": resolved.ActionLogID, "note": in.Note})
	}
	return resolved, nil
}

// resolve applies a resolution and turns a lost race into StaleStateError.
func (s *Service) resolve(ctx context.Context, res domain.ApprovalResolution) (*domain.ApprovalRequest, error) {
	resolved, err := s.store.ResolveApproval(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve approval: %w", err)
	}
	if resolved == nil {
		current, err := s.GetApproval(ctx, res.ApprovalID)
		if err != nil {
			return nil, err
		}
		return nil, staleApproval(current, res.Status)
	}
	s.metrics.RecordApprovalResolved(string(resolved.Status))
	s.logger.Info("approval resolved",
		zap.String("approval_id", resolved.ID), zap.String("status", string(resolved.Status)),
		zap.String("action_log_id", resolved.ActionLogID))
	return resolved, nil
}

func validateExpiresInHours(hours float64) error {
	if hours < 0 {
		return &domain.ValidationError{Field: "expires_in_hours", Message: "must not be negative"}
	}
	return nil
}

func staleApproval(ap *domain.ApprovalRequest, attempted domain.ApprovalStatus) error {
	return &domain.StaleStateError{Entity: "approval", ID: ap.ID, Current: string(ap.Status), Attempted: string(attempted)}
}

func (s *Service) GetApproval(ctx context.Context, approvalID string) (*domain.ApprovalRequest, error) {
	approval, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	if approval == nil {
		return nil, &domain.NotFoundError{Entity: "approval", ID: approvalID}
	}
	return approval, nil
}

func (s *Service) ListApprovalRequests(ctx context.Context, filter domain.ApprovalFilter) ([]domain.ApprovalRequest, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", filter.Status)}
	}
	approvals, err := s.store.ListApprovals(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	return approvals, nil
}

// notifyApproval posts an approval_request message and records its reference.
// It reports whether the message was delivered.
func (s *Service) notifyApproval(ctx context.Context, ap *domain.ApprovalRequest) bool {
	agent, err := s.store.GetAgent(ctx, ap.AgentID)
	if err != nil || agent == nil {
		s.logger.Warn("approval notification skipped: agent lookup failed",
			zap.String("approval_id", ap.ID), zap.Error(err))
		return false
	}

	content := fmt.Sprintf("*Approval requested*\n%s wants to run `%s`.", agent.Name, ap.ActionType)
	if ap.Reason != "" {
		content += "\nReason: " + ap.Reason
	}
	content += "\nExpires: " + ap.ExpiresAt.Format(time.RFC3339)

	ref, err := s.notifier.PostAgentMessage(ctx, domain.AgentMessage{
		FromAgentID: ap.AgentID,
		ChannelRef:  s.channelFor(agent),
		MessageType: domain.MessageTypeApprovalRequest,
		Content:     content,
		Context: map[string]any{
			"approval_id":   ap.ID,
			"action_log_id": ap.ActionLogID,
			"action_type":   ap.ActionType,
		},
	})
	if err != nil {
		s.metrics.RecordNotificationFailure(string(domain.MessageTypeApprovalRequest))
		s.logger.Warn("approval notification failed", zap.String("approval_id", ap.ID), zap.Error(err))
		return false
	}
	if err := s.store.SetApprovalChannelRef(ctx, ap.ID, ref); err != nil {
		s.logger.Warn("failed to record approval message ref", zap.String("approval_id", ap.ID), zap.Error(err))
	} else {
		ap.ChannelMessageRef = ref
	}
	return true
}

func (s *Service) channelFor(agent *domain.Agent) string {
	if agent != nil && agent.ChannelRef != "" {
		return agent.ChannelRef
	}
	return s.config.Slack.DefaultChannel
}
