package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// LogAction appends an entry to the action log. The approval status starts
// as pending exactly when the action requires approval.
func (s *Service) LogAction(ctx context.Context, in domain.LogActionInput) (*domain.ActionLogEntry, error) {
	if in.AgentID == "" {
		return nil, &domain.ValidationError{Field: "agent_id", Message: "is required"}
	}
	if in.ActionType == "" {
		return nil, &domain.ValidationError{Field: "action_type", Message: "is required"}
	}
	if _, err := s.requireAgent(ctx, in.AgentID); err != nil {
		return nil, err
	}
	return s.appendAction(ctx, in)
}

func (s *Service) appendAction(ctx context.Context, in domain.LogActionInput) (*domain.ActionLogEntry, error) {
	if in.ActionCategory == "" {
		in.ActionCategory = domain.CategoryFor(in.ActionType)
	}
	entry := &domain.ActionLogEntry{
		ID:               newID("act_"),
		AgentID:          in.AgentID,
		ActionType:       in.ActionType,
		ActionCategory:   in.ActionCategory,
		Description:      in.Description,
		InputData:        in.InputData,
		OutputData:       in.OutputData,
		ToolsUsed:        in.ToolsUsed,
		CreatorID:        in.CreatorID,
		ProjectID:        in.ProjectID,
		ConversationID:   in.ConversationID,
		Cost:             in.Cost,
		RequiresApproval: in.RequiresApproval,
		Success:          in.Success,
		ErrorMessage:     in.ErrorMessage,
		CreatedAt:        s.now(),
	}
	if entry.ToolsUsed == nil {
		entry.ToolsUsed = []string{}
	}
	if in.RequiresApproval {
		pending := domain.ApprovalStatusPending
		entry.ApprovalStatus = &pending
	}

	if err := s.store.LogAction(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to log action: %w", err)
	}
	s.metrics.RecordActionLogged(string(entry.ActionCategory), entry.RequiresApproval, entry.Success)
	return entry, nil
}

// audit records a governance action taken through this service. Failures are
// logged; the state change they describe has already been committed.
func (s *Service) audit(ctx context.Context, agentID, actionType, description, conversationID string, input map[string]any) {
	var raw json.RawMessage
	if input != nil {
		raw, _ = json.Marshal(input)
	}
	if _, err := s.appendAction(ctx, domain.LogActionInput{
		AgentID:        agentID,
		ActionType:     actionType,
		Description:    description,
		InputData:      raw,
		ConversationID: conversationID,
		Success:        true,
	}); err != nil {
		s.logger.Warn("failed to record audit action",
			zap.String("agent_id", agentID), zap.String("action_type", actionType), zap.Error(err))
	}
}

func (s *Service) GetActionLog(ctx context.Context, id string) (*domain.ActionLogEntry, error) {
	entry, err := s.store.GetActionLog(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get action log: %w", err)
	}
	if entry == nil {
		return nil, &domain.NotFoundError{Entity: "action", ID: id}
	}
	return entry, nil
}

func (s *Service) ListActionLogs(ctx context.Context, filter domain.ActionLogFilter) ([]domain.ActionLogEntry, error) {
	if filter.ApprovalStatus != "" && !filter.ApprovalStatus.Valid() {
		return nil, &domain.ValidationError{Field: "approval_status", Message: fmt.Sprintf("unknown status %q", filter.ApprovalStatus)}
	}
	entries, err := s.store.ListActionLogs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list action logs: %w", err)
	}
	return entries, nil
}

// RequestAction gates an intended action: it classifies the action, logs the
// decision, and opens an approval request when one is required. A blocked
// action is still logged (success=false) and its typed error is returned.
func (s *Service) RequestAction(ctx context.Context, req domain.ActionRequest) (*domain.ActionOutcome, error) {
	if err := validateExpiresInHours(req.ExpiresInHours); err != nil {
		return nil, err
	}
	check, err := s.CheckAutonomy(ctx, domain.AutonomyCheckInput{
		AgentID:    req.AgentID,
		ActionType: req.ActionType,
		Value:      req.Value,
	})
	if err != nil {
		return nil, err
	}

	in := domain.LogActionInput{
		AgentID:        req.AgentID,
		ActionType:     req.ActionType,
		Description:    req.Description,
		InputData:      req.InputData,
		OutputData:     req.OutputData,
		ToolsUsed:      req.ToolsUsed,
		CreatorID:      req.CreatorID,
		ProjectID:      req.ProjectID,
		ConversationID: req.ConversationID,
		Cost:           req.Value,
		Success:        true,
		ErrorMessage:   req.ErrorMessage,
	}
	if check.Allowed {
		in.RequiresApproval = check.RequiresApproval
		if req.Success != nil {
			in.Success = *req.Success
		}
	} else {
		in.Success = false
		in.ErrorMessage = check.Reason
	}

	entry, err := s.appendAction(ctx, in)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		s.logger.Info("action blocked",
			zap.String("agent_id", req.AgentID), zap.String("action_type", req.ActionType),
			zap.String("action_id", entry.ID), zap.String("reason", check.Reason))
		return nil, check.Err()
	}

	out := &domain.ActionOutcome{Check: *check, Action: entry}
	if !entry.RequiresApproval {
		return out, nil
	}

	reason := req.ApprovalReason
	if reason == "" {
		reason = check.Reason
	}
	if reason == "" {
		reason = fmt.Sprintf("%s requires approval at level %s", req.ActionType, check.Level)
	}
	approval, err := s.CreateApprovalRequest(ctx, domain.CreateApprovalInput{
		AgentID:        req.AgentID,
		ActionLogID:    entry.ID,
		ActionType:     req.ActionType,
		ActionPayload:  req.InputData,
		Reason:         reason,
		ExpiresInHours: req.ExpiresInHours,
	})
	if err != nil {
		// The entry must not stay pending without an approval that can settle it.
		if _, cerr := s.store.UpdateActionApproval(ctx, entry.ID, domain.ApprovalStatusCancelled, "", s.now()); cerr != nil {
			s.logger.Warn("failed to cancel action after approval request failed",
				zap.String("action_id", entry.ID), zap.Error(cerr))
		}
		return nil, err
	}
	out.Approval = approval
	out.Check.ApprovalID = approval.ID
	out.NotificationSent = s.notifyApproval(ctx, approval)
	return out, nil
}
