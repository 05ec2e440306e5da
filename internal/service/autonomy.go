package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/policy"
)

// CheckAutonomy classifies an intended action. Blocked actions come back as a
// result with Allowed=false; the returned error is reserved for lookups that
// failed. Use AutonomyCheckResult.Err to turn a block into its typed error.
func (s *Service) CheckAutonomy(ctx context.Context, in domain.AutonomyCheckInput) (*domain.AutonomyCheckResult, error) {
	if in.AgentID == "" {
		return nil, &domain.ValidationError{Field: "agent_id", Message: "is required"}
	}
	if in.ActionType == "" {
		return nil, &domain.ValidationError{Field: "action_type", Message: "is required"}
	}

	agent, err := s.store.GetAgent(ctx, in.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if agent == nil {
		return nil, &domain.NotFoundError{Entity: "agent", ID: in.AgentID}
	}

	row, err := s.effectiveActionAutonomy(ctx, in.AgentID, in.ActionType)
	if err != nil {
		return nil, err
	}

	res := &domain.AutonomyCheckResult{
		AgentID:    in.AgentID,
		ActionType: in.ActionType,
		Allowed:    true,
		Level:      row.AutonomyLevel,
	}
	defer func() {
		s.metrics.RecordAutonomyDecision(string(res.Level), res.Allowed, res.RequiresApproval)
	}()

	switch {
	case !agent.IsActive():
		res.Block(domain.BlockReasonAgentUnavailable, string(agent.Status))
		return res, nil
	case !row.Enabled:
		res.Block(domain.BlockReasonDisabled, "")
		return res, nil
	}

	detail, err := s.checkRateLimits(ctx, row, in)
	if err != nil {
		return nil, err
	}
	if detail != "" {
		res.Block(domain.BlockReasonRateLimit, detail)
		return res, nil
	}

	res.RequiresApproval = requiresApproval(row)

	settings, err := s.store.GetAutonomySettings(ctx, in.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get autonomy settings: %w", err)
	}
	var threshold *float64
	if settings != nil {
		threshold = settings.RequireHumanForHighValue
	}

	decision, reason := s.escalate(ctx, policy.Input{
		AgentID:            in.AgentID,
		ActionType:         in.ActionType,
		ActionCategory:     string(row.Category),
		AutonomyLevel:      string(row.AutonomyLevel),
		Value:              in.Value,
		HighValueThreshold: threshold,
	})
	switch decision {
	case policy.DecisionBlock:
		res.RequiresApproval = false
		res.Block(domain.BlockReasonDisabled, reason)
	case policy.DecisionRequireApproval:
		if !res.RequiresApproval {
			res.RequiresApproval = true
			res.Reason = reason
		}
	}
	return res, nil
}

// requiresApproval applies the per-level rule of the resolved policy row.
func requiresApproval(row domain.ActionAutonomy) bool {
	switch row.AutonomyLevel {
	case domain.AutonomyAutonomous:
		return false
	case domain.AutonomySuggestAndConfirm:
		return row.RequiresApproval
	case domain.AutonomyHumanRequired:
		return true
	}
	// Unknown levels fail closed.
	return true
}

// escalate consults the rego policy. Evaluation failures escalate to approval.
func (s *Service) escalate(ctx context.Context, in policy.Input) (policy.Decision, string) {
	if s.policyEngine == nil {
		if in.Value != nil && in.HighValueThreshold != nil && *in.Value > *in.HighValueThreshold {
			return policy.DecisionRequireApproval, "value exceeds high-value threshold"
		}
		return policy.DecisionAllow, ""
	}
	decision, reason, err := s.policyEngine.Evaluate(ctx, in)
	if err != nil {
		s.logger.Warn("policy evaluation failed; requiring approval",
			zap.String("agent_id", in.AgentID), zap.String("action_type", in.ActionType), zap.Error(err))
		return policy.DecisionRequireApproval, "policy evaluation failed"
	}
	return decision, reason
}

func (s *Service) effectiveActionAutonomy(ctx context.Context, agentID, actionType string) (domain.ActionAutonomy, error) {
	override, err := s.store.GetActionAutonomy(ctx, agentID, actionType)
	if err != nil {
		return domain.ActionAutonomy{}, fmt.Errorf("failed to get action autonomy: %w", err)
	}
	if override != nil {
		return *override, nil
	}
	row, _ := domain.DefaultActionAutonomy(actionType)
	return row, nil
}

// checkRateLimits returns a non-empty detail when a cap is exhausted.
// Only successful actions count against caps.
func (s *Service) checkRateLimits(ctx context.Context, row domain.ActionAutonomy, in domain.AutonomyCheckInput) (string, error) {
	now := s.now()

	if row.MaxPerDay != nil {
		n, err := s.store.CountActions(ctx, in.AgentID, in.ActionType, now.Add(-24*time.Hour))
		if err != nil {
			return "", fmt.Errorf("failed to count actions: %w", err)
		}
		if n >= *row.MaxPerDay {
			return fmt.Sprintf("maxPerDay %d reached", *row.MaxPerDay), nil
		}
	}

	if row.CooldownHours != nil && *row.CooldownHours > 0 {
		last, err := s.store.LastActionAt(ctx, in.AgentID, in.ActionType)
		if err != nil {
			return "", fmt.Errorf("failed to get last action: %w", err)
		}
		cooldown := time.Duration(*row.CooldownHours * float64(time.Hour))
		if last != nil && now.Sub(*last) < cooldown {
			return fmt.Sprintf("cooldown of %gh not elapsed", *row.CooldownHours), nil
		}
	}

	settings, err := s.store.GetAutonomySettings(ctx, in.AgentID)
	if err != nil {
		return "", fmt.Errorf("failed to get autonomy settings: %w", err)
	}
	if settings == nil {
		return "", nil
	}

	if settings.MaxActionsPerHour != nil {
		n, err := s.store.CountActions(ctx, in.AgentID, "", now.Add(-time.Hour))
		if err != nil {
			return "", fmt.Errorf("failed to count actions: %w", err)
		}
		if n >= *settings.MaxActionsPerHour {
			return fmt.Sprintf("maxActionsPerHour %d reached", *settings.MaxActionsPerHour), nil
		}
	}

	if settings.MaxCostPerDay != nil {
		spent, err := s.store.SumActionCost(ctx, in.AgentID, now.Add(-24*time.Hour))
		if err != nil {
			return "", fmt.Errorf("failed to sum action cost: %w", err)
		}
		if in.Value != nil {
			spent += *in.Value
			if spent > *settings.MaxCostPerDay {
				return fmt.Sprintf("maxCostPerDay %g exceeded", *settings.MaxCostPerDay), nil
			}
		} else if spent >= *settings.MaxCostPerDay {
			return fmt.Sprintf("maxCostPerDay %g reached", *settings.MaxCostPerDay), nil
		}
	}
	return "", nil
}

// GetAutonomySettings returns the agent-wide settings, or empty settings when none are configured.
func (s *Service) GetAutonomySettings(ctx context.Context, agentID string) (*domain.AutonomySettings, error) {
	if _, err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	settings, err := s.store.GetAutonomySettings(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get autonomy settings: %w", err)
	}
	if settings == nil {
		settings = &domain.AutonomySettings{AgentID: agentID}
	}
	return settings, nil
}

func (s *Service) UpsertAutonomySettings(ctx context.Context, settings domain.AutonomySettings) (*domain.AutonomySettings, error) {
	if _, err := s.requireAgent(ctx, settings.AgentID); err != nil {
		return nil, err
	}
	if settings.MaxActionsPerHour != nil && *settings.MaxActionsPerHour < 0 {
		return nil, &domain.ValidationError{Field: "max_actions_per_hour", Message: "must not be negative"}
	}
	if settings.MaxCostPerDay != nil && *settings.MaxCostPerDay < 0 {
		return nil, &domain.ValidationError{Field: "max_cost_per_day", Message: "must not be negative"}
	}
	settings.UpdatedAt = s.now()
	if err := s.store.UpsertAutonomySettings(ctx, &settings); err != nil {
		return nil, fmt.Errorf("failed to save autonomy settings: %w", err)
	}
	return &settings, nil
}

// ListActionAutonomy returns the per-agent overrides.
func (s *Service) ListActionAutonomy(ctx context.Context, agentID string) ([]domain.ActionAutonomy, error) {
	if _, err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListActionAutonomy(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list action autonomy: %w", err)
	}
	return rows, nil
}

// GetEffectiveActionAutonomy returns the override for an action type or the default row.
func (s *Service) GetEffectiveActionAutonomy(ctx context.Context, agentID, actionType string) (*domain.ActionAutonomy, error) {
	if _, err := s.requireAgent(ctx, agentID); err != nil {
		return nil, err
	}
	row, err := s.effectiveActionAutonomy(ctx, agentID, actionType)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Service) UpsertActionAutonomy(ctx context.Context, row domain.ActionAutonomy) (*domain.ActionAutonomy, error) {
	if _, err := s.requireAgent(ctx, row.AgentID); err != nil {
		return nil, err
	}
	if row.ActionType == "" {
		return nil, &domain.ValidationError{Field: "action_type", Message: "is required"}
	}
	if !row.AutonomyLevel.Valid() {
		return nil, &domain.ValidationError{Field: "autonomy_level", Message: fmt.Sprintf("unknown level %q", row.AutonomyLevel)}
	}
	if row.MaxPerDay != nil && *row.MaxPerDay < 0 {
		return nil, &domain.ValidationError{Field: "max_per_day", Message: "must not be negative"}
	}
	if row.CooldownHours != nil && *row.CooldownHours < 0 {
		return nil, &domain.ValidationError{Field: "cooldown_hours", Message: "must not be negative"}
	}
	if row.Category == "" {
		row.Category = domain.CategoryFor(row.ActionType)
	}
	row.UpdatedAt = s.now()
	if err := s.store.UpsertActionAutonomy(ctx, &row); err != nil {
		return nil, fmt.Errorf("failed to save action autonomy: %w", err)
	}
	return &row, nil
}

func (s *Service) DeleteActionAutonomy(ctx context.Context, agentID, actionType string) error {
	deleted, err := s.store.DeleteActionAutonomy(ctx, agentID, actionType)
	if err != nil {
		return fmt.Errorf("failed to delete action autonomy: %w", err)
	}
	if !deleted {
		return &domain.NotFoundError{Entity: "action autonomy", ID: agentID + "/" + actionType}
	}
	return nil
}
