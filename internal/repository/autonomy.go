package store

import (
	"context"
	"database/sql"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// GetAutonomySettings retrieves the agent-wide autonomy settings.
func (s *SQLiteStore) GetAutonomySettings(ctx context.Context, agentID string) (*domain.AutonomySettings, error) {
	var st domain.AutonomySettings
	var maxActions sql.NullInt64
	var maxCost, highValue sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, max_actions_per_hour, max_cost_per_day, require_human_for_high_value,
			learn_from_approvals, learn_from_rejections, updated_at
		 FROM autonomy_settings WHERE agent_id = ?`, agentID).
		Scan(&st.AgentID, &maxActions, &maxCost, &highValue, &st.LearnFromApprovals, &st.LearnFromRejections, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.MaxActionsPerHour = intPtr(maxActions)
	st.MaxCostPerDay = floatPtr(maxCost)
	st.RequireHumanForHighValue = floatPtr(highValue)
	return &st, nil
}

// UpsertAutonomySettings creates or replaces the agent-wide autonomy settings.
func (s *SQLiteStore) UpsertAutonomySettings(ctx context.Context, st *domain.AutonomySettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO autonomy_settings
			(agent_id, max_actions_per_hour, max_cost_per_day, require_human_for_high_value,
			 learn_from_approvals, learn_from_rejections, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.AgentID, nullInt(st.MaxActionsPerHour), nullFloat(st.MaxCostPerDay), nullFloat(st.RequireHumanForHighValue),
		boolInt(st.LearnFromApprovals), boolInt(st.LearnFromRejections), st.UpdatedAt.UTC())
	return err
}

const actionAutonomyColumns = `agent_id, action_type, category, autonomy_level, enabled, requires_approval,
	max_per_day, cooldown_hours, updated_at`

// GetActionAutonomy retrieves the per-agent override for an action type.
func (s *SQLiteStore) GetActionAutonomy(ctx context.Context, agentID, actionType string) (*domain.ActionAutonomy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+actionAutonomyColumns+` FROM action_autonomy WHERE agent_id = ? AND action_type = ?`,
		agentID, actionType)
	out, err := scanActionAutonomy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListActionAutonomy lists the overrides configured for an agent.
func (s *SQLiteStore) ListActionAutonomy(ctx context.Context, agentID string) ([]domain.ActionAutonomy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+actionAutonomyColumns+` FROM action_autonomy WHERE agent_id = ? ORDER BY action_type`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActionAutonomy
	for rows.Next() {
		row, err := scanActionAutonomy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

// UpsertActionAutonomy creates or replaces a per-agent override.
func (s *SQLiteStore) UpsertActionAutonomy(ctx context.Context, a *domain.ActionAutonomy) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO action_autonomy (`+actionAutonomyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AgentID, a.ActionType, a.Category, a.AutonomyLevel, boolInt(a.Enabled), boolInt(a.RequiresApproval),
		nullInt(a.MaxPerDay), nullFloat(a.CooldownHours), a.UpdatedAt.UTC())
	return err
}

// DeleteActionAutonomy removes an override so the default table applies again.
func (s *SQLiteStore) DeleteActionAutonomy(ctx context.Context, agentID, actionType string) (bool, error) {
	return execAffected(ctx, s.db,
		`DELETE FROM action_autonomy WHERE agent_id = ? AND action_type = ?`, agentID, actionType)
}

func scanActionAutonomy(row rowScanner) (*domain.ActionAutonomy, error) {
	var a domain.ActionAutonomy
	var maxPerDay sql.NullInt64
	var cooldown sql.NullFloat64
	if err := row.Scan(&a.AgentID, &a.ActionType, &a.Category, &a.AutonomyLevel, &a.Enabled, &a.RequiresApproval,
		&maxPerDay, &cooldown, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.MaxPerDay = intPtr(maxPerDay)
	a.CooldownHours = floatPtr(cooldown)
	return &a, nil
}
