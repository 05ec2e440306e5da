package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

const agentColumns = `agent_id, name, status, capabilities, tool_access, channel_ref, created_at, updated_at`

// UpsertAgent registers or updates an agent.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent *domain.Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (`+agentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			capabilities = excluded.capabilities,
			tool_access = excluded.tool_access,
			channel_ref = excluded.channel_ref,
			updated_at = excluded.updated_at`,
		agent.AgentID, agent.Name, agent.Status, marshalStrings(agent.Capabilities), marshalStrings(agent.ToolAccess),
		nullString(agent.ChannelRef), agent.CreatedAt.UTC(), agent.UpdatedAt.UTC())
	return err
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE agent_id = ?`, agentID)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// ListAgents lists all agents.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at, agent_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

// UpdateAgentStatus changes an agent's status.
func (s *SQLiteStore) UpdateAgentStatus(ctx context.Context, agentID string, status domain.AgentStatus, at time.Time) (bool, error) {
	return execAffected(ctx, s.db,
		`UPDATE agents SET status = ?, updated_at = ? WHERE agent_id = ?`,
		status, at.UTC(), agentID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var agent domain.Agent
	var caps, tools, channelRef sql.NullString
	if err := row.Scan(&agent.AgentID, &agent.Name, &agent.Status, &caps, &tools, &channelRef, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
		return nil, err
	}
	agent.Capabilities = unmarshalStrings(caps)
	agent.ToolAccess = unmarshalStrings(tools)
	agent.ChannelRef = channelRef.String
	return &agent, nil
}
