package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

const handoffColumns = `id, conversation_id, from_agent_id, to_agent_id, reason, key_points, context_summary,
	status, channel_message_ref, decline_reason, created_at, accepted_at, resolved_at`

// CreateHandoff persists a new pending handoff. A second pending handoff for
// the same conversation fails with DuplicateHandoffError.
func (s *SQLiteStore) CreateHandoff(ctx context.Context, h *domain.AgentHandoff) error {
	keyPoints, _ := json.Marshal(h.KeyPoints)
	if h.KeyPoints == nil {
		keyPoints = []byte("[]")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_handoffs (`+handoffColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.ConversationID, h.FromAgentID, h.ToAgentID, h.Reason, string(keyPoints), nullString(h.ContextSummary),
		h.Status, nullString(h.ChannelMessageRef), nullString(h.DeclineReason), h.CreatedAt.UTC(),
		nullTime(h.AcceptedAt), nullTime(h.ResolvedAt))
	if isUniqueViolation(err) {
		return &domain.DuplicateHandoffError{ConversationID: h.ConversationID}
	}
	return err
}

// GetHandoff retrieves a handoff by ID.
func (s *SQLiteStore) GetHandoff(ctx context.Context, id string) (*domain.AgentHandoff, error) {
	return getHandoffWhere(ctx, s.db, `id = ?`, id)
}

// GetPendingHandoffByConversation retrieves the pending handoff of a conversation, if any.
func (s *SQLiteStore) GetPendingHandoffByConversation(ctx context.Context, conversationID string) (*domain.AgentHandoff, error) {
	return getHandoffWhere(ctx, s.db, `conversation_id = ? AND status = 'pending'`, conversationID)
}

// GetHandoffByChannelRef retrieves the handoff announced by a chat message.
func (s *SQLiteStore) GetHandoffByChannelRef(ctx context.Context, ref string) (*domain.AgentHandoff, error) {
	return getHandoffWhere(ctx, s.db, `channel_message_ref = ?`, ref)
}

func getHandoffWhere(ctx context.Context, q queryer, where string, args ...any) (*domain.AgentHandoff, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+handoffColumns+` FROM agent_handoffs WHERE `+where+` ORDER BY created_at DESC LIMIT 1`, args...)
	h, err := scanHandoff(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ListPendingHandoffs lists pending handoffs addressed to an agent, oldest first.
func (s *SQLiteStore) ListPendingHandoffs(ctx context.Context, agentID string) ([]domain.AgentHandoffWithAgents, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.conversation_id, h.from_agent_id, h.to_agent_id, h.reason, h.key_points, h.context_summary,
			h.status, h.channel_message_ref, h.decline_reason, h.created_at, h.accepted_at, h.resolved_at,
			COALESCE(fa.name, ''), COALESCE(ta.name, '')
		 FROM agent_handoffs h
		 LEFT JOIN agents fa ON fa.agent_id = h.from_agent_id
		 LEFT JOIN agents ta ON ta.agent_id = h.to_agent_id
		 WHERE h.to_agent_id = ? AND h.status = 'pending'
		 ORDER BY h.created_at ASC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AgentHandoffWithAgents
	for rows.Next() {
		var item domain.AgentHandoffWithAgents
		if _, err := scanHandoffInto(rows, &item.AgentHandoff, &item.FromAgentName, &item.ToAgentName); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// SetHandoffChannelRef records the chat message that announced a handoff.
func (s *SQLiteStore) SetHandoffChannelRef(ctx context.Context, id, ref string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE agent_handoffs SET channel_message_ref = ? WHERE id = ?`, ref, id)
	return err
}

// AcceptHandoff moves a pending handoff addressed to agentID to accepted.
// It returns nil when the predicate matched no row.
func (s *SQLiteStore) AcceptHandoff(ctx context.Context, id, agentID string, at time.Time) (*domain.AgentHandoff, error) {
	return s.transitionHandoff(ctx,
		`UPDATE agent_handoffs SET status = 'accepted', accepted_at = ?
		 WHERE id = ? AND to_agent_id = ? AND status = 'pending'`,
		id, at.UTC(), id, agentID)
}

// DeclineHandoff moves a pending handoff addressed to agentID to declined.
func (s *SQLiteStore) DeclineHandoff(ctx context.Context, id, agentID, reason string, at time.Time) (*domain.AgentHandoff, error) {
	return s.transitionHandoff(ctx,
		`UPDATE agent_handoffs SET status = 'declined', resolved_at = ?, decline_reason = ?
		 WHERE id = ? AND to_agent_id = ? AND status = 'pending'`,
		id, at.UTC(), nullString(reason), id, agentID)
}

// CancelHandoff moves a pending handoff sent by agentID to cancelled.
func (s *SQLiteStore) CancelHandoff(ctx context.Context, id, agentID string, at time.Time) (*domain.AgentHandoff, error) {
	return s.transitionHandoff(ctx,
		`UPDATE agent_handoffs SET status = 'cancelled', resolved_at = ?
		 WHERE id = ? AND from_agent_id = ? AND status = 'pending'`,
		id, at.UTC(), id, agentID)
}

// CompleteHandoff moves an accepted handoff to completed and transfers
// conversation ownership to the accepting agent in the same transaction.
func (s *SQLiteStore) CompleteHandoff(ctx context.Context, id, agentID string, at time.Time) (*domain.AgentHandoff, error) {
	var out *domain.AgentHandoff
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := execAffected(ctx, tx,
			`UPDATE agent_handoffs SET status = 'completed', resolved_at = ?
			 WHERE id = ? AND to_agent_id = ? AND status = 'accepted'`,
			at.UTC(), id, agentID)
		if err != nil || !ok {
			return err
		}
		h, err := getHandoffWhere(ctx, tx, `id = ?`, id)
		if err != nil {
			return err
		}
		if err := setConversationOwner(ctx, tx, h.ConversationID, h.ToAgentID, at); err != nil {
			return err
		}
		out = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) transitionHandoff(ctx context.Context, query, id string, args ...any) (*domain.AgentHandoff, error) {
	var out *domain.AgentHandoff
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := execAffected(ctx, tx, query, args...)
		if err != nil || !ok {
			return err
		}
		out, err = getHandoffWhere(ctx, tx, `id = ?`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanHandoff(row rowScanner) (*domain.AgentHandoff, error) {
	var h domain.AgentHandoff
	return scanHandoffInto(row, &h)
}

func scanHandoffInto(row rowScanner, h *domain.AgentHandoff, extra ...any) (*domain.AgentHandoff, error) {
	var keyPoints, summary, channelRef, declineReason sql.NullString
	var acceptedAt, resolvedAt sql.NullTime
	dest := []any{&h.ID, &h.ConversationID, &h.FromAgentID, &h.ToAgentID, &h.Reason, &keyPoints, &summary,
		&h.Status, &channelRef, &declineReason, &h.CreatedAt, &acceptedAt, &resolvedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	h.KeyPoints = unmarshalStrings(keyPoints)
	h.ContextSummary = summary.String
	h.ChannelMessageRef = channelRef.String
	h.DeclineReason = declineReason.String
	h.CreatedAt = h.CreatedAt.UTC()
	h.AcceptedAt = timePtr(acceptedAt)
	h.ResolvedAt = timePtr(resolvedAt)
	return h, nil
}
