package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// AppendConversationMessage appends a message to a conversation log.
func (s *SQLiteStore) AppendConversationMessage(ctx context.Context, msg *domain.ConversationMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_messages (message_id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.MessageID, msg.ConversationID, msg.Role, msg.Content, msg.Timestamp.UTC())
	return err
}

// GetConversationMessages returns up to limit messages of a conversation, newest first.
func (s *SQLiteStore) GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]domain.ConversationMessage, error) {
	query := `SELECT message_id, conversation_id, role, content, created_at FROM conversation_messages
		WHERE conversation_id = ? ORDER BY created_at DESC, message_id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ConversationMessage
	for rows.Next() {
		var msg domain.ConversationMessage
		if err := rows.Scan(&msg.MessageID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, err
		}
		msg.Timestamp = msg.Timestamp.UTC()
		out = append(out, msg)
	}
	return out, rows.Err()
}

// GetConversation retrieves the ownership record of a conversation.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, owner_agent_id, updated_at FROM conversations WHERE conversation_id = ?`,
		conversationID).Scan(&c.ConversationID, &c.OwnerAgentID, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetConversationOwner assigns a conversation to an agent.
func (s *SQLiteStore) SetConversationOwner(ctx context.Context, conversationID, ownerAgentID string, at time.Time) error {
	return setConversationOwner(ctx, s.db, conversationID, ownerAgentID, at)
}

func setConversationOwner(ctx context.Context, q queryer, conversationID, ownerAgentID string, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO conversations (conversation_id, owner_agent_id, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET owner_agent_id = excluded.owner_agent_id, updated_at = excluded.updated_at`,
		conversationID, ownerAgentID, at.UTC())
	return err
}
