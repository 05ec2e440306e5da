package helpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	store "github.com/xiaot623/gogo/agentgate/internal/repository"
)

func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// SeedAgent registers an agent directly in the store.
func SeedAgent(t *testing.T, s store.Store, agentID, name string, status domain.AgentStatus) *domain.Agent {
	t.Helper()

	now := time.Now().UTC()
	agent := &domain.Agent{
		AgentID:   agentID,
		Name:      name,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.UpsertAgent(context.Background(), agent); err != nil {
		t.Fatalf("failed to seed agent %s: %v", agentID, err)
	}
	return agent
}

// Msg is a role/content pair for SeedConversation.
type Msg struct {
	Role    string
	Content string
}

// SeedConversation appends msgs to a conversation one second apart, oldest first.
func SeedConversation(t *testing.T, s store.Store, conversationID string, start time.Time, msgs ...Msg) {
	t.Helper()

	for i, m := range msgs {
		err := s.AppendConversationMessage(context.Background(), &domain.ConversationMessage{
			MessageID:      fmt.Sprintf("%s-m%03d", conversationID, i),
			ConversationID: conversationID,
			Role:           m.Role,
			Content:        m.Content,
			Timestamp:      start.Add(time.Duration(i) * time.Second).UTC(),
		})
		if err != nil {
			t.Fatalf("failed to seed message %d: %v", i, err)
		}
	}
}
