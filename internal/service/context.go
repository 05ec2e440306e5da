package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

const keyPointMaxRunes = 100

var requestKeywords = []string{"please", "need", "want"}

// ExtractKeyPoints picks up to limit user messages that ask a question or make
// a request, scanning messages in the order given (newest first). Each point
// is cut to 100 characters. When nothing qualifies it returns a single
// message-count line.
func ExtractKeyPoints(messages []domain.ConversationMessage, limit int) []string {
	var points []string
	for _, msg := range messages {
		if limit > 0 && len(points) >= limit {
			break
		}
		if msg.Role != domain.RoleUser || !isRequest(msg.Content) {
			continue
		}
		points = append(points, truncateRunes(msg.Content, keyPointMaxRunes))
	}
	if len(points) == 0 {
		return []string{fmt.Sprintf("Conversation with %d messages", len(messages))}
	}
	return points
}

func isRequest(content string) bool {
	if strings.Contains(content, "?") {
		return true
	}
	lower := strings.ToLower(content)
	for _, kw := range requestKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SummarizeConversation describes a message window (newest first) in one line.
func SummarizeConversation(messages []domain.ConversationMessage) string {
	var users, assistants int
	var lastUser string
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleUser:
			if users == 0 {
				lastUser = msg.Content
			}
			users++
		case domain.RoleAssistant:
			assistants++
		}
	}
	summary := fmt.Sprintf("%d messages (%d from user, %d from assistant)", len(messages), users, assistants)
	if lastUser != "" {
		summary += fmt.Sprintf("; last user message: %q", truncateRunes(lastUser, keyPointMaxRunes))
	}
	return summary
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
