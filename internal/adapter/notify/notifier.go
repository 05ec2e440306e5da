// Package notify posts handoff and approval notifications to the chat channel
// and decodes the button presses that come back.
package notify

import (
	"context"
	"errors"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

// ErrDisabled is returned when no notification bridge is configured.
var ErrDisabled = errors.New("notification bridge not configured")

// Notifier delivers agent messages to the chat channel.
// The returned reference identifies the posted message so that later button
// presses can be correlated with the handoff or approval it announced.
type Notifier interface {
	PostAgentMessage(ctx context.Context, msg domain.AgentMessage) (messageRef string, err error)
}

// NopNotifier reports every delivery as failed with ErrDisabled.
type NopNotifier struct{}

func (NopNotifier) PostAgentMessage(context.Context, domain.AgentMessage) (string, error) {
	return "", ErrDisabled
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, msg domain.AgentMessage) (string, error)

func (f NotifierFunc) PostAgentMessage(ctx context.Context, msg domain.AgentMessage) (string, error) {
	return f(ctx, msg)
}
