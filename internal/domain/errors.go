package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind names a class of guard failure callers can branch on.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindAgentUnavailable  ErrorKind = "agent_unavailable"
	KindSelfHandoff       ErrorKind = "self_handoff"
	KindDuplicateHandoff  ErrorKind = "duplicate_handoff"
	KindDuplicateApproval ErrorKind = "duplicate_approval"
	KindNotRecipient      ErrorKind = "not_recipient"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindAlreadyResolved   ErrorKind = "already_resolved"
	KindRateLimit         ErrorKind = "rate_limit"
	KindActionDisabled    ErrorKind = "action_disabled"
	KindStaleState        ErrorKind = "stale_state"
	KindValidation        ErrorKind = "validation"
	KindInternal          ErrorKind = "internal"
)

// KindOf returns the kind of the first typed error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k interface{ Kind() ErrorKind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// KindFromMessage recovers the kind from an error that crossed a wire as
// "<kind>: <message>" text.
func KindFromMessage(msg string) ErrorKind {
	prefix, _, ok := strings.Cut(msg, ": ")
	if !ok {
		return KindInternal
	}
	switch k := ErrorKind(prefix); k {
	case KindNotFound, KindAgentUnavailable, KindSelfHandoff, KindDuplicateHandoff,
		KindDuplicateApproval, KindNotRecipient, KindInvalidTransition, KindAlreadyResolved,
		KindRateLimit, KindActionDisabled, KindStaleState, KindValidation:
		return k
	}
	return KindInternal
}

// NotFoundError reports a missing agent, handoff, approval or action.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string   { return fmt.Sprintf("%s %q not found", e.Entity, e.ID) }
func (e *NotFoundError) Kind() ErrorKind { return KindNotFound }

// AgentUnavailableError reports an agent that is not active.
type AgentUnavailableError struct {
	AgentID string
	Status  AgentStatus
}

func (e *AgentUnavailableError) Error() string {
	return fmt.Sprintf("agent %q is unavailable (status %s)", e.AgentID, e.Status)
}
func (e *AgentUnavailableError) Kind() ErrorKind { return KindAgentUnavailable }

// SelfHandoffError reports a handoff whose sender and recipient are the same agent.
type SelfHandoffError struct {
	AgentID string
}

func (e *SelfHandoffError) Error() string {
	return fmt.Sprintf("agent %q cannot hand off to itself", e.AgentID)
}
func (e *SelfHandoffError) Kind() ErrorKind { return KindSelfHandoff }

// DuplicateHandoffError reports a conversation that already has a pending handoff.
type DuplicateHandoffError struct {
	ConversationID    string
	ExistingHandoffID string
}

func (e *DuplicateHandoffError) Error() string {
	if e.ExistingHandoffID == "" {
		return fmt.Sprintf("conversation %q already has a pending handoff", e.ConversationID)
	}
	return fmt.Sprintf("conversation %q already has pending handoff %s", e.ConversationID, e.ExistingHandoffID)
}
func (e *DuplicateHandoffError) Kind() ErrorKind { return KindDuplicateHandoff }

// DuplicateApprovalError reports an action log entry that already has a pending approval request.
type DuplicateApprovalError struct {
	ActionLogID        string
	ExistingApprovalID string
}

func (e *DuplicateApprovalError) Error() string {
	return fmt.Sprintf("action %q already has a pending approval request", e.ActionLogID)
}
func (e *DuplicateApprovalError) Kind() ErrorKind { return KindDuplicateApproval }

// NotRecipientError reports a caller that is not authorized for a transition.
type NotRecipientError struct {
	HandoffID string
	AgentID   string
	Expected  string
}

func (e *NotRecipientError) Error() string {
	return fmt.Sprintf("agent %q is not authorized for handoff %s", e.AgentID, e.HandoffID)
}
func (e *NotRecipientError) Kind() ErrorKind { return KindNotRecipient }

// InvalidTransitionError reports a state machine transition that is not legal from the current state.
type InvalidTransitionError struct {
	Entity    string
	ID        string
	Current   string
	Attempted string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot transition from %s to %s", e.Entity, e.ID, e.Current, e.Attempted)
}
func (e *InvalidTransitionError) Kind() ErrorKind { return KindInvalidTransition }

// AlreadyResolvedError reports a transition attempted on a record that has left its open state.
type AlreadyResolvedError struct {
	Entity    string
	ID        string
	Current   string
	Attempted string
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("%s %s is already %s; cannot transition to %s", e.Entity, e.ID, e.Current, e.Attempted)
}
func (e *AlreadyResolvedError) Kind() ErrorKind { return KindAlreadyResolved }

// RateLimitError reports an exceeded maxPerDay, cooldown or agent-wide throttle.
type RateLimitError struct {
	AgentID    string
	ActionType string
	Detail     string
}

func (e *RateLimitError) Error() string {
	msg := fmt.Sprintf("rate limit exceeded for agent %q action %q", e.AgentID, e.ActionType)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
func (e *RateLimitError) Kind() ErrorKind { return KindRateLimit }

// ActionDisabledError reports an action type disabled by policy.
type ActionDisabledError struct {
	AgentID    string
	ActionType string
}

func (e *ActionDisabledError) Error() string {
	return fmt.Sprintf("action %q is disabled for agent %q", e.ActionType, e.AgentID)
}
func (e *ActionDisabledError) Kind() ErrorKind { return KindActionDisabled }

// StaleStateError reports a conditional update that affected zero rows.
type StaleStateError struct {
	Entity    string
	ID        string
	Current   string
	Attempted string
}

func (e *StaleStateError) Error() string {
	if e.Current == "" {
		return fmt.Sprintf("%s %s changed concurrently; %s not applied", e.Entity, e.ID, e.Attempted)
	}
	return fmt.Sprintf("%s %s is %s; %s not applied", e.Entity, e.ID, e.Current, e.Attempted)
}
func (e *StaleStateError) Kind() ErrorKind { return KindStaleState }

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
func (e *ValidationError) Kind() ErrorKind { return KindValidation }
