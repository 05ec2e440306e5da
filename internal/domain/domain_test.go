package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		from HandoffStatus
		to   HandoffStatus
		want ErrorKind
	}{
		{HandoffStatusPending, HandoffStatusAccepted, ""},
		{HandoffStatusPending, HandoffStatusDeclined, ""},
		{HandoffStatusPending, HandoffStatusCancelled, ""},
		{HandoffStatusPending, HandoffStatusCompleted, KindInvalidTransition},
		{HandoffStatusAccepted, HandoffStatusCompleted, ""},
		{HandoffStatusAccepted, HandoffStatusAccepted, KindAlreadyResolved},
		{HandoffStatusAccepted, HandoffStatusDeclined, KindAlreadyResolved},
		{HandoffStatusAccepted, HandoffStatusCancelled, KindAlreadyResolved},
		{HandoffStatusDeclined, HandoffStatusAccepted, KindAlreadyResolved},
		{HandoffStatusDeclined, HandoffStatusCompleted, KindAlreadyResolved},
		{HandoffStatusCompleted, HandoffStatusCompleted, KindAlreadyResolved},
		{HandoffStatusCancelled, HandoffStatusCancelled, KindAlreadyResolved},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			err := CheckTransition(&AgentHandoff{ID: "ho_1", Status: tt.from}, tt.to)
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []HandoffStatus{HandoffStatusDeclined, HandoffStatusCompleted, HandoffStatusCancelled} {
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, HandoffStatusPending.Terminal())
	assert.False(t, HandoffStatusAccepted.Terminal())

	assert.False(t, ApprovalStatusPending.Terminal())
	assert.True(t, ApprovalStatusTimeout.Terminal())
	assert.False(t, ApprovalStatus("maybe").Valid())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))

	wrapped := fmt.Errorf("outer: %w", &NotFoundError{Entity: "agent", ID: "a1"})
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, `outer: agent "a1" not found`, wrapped.Error())

	var dup *DuplicateHandoffError
	err := fmt.Errorf("create: %w", &DuplicateHandoffError{ConversationID: "c1", ExistingHandoffID: "ho_1"})
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "ho_1", dup.ExistingHandoffID)
}

func TestKindFromMessage(t *testing.T) {
	assert.Equal(t, KindAlreadyResolved, KindFromMessage("already_resolved: handoff h1 is already accepted"))
	assert.Equal(t, KindNotFound, KindFromMessage(`not_found: handoff "x" not found`))
	assert.Equal(t, KindInternal, KindFromMessage("internal: disk full"))
	assert.Equal(t, KindInternal, KindFromMessage("dial tcp: connection refused"))
	assert.Equal(t, KindInternal, KindFromMessage("boom"))
}

func TestDefaultActionAutonomy(t *testing.T) {
	row, ok := DefaultActionAutonomy("process_payment")
	require.True(t, ok)
	assert.Equal(t, AutonomyHumanRequired, row.AutonomyLevel)
	assert.Equal(t, ActionCategoryCommerce, row.Category)
	assert.Equal(t, "process_payment", row.ActionType)

	row, ok = DefaultActionAutonomy("launch_rocket")
	assert.False(t, ok)
	assert.Equal(t, AutonomyHumanRequired, row.AutonomyLevel)
	assert.True(t, row.Enabled)
	assert.Equal(t, ActionCategoryOther, CategoryFor("launch_rocket"))

	types := DefaultActionTypes()
	assert.IsIncreasing(t, types)
	assert.Contains(t, types, "answer_question")
}

func TestBlockedResultErrors(t *testing.T) {
	r := &AutonomyCheckResult{AgentID: "a1", ActionType: "send_email", Allowed: true}
	assert.NoError(t, r.Err())

	r.Block(BlockReasonRateLimit, "max 3 per day")
	assert.Equal(t, "rate limit: max 3 per day", r.Reason)
	assert.Equal(t, KindRateLimit, KindOf(r.Err()))

	r.Block(BlockReasonAgentUnavailable, string(AgentStatusPaused))
	var unavailable *AgentUnavailableError
	require.ErrorAs(t, r.Err(), &unavailable)
	assert.Equal(t, AgentStatusPaused, unavailable.Status)

	r.Block(BlockReasonDisabled, "")
	assert.Equal(t, "action disabled", r.Reason)
	assert.Equal(t, KindActionDisabled, KindOf(r.Err()))
}

func TestAuthorized(t *testing.T) {
	approved, rejected := ApprovalStatusApproved, ApprovalStatusRejected
	assert.True(t, (&ActionLogEntry{}).Authorized())
	assert.False(t, (&ActionLogEntry{RequiresApproval: true}).Authorized())
	assert.False(t, (&ActionLogEntry{RequiresApproval: true, ApprovalStatus: &rejected}).Authorized())
	assert.True(t, (&ActionLogEntry{RequiresApproval: true, ApprovalStatus: &approved}).Authorized())
}
