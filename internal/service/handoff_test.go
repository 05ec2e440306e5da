package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
	store "github.com/xiaot623/gogo/agentgate/internal/repository"
	"github.com/xiaot623/gogo/agentgate/tests/helpers"
)

func handoffFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.agent(t, "A", "A")
	f.agent(t, "B", "B")
	f.agent(t, "C", "C")
	return f
}

func initiate(t *testing.T, f *fixture, conversationID string) *domain.AgentHandoff {
	t.Helper()
	h, err := f.svc.InitiateHandoff(context.Background(), domain.InitiateHandoffInput{
		FromAgentID:    "A",
		ToAgentID:      "B",
		ConversationID: conversationID,
		Reason:         "billing question",
	})
	require.NoError(t, err)
	return h
}

func TestHandoffBillingScenario(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()
	helpers.SeedConversation(t, f.store, "C-1", f.clock.Now().Add(-time.Hour),
		helpers.Msg{Role: domain.RoleUser, Content: "Hi there"},
		helpers.Msg{Role: domain.RoleAssistant, Content: "Hello! How can I help?"},
		helpers.Msg{Role: domain.RoleUser, Content: "Why was I charged twice?"},
	)

	h := initiate(t, f, "C-1")
	assert.Equal(t, domain.HandoffStatusPending, h.Status)
	assert.Equal(t, []string{"Why was I charged twice?"}, h.KeyPoints)

	hc, err := f.svc.AcceptHandoff(ctx, h.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, "A", hc.FromAgentName)
	assert.Equal(t, "billing question", hc.Reason)
	require.Len(t, hc.ConversationHistory, 3)
	assert.Equal(t, "Hi there", hc.ConversationHistory[0].Content)
	assert.Equal(t, "Why was I charged twice?", hc.ConversationHistory[2].Content)

	done, err := f.svc.CompleteHandoff(ctx, h.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, domain.HandoffStatusCompleted, done.Status)
	assert.NotNil(t, done.ResolvedAt)

	_, err = f.svc.AcceptHandoff(ctx, h.ID, "B")
	requireKind(t, err, domain.KindAlreadyResolved)

	conv, err := f.svc.GetConversation(ctx, "C-1")
	require.NoError(t, err)
	assert.Equal(t, "B", conv.OwnerAgentID)

	// Every transition left an audit entry.
	for _, actionType := range []string{domain.ActionTypeHandoffInitiate, domain.ActionTypeHandoffAccept, domain.ActionTypeHandoffComplete} {
		entries, err := f.svc.ListActionLogs(ctx, domain.ActionLogFilter{ActionType: actionType, ConversationID: "C-1"})
		require.NoError(t, err)
		assert.Len(t, entries, 1, actionType)
	}
}

func TestInitiateHandoffGuards(t *testing.T) {
	f := handoffFixture(t)
	helpers.SeedAgent(t, f.store, "P", "Paused", domain.AgentStatusPaused)
	ctx := context.Background()

	_, err := f.svc.InitiateHandoff(ctx, domain.InitiateHandoffInput{FromAgentID: "A", ToAgentID: "A", ConversationID: "c", Reason: "r"})
	requireKind(t, err, domain.KindSelfHandoff)

	_, err = f.svc.InitiateHandoff(ctx, domain.InitiateHandoffInput{FromAgentID: "A", ToAgentID: "P", ConversationID: "c", Reason: "r"})
	requireKind(t, err, domain.KindAgentUnavailable)

	_, err = f.svc.InitiateHandoff(ctx, domain.InitiateHandoffInput{FromAgentID: "P", ToAgentID: "A", ConversationID: "c", Reason: "r"})
	requireKind(t, err, domain.KindAgentUnavailable)

	_, err = f.svc.InitiateHandoff(ctx, domain.InitiateHandoffInput{FromAgentID: "A", ToAgentID: "nobody", ConversationID: "c", Reason: "r"})
	requireKind(t, err, domain.KindNotFound)

	_, err = f.svc.InitiateHandoff(ctx, domain.InitiateHandoffInput{FromAgentID: "A", ToAgentID: "B", Reason: "r"})
	requireKind(t, err, domain.KindValidation)
}

func TestInitiateHandoffDuplicate(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()

	first := initiate(t, f, "C-1")

	_, err := f.svc.InitiateHandoff(ctx, domain.InitiateHandoffInput{FromAgentID: "A", ToAgentID: "C", ConversationID: "C-1", Reason: "again"})
	requireKind(t, err, domain.KindDuplicateHandoff)
	var dup *domain.DuplicateHandoffError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingHandoffID)

	// Once the first is resolved the conversation can be handed off again.
	_, err = f.svc.DeclineHandoff(ctx, first.ID, "B", "busy")
	require.NoError(t, err)
	_, err = f.svc.InitiateHandoff(ctx, domain.InitiateHandoffInput{FromAgentID: "A", ToAgentID: "C", ConversationID: "C-1", Reason: "again"})
	require.NoError(t, err)
}

func TestHandoffConcurrentInitiateKeepsOnePending(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.InitiateHandoff(ctx, domain.InitiateHandoffInput{
				FromAgentID: "A", ToAgentID: "B", ConversationID: "C-race", Reason: "race",
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		requireKind(t, err, domain.KindDuplicateHandoff)
	}
	assert.Equal(t, 1, ok)
}

func TestHandoffNotRecipient(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()

	h := initiate(t, f, "C-1")

	_, err := f.svc.AcceptHandoff(ctx, h.ID, "C")
	requireKind(t, err, domain.KindNotRecipient)
	_, err = f.svc.DeclineHandoff(ctx, h.ID, "A", "")
	requireKind(t, err, domain.KindNotRecipient)

	_, err = f.svc.AcceptHandoff(ctx, h.ID, "B")
	require.NoError(t, err)
	_, err = f.svc.CompleteHandoff(ctx, h.ID, "A")
	requireKind(t, err, domain.KindNotRecipient)

	_, err = f.svc.CompleteHandoff(ctx, h.ID, "B")
	require.NoError(t, err)
	// Wrong party wins over wrong state.
	_, err = f.svc.AcceptHandoff(ctx, h.ID, "C")
	requireKind(t, err, domain.KindNotRecipient)
}

type brokenHistoryStore struct {
	store.Store
}

func (brokenHistoryStore) GetConversationMessages(context.Context, string, int) ([]domain.ConversationMessage, error) {
	return nil, errors.New("history unavailable")
}

func TestAcceptHandoffWithoutHistoryStillAccepts(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()
	helpers.SeedConversation(t, f.store, "C-9", f.clock.Now().Add(-time.Hour),
		helpers.Msg{Role: domain.RoleUser, Content: "Why was I charged twice?"},
	)
	h := initiate(t, f, "C-9")
	require.Equal(t, []string{"Why was I charged twice?"}, h.KeyPoints)

	f.svc.store = brokenHistoryStore{Store: f.store}
	hc, err := f.svc.AcceptHandoff(ctx, h.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, h.ID, hc.HandoffID)
	assert.Equal(t, "billing question", hc.Reason)
	assert.Equal(t, h.KeyPoints, hc.KeyPoints)
	assert.Empty(t, hc.ConversationHistory)

	got, err := f.svc.GetHandoff(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HandoffStatusAccepted, got.Status)
}

func TestHandoffTransitionErrors(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()

	h := initiate(t, f, "C-1")
	_, err := f.svc.CompleteHandoff(ctx, h.ID, "B")
	requireKind(t, err, domain.KindInvalidTransition)
	var inv *domain.InvalidTransitionError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "pending", inv.Current)
	assert.Equal(t, "completed", inv.Attempted)

	declined, err := f.svc.DeclineHandoff(ctx, h.ID, "B", "out of office")
	require.NoError(t, err)
	assert.Equal(t, "out of office", declined.DeclineReason)

	_, err = f.svc.AcceptHandoff(ctx, h.ID, "B")
	requireKind(t, err, domain.KindAlreadyResolved)
	_, err = f.svc.DeclineHandoff(ctx, h.ID, "B", "")
	requireKind(t, err, domain.KindAlreadyResolved)
	_, err = f.svc.CompleteHandoff(ctx, h.ID, "B")
	requireKind(t, err, domain.KindAlreadyResolved)

	_, err = f.svc.AcceptHandoff(ctx, "ho_missing", "B")
	requireKind(t, err, domain.KindNotFound)
}

func TestCancelHandoff(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()

	h := initiate(t, f, "C-1")
	_, err := f.svc.CancelHandoff(ctx, h.ID, "B")
	requireKind(t, err, domain.KindNotRecipient)

	cancelled, err := f.svc.CancelHandoff(ctx, h.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.HandoffStatusCancelled, cancelled.Status)

	again, err := f.svc.CancelHandoff(ctx, h.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.HandoffStatusCancelled, again.Status)

	_, err = f.svc.AcceptHandoff(ctx, h.ID, "B")
	requireKind(t, err, domain.KindAlreadyResolved)

	accepted := initiate(t, f, "C-2")
	_, err = f.svc.AcceptHandoff(ctx, accepted.ID, "B")
	require.NoError(t, err)
	_, err = f.svc.CancelHandoff(ctx, accepted.ID, "A")
	requireKind(t, err, domain.KindAlreadyResolved)
}

func TestHandoffConcurrentAcceptDecline(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()
	h := initiate(t, f, "C-1")

	var wg sync.WaitGroup
	var acceptErr, declineErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, acceptErr = f.svc.AcceptHandoff(ctx, h.ID, "B")
	}()
	go func() {
		defer wg.Done()
		_, declineErr = f.svc.DeclineHandoff(ctx, h.ID, "B", "")
	}()
	wg.Wait()

	if (acceptErr == nil) == (declineErr == nil) {
		t.Fatalf("expected exactly one winner, got accept=%v decline=%v", acceptErr, declineErr)
	}
	loser := acceptErr
	if loser == nil {
		loser = declineErr
	}
	kind := domain.KindOf(loser)
	assert.Contains(t, []domain.ErrorKind{domain.KindAlreadyResolved, domain.KindStaleState}, kind)

	got, err := f.svc.GetHandoff(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, got.Status == domain.HandoffStatusAccepted || got.Status == domain.HandoffStatusDeclined)
}

func TestAutoAcceptIfEligible(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()

	h := initiate(t, f, "C-1")

	res := f.svc.AutoAcceptIfEligible(ctx, h.ID, "C")
	assert.False(t, res.Accepted)
	assert.NotEmpty(t, res.Reason)

	_, err := f.svc.UpdateAgentStatus(ctx, "B", domain.AgentStatusTraining)
	require.NoError(t, err)
	res = f.svc.AutoAcceptIfEligible(ctx, h.ID, "B")
	assert.False(t, res.Accepted)
	assert.Contains(t, res.Reason, "unavailable")

	_, err = f.svc.UpdateAgentStatus(ctx, "B", domain.AgentStatusActive)
	require.NoError(t, err)
	res = f.svc.AutoAcceptIfEligible(ctx, h.ID, "B")
	require.True(t, res.Accepted, res.Reason)
	require.NotNil(t, res.Context)
	assert.Equal(t, h.ID, res.Context.HandoffID)

	res = f.svc.AutoAcceptIfEligible(ctx, h.ID, "B")
	assert.False(t, res.Accepted)

	res = f.svc.AutoAcceptIfEligible(ctx, "ho_missing", "B")
	assert.False(t, res.Accepted)
}

func TestInitiateAndNotifyHandoff(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()

	res, err := f.svc.InitiateAndNotifyHandoff(ctx, domain.InitiateHandoffInput{
		FromAgentID: "A", ToAgentID: "B", ConversationID: "C-1", Reason: "billing question",
	})
	require.NoError(t, err)
	assert.True(t, res.NotificationSent)
	assert.NotEmpty(t, res.Handoff.ChannelMessageRef)

	msg := f.notifier.last()
	assert.Equal(t, domain.MessageTypeHandoff, msg.MessageType)
	assert.Equal(t, "B", msg.ToAgentID)
	assert.Contains(t, msg.Content, "billing question")
	assert.Equal(t, res.Handoff.ID, msg.Context["handoff_id"])

	stored, err := f.svc.GetHandoff(ctx, res.Handoff.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Handoff.ChannelMessageRef, stored.ChannelMessageRef)

	out, err := f.svc.HandleChannelAction(ctx, domain.ChannelActionRequest{
		MessageRef: stored.ChannelMessageRef, AgentID: "B", Action: domain.ChannelActionAccept,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.HandoffStatusAccepted, out.Handoff.Status)
	require.NotNil(t, out.Context)
}

func TestInitiateAndNotifyHandoffSurvivesNotificationFailure(t *testing.T) {
	f := handoffFixture(t)
	f.notifier.fail = true
	ctx := context.Background()

	res, err := f.svc.InitiateAndNotifyHandoff(ctx, domain.InitiateHandoffInput{
		FromAgentID: "A", ToAgentID: "B", ConversationID: "C-1", Reason: "billing question",
	})
	require.NoError(t, err)
	assert.False(t, res.NotificationSent)
	assert.Equal(t, errBridgeDown.Error(), res.NotificationError)

	stored, err := f.svc.GetHandoff(ctx, res.Handoff.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HandoffStatusPending, stored.Status)
}

func TestHandleChannelActionDecline(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()

	res, err := f.svc.InitiateAndNotifyHandoff(ctx, domain.InitiateHandoffInput{
		FromAgentID: "A", ToAgentID: "B", ConversationID: "C-1", Reason: "billing question",
	})
	require.NoError(t, err)

	out, err := f.svc.HandleChannelAction(ctx, domain.ChannelActionRequest{
		MessageRef: res.Handoff.ChannelMessageRef, AgentID: "B", Action: domain.ChannelActionDecline,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.HandoffStatusDeclined, out.Handoff.Status)

	_, err = f.svc.HandleChannelAction(ctx, domain.ChannelActionRequest{MessageRef: "C1:none", AgentID: "B", Action: domain.ChannelActionAccept})
	requireKind(t, err, domain.KindNotFound)

	_, err = f.svc.HandleChannelAction(ctx, domain.ChannelActionRequest{MessageRef: "C1:none", AgentID: "B", Action: "snooze"})
	requireKind(t, err, domain.KindValidation)
}

func TestListPendingHandoffs(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()

	initiate(t, f, "C-1")
	f.clock.Advance(time.Second)
	second := initiate(t, f, "C-2")
	_, err := f.svc.CancelHandoff(ctx, second.ID, "A")
	require.NoError(t, err)

	items, err := f.svc.ListPendingHandoffs(ctx, "B")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "C-1", items[0].ConversationID)
	assert.Equal(t, "A", items[0].FromAgentName)
	assert.Equal(t, "B", items[0].ToAgentName)
}

func TestBuildHandoffContextIsDeterministic(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()
	helpers.SeedConversation(t, f.store, "C-1", f.clock.Now().Add(-time.Hour),
		helpers.Msg{Role: domain.RoleUser, Content: "I need a refund"},
		helpers.Msg{Role: domain.RoleAssistant, Content: "Sure, which order?"},
		helpers.Msg{Role: domain.RoleUser, Content: "Order 42, please hurry"},
		helpers.Msg{Role: domain.RoleUser, Content: "thanks"},
	)

	h := initiate(t, f, "C-1")
	first, err := f.svc.BuildHandoffContext(ctx, h.ID)
	require.NoError(t, err)
	second, err := f.svc.BuildHandoffContext(ctx, h.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"Order 42, please hurry", "I need a refund"}, first.KeyPoints)
	assert.Equal(t, first, second)
	assert.Equal(t, "4 messages (3 from user, 1 from assistant); last user message: \"thanks\"", first.ContextSummary)
}

func TestPropertyKeyPointsRoundTrip(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()
	n := 0

	rapid.Check(t, func(rt *rapid.T) {
		n++
		conversationID := fmt.Sprintf("conv-%d", n)
		msgs := rapid.SliceOfN(rapid.Custom(func(rt *rapid.T) helpers.Msg {
			return helpers.Msg{
				Role:    rapid.SampledFrom([]string{domain.RoleUser, domain.RoleAssistant}).Draw(rt, "role"),
				Content: rapid.SampledFrom([]string{"hello", "can you help?", "I want a refund", "please call me", "ok"}).Draw(rt, "content"),
			}
		}), 0, 30).Draw(rt, "messages")

		start := f.clock.Now().Add(-time.Hour)
		for i, m := range msgs {
			require.NoError(rt, f.store.AppendConversationMessage(ctx, &domain.ConversationMessage{
				MessageID:      fmt.Sprintf("%s-%03d", conversationID, i),
				ConversationID: conversationID,
				Role:           m.Role,
				Content:        m.Content,
				Timestamp:      start.Add(time.Duration(i) * time.Second),
			}))
		}

		h, err := f.svc.InitiateHandoff(ctx, domain.InitiateHandoffInput{
			FromAgentID: "A", ToAgentID: "B", ConversationID: conversationID, Reason: "r",
		})
		require.NoError(rt, err)

		hc, err := f.svc.BuildHandoffContext(ctx, h.ID)
		require.NoError(rt, err)

		window, err := f.store.GetConversationMessages(ctx, conversationID, f.svc.config.HandoffHistoryLimit)
		require.NoError(rt, err)
		want := ExtractKeyPoints(window, f.svc.config.HandoffKeyPointLimit)
		require.Equal(rt, want, hc.KeyPoints)
		require.LessOrEqual(rt, len(hc.KeyPoints), f.svc.config.HandoffKeyPointLimit)
	})
}

type handoffOp struct {
	to    domain.HandoffStatus
	actor string
}

func TestPropertyHandoffStateMachine(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()
	n := 0

	rapid.Check(t, func(rt *rapid.T) {
		n++
		h, err := f.svc.InitiateHandoff(ctx, domain.InitiateHandoffInput{
			FromAgentID: "A", ToAgentID: "B", ConversationID: fmt.Sprintf("sm-%d", n), Reason: "r",
		})
		require.NoError(rt, err)

		status := domain.HandoffStatusPending
		ops := rapid.SliceOfN(rapid.Custom(func(rt *rapid.T) handoffOp {
			return handoffOp{
				to:    rapid.SampledFrom([]domain.HandoffStatus{domain.HandoffStatusAccepted, domain.HandoffStatusDeclined, domain.HandoffStatusCompleted, domain.HandoffStatusCancelled}).Draw(rt, "op"),
				actor: rapid.SampledFrom([]string{"A", "B", "C"}).Draw(rt, "actor"),
			}
		}), 1, 6).Draw(rt, "ops")

		for _, op := range ops {
			var err error
			switch op.to {
			case domain.HandoffStatusAccepted:
				_, err = f.svc.AcceptHandoff(ctx, h.ID, op.actor)
			case domain.HandoffStatusDeclined:
				_, err = f.svc.DeclineHandoff(ctx, h.ID, op.actor, "")
			case domain.HandoffStatusCompleted:
				_, err = f.svc.CompleteHandoff(ctx, h.ID, op.actor)
			case domain.HandoffStatusCancelled:
				_, err = f.svc.CancelHandoff(ctx, h.ID, op.actor)
			}

			party := "B"
			if op.to == domain.HandoffStatusCancelled {
				party = "A"
			}
			switch {
			case op.actor != party:
				requireKind(rt, err, domain.KindNotRecipient)
			case status.CanTransition(op.to):
				require.NoError(rt, err)
				status = op.to
			case op.to == domain.HandoffStatusCancelled && status == domain.HandoffStatusCancelled:
				require.NoError(rt, err)
			default:
				require.Error(rt, err)
				kind := domain.KindOf(err)
				if kind != domain.KindAlreadyResolved && kind != domain.KindInvalidTransition {
					rt.Fatalf("unexpected error kind %s for %s from %s", kind, op.to, status)
				}
			}

			got, err := f.svc.GetHandoff(ctx, h.ID)
			require.NoError(rt, err)
			require.Equal(rt, status, got.Status)
		}
	})
}
