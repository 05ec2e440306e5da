package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

func TestCheckAutonomyDefaults(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a1", "Agent One")
	ctx := context.Background()

	cases := []struct {
		actionType string
		level      domain.AutonomyLevel
		approval   bool
	}{
		{"answer_question", domain.AutonomyAutonomous, false},
		{"send_email", domain.AutonomySuggestAndConfirm, false},
		{"publish_content", domain.AutonomySuggestAndConfirm, true},
		{"process_payment", domain.AutonomyHumanRequired, true},
		{"issue_refund", domain.AutonomyHumanRequired, true},
	}
	for _, tc := range cases {
		t.Run(tc.actionType, func(t *testing.T) {
			res, err := f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: tc.actionType})
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, tc.level, res.Level)
			assert.Equal(t, tc.approval, res.RequiresApproval)
			assert.NoError(t, res.Err())
		})
	}
}

func TestCheckAutonomyUnknownActionFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a1", "Agent One")

	res, err := f.svc.CheckAutonomy(context.Background(), domain.AutonomyCheckInput{AgentID: "a1", ActionType: "launch_rocket"})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, domain.AutonomyHumanRequired, res.Level)
	assert.True(t, res.RequiresApproval)
}

func TestCheckAutonomyDisabledOverride(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a1", "Agent One")
	ctx := context.Background()

	_, err := f.svc.UpsertActionAutonomy(ctx, domain.ActionAutonomy{
		AgentID:       "a1",
		ActionType:    "answer_question",
		AutonomyLevel: domain.AutonomyAutonomous,
		Enabled:       false,
	})
	require.NoError(t, err)

	res, err := f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: "answer_question"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "action disabled", res.Reason)
	requireKind(t, res.Err(), domain.KindActionDisabled)

	// Removing the override restores the default row.
	require.NoError(t, f.svc.DeleteActionAutonomy(ctx, "a1", "answer_question"))
	res, err = f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: "answer_question"})
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	requireKind(t, f.svc.DeleteActionAutonomy(ctx, "a1", "answer_question"), domain.KindNotFound)
}

func TestCheckAutonomySuggestAndConfirmOverride(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a1", "Agent One")
	ctx := context.Background()

	row, err := f.svc.UpsertActionAutonomy(ctx, domain.ActionAutonomy{
		AgentID:          "a1",
		ActionType:       "send_email",
		AutonomyLevel:    domain.AutonomySuggestAndConfirm,
		Enabled:          true,
		RequiresApproval: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCategoryCommunication, row.Category)

	res, err := f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: "send_email"})
	require.NoError(t, err)
	assert.True(t, res.RequiresApproval)

	rows, err := f.svc.ListActionAutonomy(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "send_email", rows[0].ActionType)
}

func TestCheckAutonomyAgentUnavailable(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a1", "Agent One")
	ctx := context.Background()

	_, err := f.svc.UpdateAgentStatus(ctx, "a1", domain.AgentStatusPaused)
	require.NoError(t, err)

	res, err := f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: "answer_question"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	requireKind(t, res.Err(), domain.KindAgentUnavailable)

	_, err = f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "ghost", ActionType: "answer_question"})
	requireKind(t, err, domain.KindNotFound)
}

func TestCheckAutonomyMaxPerDay(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a1", "Agent One")
	ctx := context.Background()

	_, err := f.svc.UpsertActionAutonomy(ctx, domain.ActionAutonomy{
		AgentID:       "a1",
		ActionType:    "send_message",
		AutonomyLevel: domain.AutonomyAutonomous,
		Enabled:       true,
		MaxPerDay:     ptr(2),
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := f.svc.RequestAction(ctx, domain.ActionRequest{AgentID: "a1", ActionType: "send_message", Description: "hi"})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	_, err = f.svc.RequestAction(ctx, domain.ActionRequest{AgentID: "a1", ActionType: "send_message", Description: "hi"})
	requireKind(t, err, domain.KindRateLimit)

	// The blocked attempt is on record and does not count against the cap.
	entries, err := f.svc.ListActionLogs(ctx, domain.ActionLogFilter{AgentID: "a1", ActionType: "send_message"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.False(t, entries[0].Success)
	assert.Contains(t, entries[0].ErrorMessage, "rate limit")

	f.clock.Advance(25 * time.Hour)
	res, err := f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: "send_message"})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckAutonomyCooldown(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a1", "Agent One")
	ctx := context.Background()

	_, err := f.svc.UpsertActionAutonomy(ctx, domain.ActionAutonomy{
		AgentID:       "a1",
		ActionType:    "send_message",
		AutonomyLevel: domain.AutonomyAutonomous,
		Enabled:       true,
		CooldownHours: ptr(1.0),
	})
	require.NoError(t, err)

	_, err = f.svc.RequestAction(ctx, domain.ActionRequest{AgentID: "a1", ActionType: "send_message"})
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	res, err := f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: "send_message"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	requireKind(t, res.Err(), domain.KindRateLimit)

	f.clock.Advance(time.Hour)
	res, err = f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: "send_message"})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckAutonomyAgentWideThrottles(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a1", "Agent One")
	ctx := context.Background()

	_, err := f.svc.UpsertAutonomySettings(ctx, domain.AutonomySettings{
		AgentID:           "a1",
		MaxActionsPerHour: ptr(1),
		MaxCostPerDay:     ptr(100.0),
	})
	require.NoError(t, err)

	_, err = f.svc.RequestAction(ctx, domain.ActionRequest{AgentID: "a1", ActionType: "answer_question", Value: ptr(60.0)})
	require.NoError(t, err)

	res, err := f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: "send_message"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "maxActionsPerHour")

	f.clock.Advance(2 * time.Hour)
	res, err = f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: "send_message", Value: ptr(50.0)})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "maxCostPerDay")

	res, err = f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: "send_message", Value: ptr(40.0)})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckAutonomyAgentWideIgnoresGovernanceAudit(t *testing.T) {
	f := handoffFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpsertAutonomySettings(ctx, domain.AutonomySettings{
		AgentID:           "B",
		MaxActionsPerHour: ptr(1),
	})
	require.NoError(t, err)

	h := initiate(t, f, "C-gov")
	_, err = f.svc.AcceptHandoff(ctx, h.ID, "B")
	require.NoError(t, err)

	audit, err := f.svc.ListActionLogs(ctx, domain.ActionLogFilter{AgentID: "B", ActionType: domain.ActionTypeHandoffAccept})
	require.NoError(t, err)
	require.Len(t, audit, 1)

	res, err := f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "B", ActionType: "send_message"})
	require.NoError(t, err)
	assert.True(t, res.Allowed, res.Reason)

	_, err = f.svc.RequestAction(ctx, domain.ActionRequest{AgentID: "B", ActionType: "send_message"})
	require.NoError(t, err)
	res, err = f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "B", ActionType: "send_message"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "maxActionsPerHour")
}

func TestCheckAutonomyHighValue(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a1", "Agent One")
	ctx := context.Background()

	_, err := f.svc.UpsertAutonomySettings(ctx, domain.AutonomySettings{
		AgentID:                  "a1",
		RequireHumanForHighValue: ptr(100.0),
	})
	require.NoError(t, err)

	cases := []struct {
		name     string
		value    *float64
		approval bool
	}{
		{"no value", nil, false},
		{"below", ptr(50.0), false},
		{"at threshold", ptr(100.0), false},
		{"above", ptr(150.0), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: "apply_discount", Value: tc.value})
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, tc.approval, res.RequiresApproval)
		})
	}
}

func TestCheckAutonomyWithoutPolicyEngine(t *testing.T) {
	f := newFixture(t)
	f.svc.policyEngine = nil
	f.agent(t, "a1", "Agent One")
	ctx := context.Background()

	_, err := f.svc.UpsertAutonomySettings(ctx, domain.AutonomySettings{AgentID: "a1", RequireHumanForHighValue: ptr(10.0)})
	require.NoError(t, err)

	res, err := f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: "answer_question", Value: ptr(11.0)})
	require.NoError(t, err)
	assert.True(t, res.RequiresApproval)
}

func TestGetAutonomySettingsDefaultsToEmpty(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a1", "Agent One")

	st, err := f.svc.GetAutonomySettings(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", st.AgentID)
	assert.Nil(t, st.MaxActionsPerHour)

	_, err = f.svc.UpsertAutonomySettings(context.Background(), domain.AutonomySettings{AgentID: "a1", MaxCostPerDay: ptr(-1.0)})
	requireKind(t, err, domain.KindValidation)
}

func TestUpsertActionAutonomyRejectsUnknownLevel(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a1", "Agent One")

	_, err := f.svc.UpsertActionAutonomy(context.Background(), domain.ActionAutonomy{
		AgentID: "a1", ActionType: "send_message", AutonomyLevel: "yolo", Enabled: true,
	})
	requireKind(t, err, domain.KindValidation)
}

var levels = []domain.AutonomyLevel{domain.AutonomyAutonomous, domain.AutonomySuggestAndConfirm, domain.AutonomyHumanRequired}

func TestPropertyDisabledActionsAreNeverAllowed(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a1", "Agent One")
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		actionType := rapid.SampledFrom(append(domain.DefaultActionTypes(), "x_custom", "x_other")).Draw(rt, "actionType")
		level := rapid.SampledFrom(levels).Draw(rt, "level")
		flag := rapid.Bool().Draw(rt, "requiresApproval")

		_, err := f.svc.UpsertActionAutonomy(ctx, domain.ActionAutonomy{
			AgentID: "a1", ActionType: actionType, AutonomyLevel: level, Enabled: false, RequiresApproval: flag,
		})
		require.NoError(rt, err)

		res, err := f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: actionType})
		require.NoError(rt, err)
		if res.Allowed {
			rt.Fatalf("disabled %s/%s was allowed", actionType, level)
		}
		requireKind(rt, res.Err(), domain.KindActionDisabled)
	})
}

func TestPropertyUnknownActionsRequireApproval(t *testing.T) {
	f := newFixture(t)
	f.agent(t, "a1", "Agent One")
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		actionType := "x_" + rapid.StringMatching(`[a-z_]{1,24}`).Draw(rt, "actionType")

		res, err := f.svc.CheckAutonomy(ctx, domain.AutonomyCheckInput{AgentID: "a1", ActionType: actionType})
		require.NoError(rt, err)
		if !res.RequiresApproval || res.Level != domain.AutonomyHumanRequired {
			rt.Fatalf("unknown action %q resolved to %s (requiresApproval=%v)", actionType, res.Level, res.RequiresApproval)
		}
	})
}
