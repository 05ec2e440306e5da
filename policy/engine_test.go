package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestDefaultPolicyHighValue(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name      string
		value     *float64
		threshold *float64
		want      Decision
	}{
		{name: "no threshold", value: f64(1000), want: DecisionAllow},
		{name: "no value", threshold: f64(100), want: DecisionAllow},
		{name: "below threshold", value: f64(50), threshold: f64(100), want: DecisionAllow},
		{name: "at threshold", value: f64(100), threshold: f64(100), want: DecisionAllow},
		{name: "above threshold", value: f64(100.01), threshold: f64(100), want: DecisionRequireApproval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason, err := engine.Evaluate(ctx, Input{
				AgentID: "a1", ActionType: "issue_refund", ActionCategory: "commerce", AutonomyLevel: "human_required",
				Value: tt.value, HighValueThreshold: tt.threshold,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.want == DecisionRequireApproval {
				assert.Equal(t, "value exceeds high-value threshold", reason)
			}
		})
	}
}

func TestCustomPolicyBlockAndUnknownDecision(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, `
package autonomy_policy

import rego.v1

default decision := "allow"

decision := {"decision": "block", "reason": "weekend freeze"} if {
	input.action_category == "commerce"
}

decision := "maybe" if {
	input.action_type == "send_email"
}
`)
	require.NoError(t, err)

	got, reason, err := engine.Evaluate(ctx, Input{ActionType: "issue_refund", ActionCategory: "commerce"})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, got)
	assert.Equal(t, "weekend freeze", reason)

	got, _, err = engine.Evaluate(ctx, Input{ActionType: "send_email", ActionCategory: "communication"})
	require.NoError(t, err)
	assert.Equal(t, DecisionRequireApproval, got, "unknown decisions fail closed")

	got, _, err = engine.Evaluate(ctx, Input{ActionType: "answer_question", ActionCategory: "communication"})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, got)
}

func TestNewEngineRejectsInvalidPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package autonomy_policy\n\ndecision := {")
	require.Error(t, err)
}

func TestNewEngineFromFile(t *testing.T) {
	ctx := context.Background()

	engine, err := NewEngineFromFile(ctx, "")
	require.NoError(t, err)
	got, _, err := engine.Evaluate(ctx, Input{Value: f64(10), HighValueThreshold: f64(5)})
	require.NoError(t, err)
	assert.Equal(t, DecisionRequireApproval, got)

	path := filepath.Join(t.TempDir(), "policy.rego")
	require.NoError(t, os.WriteFile(path, []byte("package autonomy_policy\n\ndefault decision := \"block\"\n"), 0o600))
	engine, err = NewEngineFromFile(ctx, path)
	require.NoError(t, err)
	got, _, err = engine.Evaluate(ctx, Input{ActionType: "send_message"})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, got)

	_, err = NewEngineFromFile(ctx, filepath.Join(t.TempDir(), "missing.rego"))
	require.Error(t, err)
}
