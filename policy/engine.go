// Package policy evaluates the rego escalation policy consulted by the
// autonomy resolver. The policy can only tighten a decision: it may ask for
// approval or block, never waive an approval the autonomy level requires.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decision is the outcome of a policy evaluation.
type Decision string

const (
	DecisionAllow           Decision = "allow"
	DecisionRequireApproval Decision = "require_approval"
	DecisionBlock           Decision = "block"
)

// Input is the document the policy sees as `input`.
// Optional fields are omitted when unset so rules over them stay undefined.
type Input struct {
	AgentID            string   `json:"agent_id"`
	ActionType         string   `json:"action_type"`
	ActionCategory     string   `json:"action_category"`
	AutonomyLevel      string   `json:"autonomy_level"`
	Value              *float64 `json:"value,omitempty"`
	HighValueThreshold *float64 `json:"high_value_threshold,omitempty"`
}

func (in Input) document() map[string]interface{} {
	doc := map[string]interface{}{
		"agent_id":        in.AgentID,
		"action_type":     in.ActionType,
		"action_category": in.ActionCategory,
		"autonomy_level":  in.AutonomyLevel,
	}
	if in.Value != nil {
		doc["value"] = *in.Value
	}
	if in.HighValueThreshold != nil {
		doc["high_value_threshold"] = *in.HighValueThreshold
	}
	return doc
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.autonomy_policy.decision"),
		rego.Module("autonomy_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy module from path, or the default policy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks the escalation policy.
// Returns: decision (allow, require_approval, block), reason (optional), error
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input.document()))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy defines a default; nothing matched means nothing to escalate.
		return DecisionAllow, "default", nil
	}

	// The rule may return a bare string or an object {decision, reason}.
	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return normalize(val), "", nil
	case map[string]interface{}:
		d, _ := val["decision"].(string)
		reason, _ := val["reason"].(string)
		return normalize(d), reason, nil
	}

	return DecisionRequireApproval, "unexpected policy result type", nil
}

// normalize fails closed on unknown decisions.
func normalize(d string) Decision {
	switch Decision(d) {
	case DecisionAllow, DecisionRequireApproval, DecisionBlock:
		return Decision(d)
	}
	return DecisionRequireApproval
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package autonomy_policy

import rego.v1

default decision := "allow"

# Require a human for actions whose caller-supplied value exceeds the agent's threshold.
decision := {"decision": "require_approval", "reason": "value exceeds high-value threshold"} if {
	input.value > input.high_value_threshold
}
`
