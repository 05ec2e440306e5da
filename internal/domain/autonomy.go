package domain

import (
	"sort"
	"time"
)

// AutonomySettings is the agent-wide throttle configured by administrators.
type AutonomySettings struct {
	AgentID                  string    `json:"agent_id"`
	MaxActionsPerHour        *int      `json:"max_actions_per_hour,omitempty"`
	MaxCostPerDay            *float64  `json:"max_cost_per_day,omitempty"`
	RequireHumanForHighValue *float64  `json:"require_human_for_high_value,omitempty"`
	LearnFromApprovals       bool      `json:"learn_from_approvals"`
	LearnFromRejections      bool      `json:"learn_from_rejections"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// ActionAutonomy is the policy row for one agent and action type.
// AgentID is empty for rows taken from the default table.
type ActionAutonomy struct {
	AgentID          string         `json:"agent_id,omitempty"`
	ActionType       string         `json:"action_type"`
	Category         ActionCategory `json:"category"`
	AutonomyLevel    AutonomyLevel  `json:"autonomy_level"`
	Enabled          bool           `json:"enabled"`
	RequiresApproval bool           `json:"requires_approval"`
	MaxPerDay        *int           `json:"max_per_day,omitempty"`
	CooldownHours    *float64       `json:"cooldown_hours,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty"`
}

// defaultActionAutonomy is the process-wide default policy table. It is never
// mutated; per-agent overrides live in the store.
var defaultActionAutonomy = map[string]ActionAutonomy{
	"answer_question":      {Category: ActionCategoryCommunication, AutonomyLevel: AutonomyAutonomous, Enabled: true},
	"send_message":         {Category: ActionCategoryCommunication, AutonomyLevel: AutonomyAutonomous, Enabled: true},
	"handoff_conversation": {Category: ActionCategoryCommunication, AutonomyLevel: AutonomyAutonomous, Enabled: true},
	"escalate_to_human":    {Category: ActionCategoryCommunication, AutonomyLevel: AutonomyAutonomous, Enabled: true},
	"send_email":           {Category: ActionCategoryCommunication, AutonomyLevel: AutonomySuggestAndConfirm, Enabled: true},
	"create_draft":         {Category: ActionCategoryContent, AutonomyLevel: AutonomySuggestAndConfirm, Enabled: true},
	"publish_content":      {Category: ActionCategoryContent, AutonomyLevel: AutonomySuggestAndConfirm, Enabled: true, RequiresApproval: true},
	"delete_content":       {Category: ActionCategoryContent, AutonomyLevel: AutonomyHumanRequired, Enabled: true},
	"update_product":       {Category: ActionCategoryCommerce, AutonomyLevel: AutonomySuggestAndConfirm, Enabled: true, RequiresApproval: true},
	"apply_discount":       {Category: ActionCategoryCommerce, AutonomyLevel: AutonomySuggestAndConfirm, Enabled: true},
	"send_gift_card":       {Category: ActionCategoryCommerce, AutonomyLevel: AutonomyHumanRequired, Enabled: true},
	"issue_refund":         {Category: ActionCategoryCommerce, AutonomyLevel: AutonomyHumanRequired, Enabled: true},
	"process_payment":      {Category: ActionCategoryCommerce, AutonomyLevel: AutonomyHumanRequired, Enabled: true},
	"modify_settings":      {Category: ActionCategoryAdmin, AutonomyLevel: AutonomyHumanRequired, Enabled: true},
	ActionTypeHandoffInitiate: {Category: ActionCategoryGovernance, AutonomyLevel: AutonomyAutonomous, Enabled: true},
	ActionTypeHandoffAccept:   {Category: ActionCategoryGovernance, AutonomyLevel: AutonomyAutonomous, Enabled: true},
	ActionTypeHandoffDecline:  {Category: ActionCategoryGovernance, AutonomyLevel: AutonomyAutonomous, Enabled: true},
	ActionTypeHandoffComplete: {Category: ActionCategoryGovernance, AutonomyLevel: AutonomyAutonomous, Enabled: true},
	ActionTypeHandoffCancel:   {Category: ActionCategoryGovernance, AutonomyLevel: AutonomyAutonomous, Enabled: true},
	ActionTypeApproveAction:   {Category: ActionCategoryGovernance, AutonomyLevel: AutonomyAutonomous, Enabled: true},
	ActionTypeRejectAction:    {Category: ActionCategoryGovernance, AutonomyLevel: AutonomyAutonomous, Enabled: true},
}

// DefaultActionAutonomy returns the default policy row for actionType.
// Unknown action types resolve to an enabled human_required row (fail closed);
// ok reports whether the type was found in the table.
func DefaultActionAutonomy(actionType string) (row ActionAutonomy, ok bool) {
	row, ok = defaultActionAutonomy[actionType]
	if !ok {
		row = ActionAutonomy{
			Category:      ActionCategoryOther,
			AutonomyLevel: AutonomyHumanRequired,
			Enabled:       true,
		}
	}
	row.ActionType = actionType
	return row, ok
}

// DefaultActionTypes lists the action types of the default table in sorted order.
func DefaultActionTypes() []string {
	out := make([]string, 0, len(defaultActionAutonomy))
	for k := range defaultActionAutonomy {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CategoryFor returns the category the default table assigns to actionType.
func CategoryFor(actionType string) ActionCategory {
	row, _ := DefaultActionAutonomy(actionType)
	return row.Category
}

// AutonomyCheckInput asks whether an agent may perform an action.
// Value is the caller-supplied monetary value or cost of the action, compared
// as-is against RequireHumanForHighValue.
type AutonomyCheckInput struct {
	AgentID    string   `json:"agent_id"`
	ActionType string   `json:"action_type"`
	Value      *float64 `json:"value,omitempty"`
}

// BlockReason explains why an action was not allowed.
type BlockReason string

const (
	BlockReasonDisabled         BlockReason = "action disabled"
	BlockReasonRateLimit        BlockReason = "rate limit"
	BlockReasonAgentUnavailable BlockReason = "agent unavailable"
)

// AutonomyCheckResult is the gating decision for one intended action.
type AutonomyCheckResult struct {
	AgentID          string        `json:"agent_id"`
	ActionType       string        `json:"action_type"`
	Allowed          bool          `json:"allowed"`
	Level            AutonomyLevel `json:"level"`
	RequiresApproval bool          `json:"requires_approval"`
	Reason           string        `json:"reason,omitempty"`
	ApprovalID       string        `json:"approval_id,omitempty"`

	block  BlockReason
	detail string
}

// Block marks the result as not allowed.
func (r *AutonomyCheckResult) Block(reason BlockReason, detail string) {
	r.Allowed = false
	r.block = reason
	r.detail = detail
	r.Reason = string(reason)
	if detail != "" {
		r.Reason += ": " + detail
	}
}

// Err converts a blocked result into its typed error, or nil when allowed.
func (r *AutonomyCheckResult) Err() error {
	if r.Allowed {
		return nil
	}
	switch r.block {
	case BlockReasonDisabled:
		return &ActionDisabledError{AgentID: r.AgentID, ActionType: r.ActionType}
	case BlockReasonRateLimit:
		return &RateLimitError{AgentID: r.AgentID, ActionType: r.ActionType, Detail: r.detail}
	case BlockReasonAgentUnavailable:
		return &AgentUnavailableError{AgentID: r.AgentID, Status: AgentStatus(r.detail)}
	}
	return &ActionDisabledError{AgentID: r.AgentID, ActionType: r.ActionType}
}
