package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agentgate/internal/config"
	"github.com/xiaot623/gogo/agentgate/internal/domain"
	"github.com/xiaot623/gogo/agentgate/internal/metrics"
	"github.com/xiaot623/gogo/agentgate/internal/service"
	"github.com/xiaot623/gogo/agentgate/policy"
	"github.com/xiaot623/gogo/agentgate/tests/helpers"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	db := helpers.NewTestSQLiteStore(t)
	policyEngine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	svc := service.New(db, nil, policyEngine, metrics.NewCollector("test"), config.Default(), nil)

	e := echo.New()
	NewHandler(svc, nil).RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind domain.ErrorKind) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	var resp ErrorResponse
	decode(t, rec, &resp)
	if resp.Code != kind {
		t.Fatalf("expected code %q, got %q", kind, resp.Code)
	}
}

func registerAgent(t *testing.T, e *echo.Echo, id string) {
	t.Helper()
	rec := do(t, e, http.MethodPost, "/v1/agents", `{"agent_id":"`+id+`","name":"`+id+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("register %s: expected 200, got %d: %s", id, rec.Code, rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[domain.ErrorKind]int{
		domain.KindNotFound:          http.StatusNotFound,
		domain.KindDuplicateHandoff:  http.StatusConflict,
		domain.KindDuplicateApproval: http.StatusConflict,
		domain.KindStaleState:        http.StatusConflict,
		domain.KindNotRecipient:      http.StatusForbidden,
		domain.KindActionDisabled:    http.StatusForbidden,
		domain.KindSelfHandoff:       http.StatusUnprocessableEntity,
		domain.KindRateLimit:         http.StatusTooManyRequests,
		domain.KindValidation:        http.StatusBadRequest,
		domain.KindInternal:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := StatusFor(kind); got != want {
			t.Errorf("StatusFor(%q) = %d, want %d", kind, got, want)
		}
	}
}

func TestRegisterAgentValidation(t *testing.T) {
	e := newTestServer(t)

	rec := do(t, e, http.MethodPost, "/v1/agents", `{"name":"demo"}`)
	expectError(t, rec, http.StatusBadRequest, domain.KindValidation)
}

func TestRegisterAndGetAgent(t *testing.T) {
	e := newTestServer(t)
	registerAgent(t, e, "demo")

	rec := do(t, e, http.MethodGet, "/v1/agents/demo", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var agent domain.Agent
	decode(t, rec, &agent)
	if agent.AgentID != "demo" || agent.Status != domain.AgentStatusActive {
		t.Fatalf("unexpected agent: %+v", agent)
	}

	expectError(t, do(t, e, http.MethodGet, "/v1/agents/missing", ""), http.StatusNotFound, domain.KindNotFound)
}

func TestCheckAutonomyDefaultsToHumanRequired(t *testing.T) {
	e := newTestServer(t)
	registerAgent(t, e, "sales")

	rec := do(t, e, http.MethodPost, "/v1/autonomy/check", `{"agent_id":"sales","action_type":"process_payment"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res domain.AutonomyCheckResult
	decode(t, rec, &res)
	if !res.Allowed || !res.RequiresApproval || res.Level != domain.AutonomyHumanRequired {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRequestActionAndDecide(t *testing.T) {
	e := newTestServer(t)
	registerAgent(t, e, "sales")

	rec := do(t, e, http.MethodPost, "/v1/actions/request",
		`{"agent_id":"sales","action_type":"process_payment","description":"charge order 42"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var out domain.ActionOutcome
	decode(t, rec, &out)
	if out.Approval == nil || out.Approval.Status != domain.ApprovalStatusPending {
		t.Fatalf("expected pending approval, got %+v", out.Approval)
	}

	rec = do(t, e, http.MethodPost, "/v1/approvals/"+out.Approval.ID+"/decide", `{"decision":"approve"}`)
	expectError(t, rec, http.StatusBadRequest, domain.KindValidation)

	rec = do(t, e, http.MethodPost, "/v1/approvals/"+out.Approval.ID+"/decide", `{"decision":"approve","decided_by":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, e, http.MethodGet, "/v1/actions/"+out.Action.ID, "")
	var entry domain.ActionLogEntry
	decode(t, rec, &entry)
	if entry.ApprovalStatus == nil || *entry.ApprovalStatus != domain.ApprovalStatusApproved || entry.ApprovedBy != "alice" {
		t.Fatalf("action log not updated: %+v", entry)
	}

	rec = do(t, e, http.MethodPost, "/v1/approvals/"+out.Approval.ID+"/decide", `{"decision":"reject","decided_by":"bob"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a second decision, got %d", rec.Code)
	}
}

func TestRequestActionAllowedReturnsOK(t *testing.T) {
	e := newTestServer(t)
	registerAgent(t, e, "support")

	rec := do(t, e, http.MethodPost, "/v1/actions/request", `{"agent_id":"support","action_type":"send_email"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, e, http.MethodGet, "/v1/actions?agent_id=support", "")
	var list struct {
		Actions []domain.ActionLogEntry `json:"actions"`
	}
	decode(t, rec, &list)
	if len(list.Actions) != 1 || list.Actions[0].ActionType != "send_email" {
		t.Fatalf("unexpected actions: %+v", list.Actions)
	}

	expectError(t, do(t, e, http.MethodGet, "/v1/actions?limit=abc", ""), http.StatusBadRequest, domain.KindValidation)
}

func TestHandoffLifecycle(t *testing.T) {
	e := newTestServer(t)
	registerAgent(t, e, "sales")
	registerAgent(t, e, "support")

	do(t, e, http.MethodPost, "/v1/conversations/conv-1/messages", `{"role":"user","content":"I need a refund please"}`)

	rec := do(t, e, http.MethodPost, "/v1/handoffs",
		`{"from_agent_id":"sales","to_agent_id":"support","conversation_id":"conv-1","reason":"refund request"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.NotifyResult
	decode(t, rec, &created)
	if created.Handoff == nil || created.Handoff.Status != domain.HandoffStatusPending {
		t.Fatalf("unexpected handoff: %+v", created.Handoff)
	}
	id := created.Handoff.ID

	rec = do(t, e, http.MethodPost, "/v1/handoffs",
		`{"from_agent_id":"sales","to_agent_id":"support","conversation_id":"conv-1","reason":"again"}`)
	expectError(t, rec, http.StatusConflict, domain.KindDuplicateHandoff)

	rec = do(t, e, http.MethodGet, "/v1/agents/support/handoffs/pending", "")
	var pending struct {
		Handoffs []domain.AgentHandoffWithAgents `json:"handoffs"`
	}
	decode(t, rec, &pending)
	if len(pending.Handoffs) != 1 || pending.Handoffs[0].ID != id {
		t.Fatalf("unexpected pending handoffs: %+v", pending.Handoffs)
	}

	expectError(t, do(t, e, http.MethodPost, "/v1/handoffs/"+id+"/accept", `{"agent_id":"sales"}`),
		http.StatusForbidden, domain.KindNotRecipient)

	rec = do(t, e, http.MethodPost, "/v1/handoffs/"+id+"/accept", `{"agent_id":"support"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var hc domain.HandoffContext
	decode(t, rec, &hc)
	if hc.HandoffID != id || len(hc.ConversationHistory) != 1 {
		t.Fatalf("unexpected context: %+v", hc)
	}

	expectError(t, do(t, e, http.MethodPost, "/v1/handoffs/"+id+"/cancel", `{"agent_id":"sales"}`),
		http.StatusConflict, domain.KindAlreadyResolved)

	rec = do(t, e, http.MethodPost, "/v1/handoffs/"+id+"/complete", `{"agent_id":"support"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, e, http.MethodGet, "/v1/conversations/conv-1", "")
	var conv domain.Conversation
	decode(t, rec, &conv)
	if conv.OwnerAgentID != "support" {
		t.Fatalf("expected support to own conv-1, got %+v", conv)
	}
}

func TestInitiateSelfHandoff(t *testing.T) {
	e := newTestServer(t)
	registerAgent(t, e, "sales")

	rec := do(t, e, http.MethodPost, "/v1/handoffs",
		`{"from_agent_id":"sales","to_agent_id":"sales","conversation_id":"conv-1","reason":"loop"}`)
	expectError(t, rec, http.StatusUnprocessableEntity, domain.KindSelfHandoff)
}

func TestHandoffActionsRequireAgent(t *testing.T) {
	e := newTestServer(t)

	for _, action := range []string{"accept", "decline", "complete", "cancel"} {
		rec := do(t, e, http.MethodPost, "/v1/handoffs/ho_x/"+action, `{}`)
		expectError(t, rec, http.StatusBadRequest, domain.KindValidation)
	}
}

func TestHealth(t *testing.T) {
	e := newTestServer(t)

	rec := do(t, e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
