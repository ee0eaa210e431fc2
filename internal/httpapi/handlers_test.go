package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/batch"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/contacts"
	"voice-agent-platform/internal/credits"
	"voice-agent-platform/internal/rbac"
	"voice-agent-platform/internal/reporting"
	"voice-agent-platform/internal/scheduling"
	"voice-agent-platform/internal/voice"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInitiator struct {
	got calls.InitiateRequest
	res calls.InitiateResult
	err error
}

func (f *fakeInitiator) Initiate(ctx context.Context, req calls.InitiateRequest) (calls.InitiateResult, error) {
	f.got = req
	return f.res, f.err
}

type fakeBatches struct {
	out json.RawMessage
	err error
	got batch.Request
}

func (f *fakeBatches) Do(ctx context.Context, userID string, req batch.Request) (json.RawMessage, error) {
	f.got = req
	return f.out, f.err
}

func (f *fakeBatches) List(ctx context.Context, userID string, limit int) ([]batch.BatchCall, error) {
	return nil, nil
}

type fakeScheduler struct {
	res scheduling.RunResult
}

func (f fakeScheduler) Run(ctx context.Context) (scheduling.RunResult, error) { return f.res, nil }

type fakeContext struct{}

func (fakeContext) Build(ctx context.Context, rawPhone, providerAgentID string) (contacts.CallerContext, error) {
	if rawPhone == "+15550001111" {
		return contacts.CallerContext{ContextFound: true, AgentInstructions: "Caller: Ada"}, nil
	}
	return contacts.CallerContext{}, nil
}

type fakeCredits struct {
	granted string
	admin   string
}

func (f *fakeCredits) GetBalance(ctx context.Context, userID string) (credits.Balance, error) {
	return credits.Balance{UserID: userID, Credits: 42}, nil
}

func (f *fakeCredits) AdminGrant(ctx context.Context, userID, adminUserID, adminRole string, req credits.AdminGrantRequest) (credits.AdminAction, credits.LedgerEntry, credits.Balance, error) {
	f.granted = userID
	f.admin = adminUserID
	return credits.AdminAction{}, credits.LedgerEntry{}, credits.Balance{UserID: userID, Credits: req.Amount}, nil
}

// asUser stands in for the JWT middleware.
func asUser(userID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), userID, role))
		c.Next()
	}
}

func asService() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithService(c.Request.Context()))
		c.Next()
	}
}

func do(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestInitiateCall_UserActsForSelf(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fi := &fakeInitiator{res: calls.InitiateResult{ConversationID: "conv_1", CallHistoryID: "ch_1"}}
	h := Handlers{Calls: fi}

	r := gin.New()
	r.POST("/call", asUser("u1", rbac.RoleUser), h.InitiateCall)

	w := do(t, r, http.MethodPost, "/call", `{"agent_id":"A","phone_number":"+15550001111","idempotency_key":"k1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	out := decode(t, w)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "conv_1", out["conversationId"])
	assert.Equal(t, "ch_1", out["callHistoryId"])
	assert.Equal(t, "u1", fi.got.UserID)
	assert.Equal(t, "k1", fi.got.IdempotencyKey)
}

func TestInitiateCall_ForbidsOtherUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fi := &fakeInitiator{}
	h := Handlers{Calls: fi}

	r := gin.New()
	r.POST("/call", asUser("u1", rbac.RoleUser), h.InitiateCall)

	w := do(t, r, http.MethodPost, "/call", `{"agent_id":"A","phone_number":"+1","user_id":"u2"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, fi.got.UserID)
}

func TestInitiateCall_ServiceNeedsUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fi := &fakeInitiator{}
	h := Handlers{Calls: fi}

	r := gin.New()
	r.POST("/call", asService(), h.InitiateCall)

	w := do(t, r, http.MethodPost, "/call", `{"agent_id":"A","phone_number":"+1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/call", `{"agent_id":"A","phone_number":"+1","user_id":"u9"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u9", fi.got.UserID)
}

func TestInitiateCall_IdempotencyHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fi := &fakeInitiator{}
	h := Handlers{Calls: fi}

	r := gin.New()
	r.POST("/call", asUser("u1", rbac.RoleUser), h.InitiateCall)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/call", bytes.NewBufferString(`{"agent_id":"A","phone_number":"+1"}`))
	req.Header.Set("Idempotency-Key", "hdr-key")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hdr-key", fi.got.IdempotencyKey)
}

func TestInitiateCall_ErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", calls.ErrInvalidArgument, http.StatusBadRequest},
		{"unknown agent", calls.ErrNotFound, http.StatusNotFound},
		{"provider", &voice.APIError{Op: "outbound-call", StatusCode: http.StatusUnprocessableEntity, Body: json.RawMessage(`{"detail":"bad number"}`)}, http.StatusUnprocessableEntity},
		{"internal", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Handlers{Calls: &fakeInitiator{err: tt.err}}
			r := gin.New()
			r.POST("/call", asUser("u1", rbac.RoleUser), h.InitiateCall)

			w := do(t, r, http.MethodPost, "/call", `{"agent_id":"A","phone_number":"+1"}`)
			assert.Equal(t, tt.code, w.Code)
			out := decode(t, w)
			assert.Equal(t, false, out["success"])
			assert.NotContains(t, out["error"], "db down")
		})
	}
}

func TestInitiateCall_ProviderDetailsRelayed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	apiErr := &voice.APIError{Op: "outbound-call", StatusCode: http.StatusBadRequest, Body: json.RawMessage(`{"detail":"bad number"}`)}
	h := Handlers{Calls: &fakeInitiator{err: apiErr}}

	r := gin.New()
	r.POST("/call", asUser("u1", rbac.RoleUser), h.InitiateCall)

	w := do(t, r, http.MethodPost, "/call", `{"agent_id":"A","phone_number":"+1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	out := decode(t, w)
	assert.Equal(t, map[string]any{"detail": "bad number"}, out["details"])
}

func TestNilDependencyIsConfigurationError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{}

	r := gin.New()
	r.POST("/call", asUser("u1", rbac.RoleUser), h.InitiateCall)
	r.POST("/llm", asUser("u1", rbac.RoleUser), h.LLMCompletion)

	w := do(t, r, http.MethodPost, "/call", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "not configured")

	w = do(t, r, http.MethodPost, "/llm", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "OPENAI_API_KEY")
}

func TestBatchCalling_RelaysProviderBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fb := &fakeBatches{out: json.RawMessage(`{"id":"batch_1","status":"pending"}`)}
	h := Handlers{Batches: fb}

	r := gin.New()
	r.POST("/batch", asUser("u1", rbac.RoleUser), h.BatchCalling)

	w := do(t, r, http.MethodPost, "/batch", `{"action":"get_batch_call_details","batch_id":"batch_1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"batch_1","status":"pending"}`, w.Body.String())
	assert.Equal(t, batch.ActionDetails, fb.got.Action())
}

func TestBatchCalling_ProviderErrorKeepsStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fb := &fakeBatches{err: &voice.APIError{Op: "batch", StatusCode: http.StatusNotFound, Body: json.RawMessage(`{"detail":"no batch"}`)}}
	h := Handlers{Batches: fb}

	r := gin.New()
	r.POST("/batch", asUser("u1", rbac.RoleUser), h.BatchCalling)

	w := do(t, r, http.MethodPost, "/batch", `{"action":"cancel_batch_call","batch_id":"b"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	out := decode(t, w)
	assert.Contains(t, out, "details")
	assert.NotContains(t, out, "success")
}

func TestBatchCalling_UnknownAction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fb := &fakeBatches{}
	h := Handlers{Batches: fb}

	r := gin.New()
	r.POST("/batch", asUser("u1", rbac.RoleUser), h.BatchCalling)

	w := do(t, r, http.MethodPost, "/batch", `{"action":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, fb.got)
}

func TestCheckScheduledTasks_ReportsCounts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{Scheduler: fakeScheduler{res: scheduling.RunResult{ExecutedTasks: 2, FailedTasks: 1, MissedTasks: 3}}}

	r := gin.New()
	r.POST("/tasks", asService(), h.CheckScheduledTasks)

	w := do(t, r, http.MethodPost, "/tasks", ``)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(2), out["executedTasks"])
	assert.Equal(t, float64(1), out["failedTasks"])
	assert.Equal(t, float64(3), out["missedTasks"])
}

func TestContactContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{CallerContext: fakeContext{}}

	r := gin.New()
	r.POST("/ctx", asService(), h.ContactContext)

	w := do(t, r, http.MethodPost, "/ctx", `{"caller_id":"+15550001111","agent_id":"A"}`)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, true, out["context_found"])
	assert.Equal(t, "Caller: Ada", out["agent_instructions"])

	w = do(t, r, http.MethodPost, "/ctx", `{"agent_id":"A"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminGrantCredits(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fc := &fakeCredits{}
	events := audit.NewMemoryRepo()
	h := Handlers{Credits: fc, Audit: audit.NewService(events)}

	r := gin.New()
	r.POST("/grant", asUser("admin-1", rbac.RoleAdmin), rbac.RequireAnyRole(rbac.RoleAdmin), h.AdminGrantCredits)

	w := do(t, r, http.MethodPost, "/grant", `{"user_id":"u1","amount":50,"reason":"refund","idempotency_key":"g1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", fc.granted)
	assert.Equal(t, "admin-1", fc.admin)
	require.Len(t, events.Events(), 1)
	assert.Equal(t, audit.EventCreditGrant, events.Events()[0].Type)
	assert.Equal(t, "admin-1", events.Events()[0].ActorUserID)

	w = do(t, r, http.MethodPost, "/grant", `{"user_id":"u1","amount":0,"reason":"refund"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCreditBalance_AdminMayReadOthers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := Handlers{Credits: &fakeCredits{}}

	r := gin.New()
	r.GET("/admin", asUser("admin-1", rbac.RoleAdmin), h.GetCreditBalance)
	r.GET("/user", asUser("u1", rbac.RoleUser), h.GetCreditBalance)

	w := do(t, r, http.MethodGet, "/admin?user_id=u7", ``)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u7", decode(t, w)["user_id"])

	w = do(t, r, http.MethodGet, "/user?user_id=u7", ``)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type fakeReports struct {
	got reporting.CallsSummaryRequest
}

func (f *fakeReports) CallsSummary(ctx context.Context, req reporting.CallsSummaryRequest) (reporting.CallsSummary, error) {
	f.got = req
	return reporting.CallsSummary{UserID: req.UserID, TotalCalls: 3}, nil
}

func (f *fakeReports) Dashboard(ctx context.Context, userID string, r reporting.TimeRange) (reporting.Report, error) {
	return reporting.Report{}, nil
}

func TestCallsReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fr := &fakeReports{}
	h := Handlers{Reports: fr}

	r := gin.New()
	r.GET("/r", asUser("u1", rbac.RoleUser), h.CallsReport)

	w := do(t, r, http.MethodGet, "/r?from=yesterday", ``)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/r?from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00Z&agent_id=A", ``)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", fr.got.UserID)
	assert.Equal(t, "A", fr.got.AgentID)
	assert.Equal(t, 2026, fr.got.Range.From.Year())
	assert.Equal(t, float64(3), decode(t, w)["total_calls"])
}

func TestScheduleCall_RejectsBadAgent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := agents.NewRegistry(agents.NewMemoryRepo(agents.Agent{
		ID: "9a4b7c2d-6e1f-4a3b-8c5d-3e0f1a2b4c33", UserID: "u2", Name: "Bob", ProviderAgentID: "prov-3", Active: true,
	}))
	h := Handlers{ScheduledCalls: scheduling.NewService(scheduling.NewMemoryRepo(), registry, "US")}

	r := gin.New()
	r.POST("/schedule", asUser("u1", rbac.RoleUser), h.ScheduleCall)

	tests := []struct {
		name    string
		agentID string
		want    int
	}{
		{"malformed id", "agent-1", http.StatusBadRequest},
		{"another user's agent", "9a4b7c2d-6e1f-4a3b-8c5d-3e0f1a2b4c33", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/schedule",
				`{"agent_id":"`+tt.agentID+`","phone_number":"+14155552671","scheduled_at":"2099-01-01T10:00:00Z"}`)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestAdminListAudit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	events := audit.NewMemoryRepo(
		audit.Event{ID: "e1", UserID: "u1", Type: audit.EventCreditGrant},
		audit.Event{ID: "e2", UserID: "u2", Type: audit.EventCreditGrant},
	)
	h := Handlers{Audit: audit.NewService(events)}

	r := gin.New()
	r.GET("/audit", asUser("admin-1", rbac.RoleAdmin), h.AdminListAudit)

	w := do(t, r, http.MethodGet, "/audit?user_id=u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	list, ok := out["events"].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "e1", list[0].(map[string]any)["id"])

	w = do(t, r, http.MethodGet, "/audit", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
