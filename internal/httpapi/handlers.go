package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/analytics"
	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/batch"
	"voice-agent-platform/internal/billing"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/contacts"
	"voice-agent-platform/internal/credits"
	"voice-agent-platform/internal/llm"
	"voice-agent-platform/internal/rbac"
	"voice-agent-platform/internal/reporting"
	"voice-agent-platform/internal/scheduling"
	"voice-agent-platform/internal/voice"
	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
// A nil dependency answers 500 "not configured".
type Handlers struct {
	Calls          CallInitiator
	Status         StatusChecker
	Batches        BatchRunner
	Scheduler      ScheduledRunner
	ScheduledCalls ScheduleStore
	Analytics      AnalyticsRunner
	Conversations  AnalyticsReader
	CallerContext  CallerContextBuilder
	Contacts       ContactStore
	Agents         AgentLister
	Credits        CreditsService
	Billing        Checkout
	LLM            Completer
	Reports        Reporter
	// Audit is optional; writes are best-effort.
	Audit AuditLogger
}

type CallInitiator interface {
	Initiate(ctx context.Context, req calls.InitiateRequest) (calls.InitiateResult, error)
}

type StatusChecker interface {
	Check(ctx context.Context, userID, conversationID string) (calls.StatusResult, error)
}

type BatchRunner interface {
	Do(ctx context.Context, userID string, req batch.Request) (json.RawMessage, error)
	List(ctx context.Context, userID string, limit int) ([]batch.BatchCall, error)
}

type ScheduledRunner interface {
	Run(ctx context.Context) (scheduling.RunResult, error)
}

type ScheduleStore interface {
	Schedule(ctx context.Context, userID string, req scheduling.ScheduleRequest) (scheduling.ScheduledCall, error)
	Cancel(ctx context.Context, userID, id string) error
	List(ctx context.Context, userID string, limit int) ([]scheduling.ScheduledCall, error)
}

type AnalyticsRunner interface {
	Run(ctx context.Context) (analytics.Result, error)
}

type AnalyticsReader interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]analytics.ConversationAnalytics, error)
}

type CallerContextBuilder interface {
	Build(ctx context.Context, rawPhone, providerAgentID string) (contacts.CallerContext, error)
}

type ContactStore interface {
	List(ctx context.Context, userID string, limit int) ([]contacts.Contact, error)
	Save(ctx context.Context, c contacts.Contact) (contacts.Contact, error)
	RecordInteraction(ctx context.Context, req contacts.RecordRequest) (contacts.Contact, contacts.Interaction, error)
}

type AgentLister interface {
	List(ctx context.Context, userID string) ([]agents.Agent, error)
}

type CreditsService interface {
	GetBalance(ctx context.Context, userID string) (credits.Balance, error)
	AdminGrant(ctx context.Context, userID, adminUserID, adminRole string, req credits.AdminGrantRequest) (credits.AdminAction, credits.LedgerEntry, credits.Balance, error)
}

type Checkout interface {
	Packages() []billing.Package
	CreateCheckout(ctx context.Context, userID, email, packageID string, annual bool) (billing.CheckoutResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)
}

type AuditLogger interface {
	LogCreditGrant(ctx context.Context, userID, actorUserID, actorRole, ip, entryID string, amount int64, reason string) error
	LogScheduleCancelled(ctx context.Context, userID, actorUserID, actorRole, ip, scheduledCallID string) error
	List(ctx context.Context, q audit.Query) ([]audit.Event, error)
}

type Reporter interface {
	CallsSummary(ctx context.Context, req reporting.CallsSummaryRequest) (reporting.CallsSummary, error)
	Dashboard(ctx context.Context, userID string, r reporting.TimeRange) (reporting.Report, error)
}

func notConfigured(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": what + " not configured"})
}

// actingUser resolves the user a request acts for. Service-key callers name
// the user in the body; users act for themselves unless they are admins.
func actingUser(c *gin.Context, bodyUserID string) (string, bool) {
	ctx := c.Request.Context()
	if auth.IsService(ctx) {
		if bodyUserID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": "user_id is required"})
			return "", false
		}
		return bodyUserID, true
	}
	uid, err := auth.UserID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "user_id required"})
		return "", false
	}
	if bodyUserID == "" || bodyUserID == uid {
		return uid, true
	}
	role, _ := auth.Role(ctx)
	if rbac.IsAdmin(role) {
		return bodyUserID, true
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "cannot act for another user"})
	return "", false
}

// functionError maps service errors onto the {success:false, error} envelope.
// Provider failures keep the provider's status and body.
func functionError(c *gin.Context, err error) {
	if apiErr, ok := voice.AsAPIError(err); ok {
		c.AbortWithStatusJSON(providerStatus(apiErr), gin.H{"success": false, "error": apiErr.Error(), "details": apiErr.Details()})
		return
	}
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !isConfigError(err) {
		logger.FromGin(c).Error("request failed", "err", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, voice.ErrInvalidArgument),
		errors.Is(err, contacts.ErrInvalidArgument),
		errors.Is(err, scheduling.ErrInvalidArgument),
		errors.Is(err, batch.ErrInvalidRequest),
		errors.Is(err, credits.ErrInvalidArgument),
		errors.Is(err, billing.ErrInvalidArgument),
		errors.Is(err, billing.ErrUnknownPackage),
		errors.Is(err, llm.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest),
		errors.Is(err, agents.ErrInvalidArgument),
		errors.Is(err, audit.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, calls.ErrNotFound),
		errors.Is(err, contacts.ErrNotFound),
		errors.Is(err, scheduling.ErrNotFound),
		errors.Is(err, agents.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduling.ErrNotCancellable),
		errors.Is(err, calls.ErrDuplicate),
		errors.Is(err, agents.ErrInactive):
		return http.StatusConflict
	case errors.Is(err, batch.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, calls.ErrProviderRejected):
		return http.StatusBadGateway
	case errors.Is(err, billing.ErrSignature):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isConfigError(err error) bool {
	return errors.Is(err, billing.ErrNotConfigured) || errors.Is(err, llm.ErrNotConfigured)
}

func providerStatus(e *voice.APIError) int {
	if e.StatusCode < 400 || e.StatusCode > 599 {
		return http.StatusBadGateway
	}
	return e.StatusCode
}
