package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voice-agent-platform/internal/contacts"
	"voice-agent-platform/internal/metrics"
	"voice-agent-platform/internal/voice"
	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/phone"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("call record not found")
	ErrDuplicate        = errors.New("call record already exists")
	ErrProviderRejected = errors.New("provider rejected the call")
)

// ContactBook is the slice of the contact store the initiator uses.
type ContactBook interface {
	LookupName(ctx context.Context, userID, rawPhone string) (string, error)
	RecordInteraction(ctx context.Context, req contacts.RecordRequest) (contacts.Contact, contacts.Interaction, error)
}

type InitiateRequest struct {
	UserID string
	// AgentID is the provider agent id.
	AgentID            string
	PhoneNumber        string
	ContactName        string
	AgentPhoneNumberID string
	// IdempotencyKey, when set, makes repeated requests return the first call.
	IdempotencyKey string
}

type InitiateResult struct {
	ConversationID string `json:"conversationId"`
	CallHistoryID  string `json:"callHistoryId"`
	CallSID        string `json:"callSid,omitempty"`
	// Replayed is true when the idempotency key matched an earlier call.
	Replayed bool `json:"replayed,omitempty"`
}

// Initiator places one outbound call per request and records it in call history.
//
// Contract:
// - agent id and phone are validated before any provider request.
// - Exactly one provider request; no retries.
// - History and contact bookkeeping failures are logged, never returned.
type Initiator struct {
	caller               voice.Caller
	repo                 Repository
	contacts             ContactBook
	defaultPhoneNumberID string
	region               string
	clock                func() time.Time
}

func NewInitiator(caller voice.Caller, repo Repository, book ContactBook, defaultPhoneNumberID, region string) *Initiator {
	return &Initiator{
		caller:               caller,
		repo:                 repo,
		contacts:             book,
		defaultPhoneNumberID: defaultPhoneNumberID,
		region:               region,
		clock:                time.Now,
	}
}

func (in *Initiator) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	req.AgentID = strings.TrimSpace(req.AgentID)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.AgentID == "" || req.PhoneNumber == "" {
		return InitiateResult{}, fmt.Errorf("%w: agent_id and phone_number are required", ErrInvalidArgument)
	}
	if req.UserID == "" {
		return InitiateResult{}, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	callerID := strings.TrimSpace(req.AgentPhoneNumberID)
	if callerID == "" {
		callerID = in.defaultPhoneNumberID
	}
	if callerID == "" {
		return InitiateResult{}, fmt.Errorf("%w: agent_phone_number_id is required", ErrInvalidArgument)
	}

	log := logger.From(ctx).With("user_id", req.UserID, "agent_id", req.AgentID)

	if req.IdempotencyKey != "" {
		prev, err := in.repo.FindByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
		switch {
		case err == nil && prev.Status == StatusFailed:
			// Older failed rows may still hold the key; they never block a new attempt.
			log.Info("previous attempt failed, placing call again", "call_history_id", prev.ID)
		case err == nil:
			log.Info("call replayed from idempotency key", "call_history_id", prev.ID)
			return InitiateResult{ConversationID: prev.ConversationID, CallHistoryID: prev.ID, Replayed: true}, nil
		case !errors.Is(err, ErrNotFound):
			return InitiateResult{}, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	number := phone.Normalize(req.PhoneNumber, in.region)
	contactName := strings.TrimSpace(req.ContactName)
	if contactName == "" && in.contacts != nil {
		if name, err := in.contacts.LookupName(ctx, req.UserID, number); err != nil {
			log.Warn("contact lookup failed", "err", err)
		} else {
			contactName = name
		}
	}

	callReq := voice.OutboundCallRequest{
		AgentID:            req.AgentID,
		AgentPhoneNumberID: callerID,
		ToNumber:           number,
	}
	if contactName != "" {
		callReq.ClientData = &voice.ClientData{DynamicVariables: map[string]string{"contact_name": contactName}}
	}

	now := in.clock().UTC()
	rec := Record{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		PhoneNumber:    number,
		ContactName:    contactName,
		AgentID:        req.AgentID,
		Cost:           decimal.Zero,
		IdempotencyKey: req.IdempotencyKey,
		CallDate:       now,
		UpdatedAt:      now,
	}

	res, err := in.caller.OutboundCall(ctx, callReq)
	if err != nil {
		metrics.CallsInitiated.WithLabelValues("error").Inc()
		if apiErr, ok := voice.AsAPIError(err); ok {
			if convID := apiErr.ConversationID(); convID != "" {
				// Failed rows never carry the idempotency key, so a retry places the call.
				rec.Status = StatusFailed
				rec.IdempotencyKey = ""
				rec.ConversationID = convID
				rec.RawPayload = apiErr.Body
				in.insert(ctx, log, rec)
			}
		}
		return InitiateResult{}, err
	}
	if !res.Success && res.ConversationID == "" {
		metrics.CallsInitiated.WithLabelValues("rejected").Inc()
		return InitiateResult{}, fmt.Errorf("%w: %s", ErrProviderRejected, res.Message)
	}
	metrics.CallsInitiated.WithLabelValues("ok").Inc()

	rec.Status = StatusInitiated
	rec.ConversationID = res.ConversationID
	rec.RawPayload = res.Raw
	out := InitiateResult{ConversationID: res.ConversationID, CallSID: res.CallSID}
	if in.insert(ctx, log, rec) {
		out.CallHistoryID = rec.ID
	}

	if in.contacts != nil {
		_, _, err := in.contacts.RecordInteraction(ctx, contacts.RecordRequest{
			UserID:         req.UserID,
			Phone:          number,
			Name:           contactName,
			Type:           contacts.InteractionCall,
			OccurredAt:     now,
			AgentID:        req.AgentID,
			ConversationID: res.ConversationID,
			Outcome:        string(StatusInitiated),
		})
		if err != nil {
			log.Warn("contact interaction not recorded", "err", err)
		}
	}

	log.Info("call initiated", "conversation_id", res.ConversationID)
	return out, nil
}

func (in *Initiator) insert(ctx context.Context, log *slog.Logger, rec Record) bool {
	if err := in.repo.Insert(ctx, rec); err != nil {
		log.Error("call history insert failed", "err", err, "conversation_id", rec.ConversationID)
		return false
	}
	return true
}
