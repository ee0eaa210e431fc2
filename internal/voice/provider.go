package voice

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Provider is the conversational voice API used by business logic.
//
// Rules:
// - No raw HTTP to the provider outside this package.
// - Batch operations return the provider body untouched; callers relay it as-is.
// - Non-2xx responses surface as *APIError.
type Provider interface {
	Caller
	Conversations
	Batches
}

// Caller places single outbound calls.
type Caller interface {
	OutboundCall(ctx context.Context, req OutboundCallRequest) (OutboundCallResult, error)
}

// Conversations reads finished or in-flight conversations and agent metadata.
type Conversations interface {
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
	GetAgent(ctx context.Context, agentID string) (AgentInfo, error)
}

// Batches is the batch-calling surface.
type Batches interface {
	SubmitBatch(ctx context.Context, req BatchSubmitRequest) (json.RawMessage, error)
	ListBatches(ctx context.Context, limit int, lastDoc string) (json.RawMessage, error)
	GetBatch(ctx context.Context, batchID string) (json.RawMessage, error)
	CancelBatch(ctx context.Context, batchID string) (json.RawMessage, error)
	RetryBatch(ctx context.Context, batchID string) (json.RawMessage, error)
}

type OutboundCallRequest struct {
	AgentID            string `json:"agent_id"`
	AgentPhoneNumberID string `json:"agent_phone_number_id"`
	ToNumber           string `json:"to_number"`

	// ClientData is forwarded as conversation_initiation_client_data.
	ClientData *ClientData `json:"conversation_initiation_client_data,omitempty"`
}

// ClientData personalizes a conversation at start.
type ClientData struct {
	DynamicVariables map[string]string `json:"dynamic_variables,omitempty"`
}

type OutboundCallResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	CallSID        string `json:"callSid"`

	Raw json.RawMessage `json:"-"`
}

// Conversation status values reported by the provider.
const (
	ConversationInitiated  = "initiated"
	ConversationInProgress = "in-progress"
	ConversationProcessing = "processing"
	ConversationDone       = "done"
	ConversationFailed     = "failed"
)

type Conversation struct {
	AgentID        string               `json:"agent_id"`
	ConversationID string               `json:"conversation_id"`
	Status         string               `json:"status"`
	Transcript     []TranscriptTurn     `json:"transcript"`
	Metadata       ConversationMetadata `json:"metadata"`
	Analysis       *Analysis            `json:"analysis,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// IsFinished reports whether the provider will no longer change the conversation.
func (c Conversation) IsFinished() bool {
	return c.Status == ConversationDone || c.Status == ConversationFailed
}

type TranscriptTurn struct {
	Role           string  `json:"role"`
	Message        string  `json:"message"`
	TimeInCallSecs float64 `json:"time_in_call_secs"`
}

type ConversationMetadata struct {
	StartTimeUnixSecs int64           `json:"start_time_unix_secs"`
	CallDurationSecs  int             `json:"call_duration_secs"`
	Cost              decimal.Decimal `json:"cost"`
	TerminationReason string          `json:"termination_reason,omitempty"`
	PhoneCall         *PhoneCall      `json:"phone_call,omitempty"`
}

type PhoneCall struct {
	Direction      string `json:"direction"`
	AgentNumber    string `json:"agent_number"`
	ExternalNumber string `json:"external_number"`
	CallSID        string `json:"call_sid"`
}

type Analysis struct {
	CallSuccessful            string                          `json:"call_successful"`
	TranscriptSummary         string                          `json:"transcript_summary"`
	EvaluationCriteriaResults map[string]CriterionResult      `json:"evaluation_criteria_results"`
	DataCollectionResults     map[string]DataCollectionResult `json:"data_collection_results"`
}

type CriterionResult struct {
	CriteriaID string `json:"criteria_id"`
	Result     string `json:"result"`
	Rationale  string `json:"rationale"`
}

type DataCollectionResult struct {
	DataCollectionID string `json:"data_collection_id"`
	Value            any    `json:"value"`
	Rationale        string `json:"rationale"`
}

type AgentInfo struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

// BatchRecipient is one batch target. A recipient decoded from JSON keeps its
// original bytes and is sent back out unchanged, fields not named here included.
type BatchRecipient struct {
	PhoneNumber string      `json:"phone_number" validate:"required"`
	ClientData  *ClientData `json:"conversation_initiation_client_data,omitempty"`

	raw json.RawMessage
}

type plainRecipient BatchRecipient

func (r *BatchRecipient) UnmarshalJSON(b []byte) error {
	var p plainRecipient
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = BatchRecipient(p)
	r.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (r BatchRecipient) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	return json.Marshal(plainRecipient(r))
}

// BatchSubmitRequest is forwarded to the provider field-for-field.
type BatchSubmitRequest struct {
	CallName           string           `json:"call_name"`
	AgentID            string           `json:"agent_id"`
	AgentPhoneNumberID string           `json:"agent_phone_number_id"`
	Recipients         []BatchRecipient `json:"recipients"`
	ScheduledTimeUnix  *int64           `json:"scheduled_time_unix,omitempty"`
}
