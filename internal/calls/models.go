package calls

import (
	"encoding/json"
	"strings"
	"time"

	"voice-agent-platform/internal/voice"

	"github.com/shopspring/decimal"
)

// Record is one row of call history. It is written when a call is placed and
// completed later, by a status check or the analytics backfill, with the
// provider's final status, cost and duration.
type Record struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	PhoneNumber    string          `json:"phone_number"`
	ContactName    string          `json:"contact_name,omitempty"`
	Status         Status          `json:"call_status"`
	ConversationID string          `json:"conversation_id,omitempty"`
	AgentID        string          `json:"agent_id,omitempty"`
	Cost           decimal.Decimal `json:"cost"`
	DurationSecs   int             `json:"duration_secs"`
	RawPayload     json.RawMessage `json:"raw_payload,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CallDate       time.Time       `json:"call_date"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusBusy      Status = "busy"
	StatusNoAnswer  Status = "no-answer"
	StatusUnknown   Status = "unknown"
)

// Outcome is the completion data applied to a Record.
type Outcome struct {
	Status       Status
	Cost         decimal.Decimal
	DurationSecs int
}

// OutcomeFromConversation maps a finished provider conversation onto a history outcome.
func OutcomeFromConversation(conv voice.Conversation) Outcome {
	out := Outcome{
		Status:       StatusUnknown,
		Cost:         conv.Metadata.Cost,
		DurationSecs: conv.Metadata.CallDurationSecs,
	}
	reason := strings.ToLower(conv.Metadata.TerminationReason)
	switch {
	case strings.Contains(reason, "busy"):
		out.Status = StatusBusy
	case strings.Contains(reason, "no-answer"), strings.Contains(reason, "no answer"), strings.Contains(reason, "not answered"):
		out.Status = StatusNoAnswer
	case conv.Status == voice.ConversationFailed:
		out.Status = StatusFailed
	case conv.Status == voice.ConversationDone:
		out.Status = StatusSuccess
	}
	return out
}
