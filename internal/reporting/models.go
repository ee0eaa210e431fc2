package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

// CallsSummaryRequest aggregates one user's call history. AgentID narrows the
// summary to one provider agent.
type CallsSummaryRequest struct {
	UserID  string    `json:"user_id"`
	Range   TimeRange `json:"range"`
	AgentID string    `json:"agent_id,omitempty"`
}

type CallsSummary struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id,omitempty"`

	TotalCalls      int `json:"total_calls"`
	SuccessfulCalls int `json:"successful_calls"`
	FailedCalls     int `json:"failed_calls"`
	NoAnswerCalls   int `json:"no_answer_calls"`
	BusyCalls       int `json:"busy_calls"`
	PendingCalls    int `json:"pending_calls"`

	TotalDurationSeconds   int             `json:"total_duration_seconds"`
	AverageDurationSeconds int             `json:"average_duration_seconds"`
	TotalCost              decimal.Decimal `json:"total_cost"`
	SuccessRate            float64         `json:"success_rate"`
}

// CreditsSummary is derived from immutable ledger entries.
type CreditsSummary struct {
	UserID string `json:"user_id"`

	Granted  int64 `json:"granted"`
	Consumed int64 `json:"consumed"`
	Net      int64 `json:"net"`

	Purchased    int64 `json:"purchased"`
	FreeTier     int64 `json:"free_tier"`
	AdminGranted int64 `json:"admin_granted"`
}

// ConversationInsights summarizes the analytics cache for one user.
type ConversationInsights struct {
	UserID        string         `json:"user_id"`
	Conversations int            `json:"conversations"`
	Sentiment     map[string]int `json:"sentiment"`
	TopTopics     []TopicCount   `json:"top_topics"`
	AvgTalkRatio  float64        `json:"avg_talk_ratio"`
}

type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

type Report struct {
	Calls    CallsSummary         `json:"calls"`
	Credits  CreditsSummary       `json:"credits"`
	Insights ConversationInsights `json:"insights"`
}
