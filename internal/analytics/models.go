package analytics

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// ConversationAnalytics is the cached, derived view of one finished conversation.
// (UserID, ConversationID) is unique; a row's presence means "already processed".
type ConversationAnalytics struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	ConversationID string          `json:"conversation_id"`
	CallHistoryID  string          `json:"call_history_id"`
	AgentID        string          `json:"agent_id"`
	AgentName      string          `json:"agent_name,omitempty"`
	PhoneNumber    string          `json:"phone_number"`
	DurationSecs   int             `json:"duration_secs"`
	Cost           decimal.Decimal `json:"cost"`
	CallSuccessful string          `json:"call_successful,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Transcript     json.RawMessage `json:"transcript"`
	Sentiment      Sentiment       `json:"sentiment"`
	Keywords       []string        `json:"keywords"`
	Topics         []string        `json:"topics"`
	Metrics        Metrics         `json:"metrics"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	ProcessedAt    time.Time       `json:"processed_at"`
}

// Metrics are conversation-level counters derived from the transcript.
type Metrics struct {
	Turns               int     `json:"turns"`
	AgentTurns          int     `json:"agent_turns"`
	UserTurns           int     `json:"user_turns"`
	UserWords           int     `json:"user_words"`
	AgentWords          int     `json:"agent_words"`
	AvgUserTurnWords    float64 `json:"avg_user_turn_words"`
	TalkRatio           float64 `json:"talk_ratio"`
	EvaluationsPassed   int     `json:"evaluations_passed"`
	EvaluationsFailed   int     `json:"evaluations_failed"`
	DataPointsCollected int     `json:"data_points_collected"`
}

// Result summarizes one backfill run.
type Result struct {
	Processed int         `json:"processed"`
	OK        int         `json:"ok"`
	Pending   int         `json:"pending"`
	Failed    int         `json:"failed"`
	Details   []RowDetail `json:"details"`
}

type RowDetail struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}
