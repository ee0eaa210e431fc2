package scheduling

import (
	"time"

	"voice-agent-platform/internal/analytics"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
	StatusMissed    Status = "missed"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// ScheduledCall is a call to place at ScheduledAt.
//
// Status only moves forward:
// scheduled -> executing -> completed | failed
// scheduled -> cancelled | missed
type ScheduledCall struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	AgentID        string     `json:"agent_id,omitempty"`
	ClientName     string     `json:"client_name"`
	PhoneNumber    string     `json:"phone_number"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	Priority       Priority   `json:"priority"`
	Status         Status     `json:"status"`
	Notes          string     `json:"notes,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
	ExecutedAt     *time.Time `json:"executed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RunResult summarizes one executor run.
type RunResult struct {
	ExecutedTasks int          `json:"executedTasks"`
	FailedTasks   int          `json:"failedTasks"`
	MissedTasks   int64        `json:"missedTasks"`
	Skipped       bool         `json:"skipped,omitempty"`
	Details       []TaskDetail `json:"details"`

	Analytics      *analytics.Result `json:"analytics,omitempty"`
	AnalyticsError string            `json:"analyticsError,omitempty"`
}

type TaskDetail struct {
	ID             string `json:"id"`
	Status         Status `json:"status"`
	ConversationID string `json:"conversationId,omitempty"`
	Error          string `json:"error,omitempty"`
}
