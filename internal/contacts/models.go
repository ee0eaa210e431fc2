package contacts

import "time"

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBlocked  Status = "blocked"
)

// Contact is a person a user's agents talk to. (UserID, Phone) is unique.
type Contact struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone"`
	Email         string     `json:"email,omitempty"`
	Company       string     `json:"company,omitempty"`
	Location      string     `json:"location,omitempty"`
	Country       string     `json:"country,omitempty"`
	Info          string     `json:"info,omitempty"`
	Status        Status     `json:"status"`
	Tags          []string   `json:"tags,omitempty"`
	LastContactAt *time.Time `json:"last_contact_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type InteractionType string

const (
	InteractionCall InteractionType = "call"
	InteractionSMS  InteractionType = "sms"
)

// Interaction is an append-only log entry attached to a contact.
type Interaction struct {
	ID             string          `json:"id"`
	ContactID      string          `json:"contact_id"`
	UserID         string          `json:"user_id"`
	Type           InteractionType `json:"type"`
	OccurredAt     time.Time       `json:"occurred_at"`
	DurationSecs   int             `json:"duration_secs"`
	Summary        string          `json:"summary,omitempty"`
	AgentID        string          `json:"agent_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Outcome        string          `json:"outcome,omitempty"`
}
