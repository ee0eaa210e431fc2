package audit

import "time"

// Event is an append-only record of a privileged or destructive action.
//
// Events are never updated or deleted. Actor and IP capture are best-effort;
// a failed audit write never blocks the action itself.
type Event struct {
	ID string `json:"id"`

	// UserID is the account the action was applied to.
	UserID string    `json:"user_id"`
	Type   EventType `json:"type"`

	ActorUserID string `json:"actor_user_id,omitempty"`
	ActorRole   string `json:"actor_role,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`

	// Subject identifies the affected row (ledger entry, scheduled call).
	Subject string `json:"subject,omitempty"`
	Message string `json:"message,omitempty"`
	// Metadata is optional JSON.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventCreditGrant       EventType = "admin_credit_grant"
	EventScheduleCancelled EventType = "scheduled_call_cancelled"
)
