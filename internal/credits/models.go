package credits

import "time"

// LedgerEntry is an immutable credit movement for one user.
// Grants are positive, charges negative. Every balance change has exactly one entry.
type LedgerEntry struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	Type   EntryType `json:"type"`
	Amount int64     `json:"amount"`

	// Source tags where the movement came from: "purchase", "free_tier",
	// "admin_grant", "call_usage".
	Source string `json:"source"`

	// IdempotencyKey is unique per user; replays return the original entry.
	IdempotencyKey string `json:"idempotency_key"`

	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type EntryType string

const (
	EntryTypeGrant  EntryType = "grant"
	EntryTypeCharge EntryType = "charge"
)

const (
	SourcePurchase   = "purchase"
	SourceFreeTier   = "free_tier"
	SourceAdminGrant = "admin_grant"
	SourceCallUsage  = "call_usage"
)

// Balance is the projection kept in step with the ledger.
type Balance struct {
	UserID    string    `json:"user_id"`
	Credits   int64     `json:"credits"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdminAction records a manual grant together with who made it and why.
type AdminAction struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	AdminUserID     string    `json:"admin_user_id"`
	AdminRole       string    `json:"admin_role"`
	Reason          string    `json:"reason"`
	Amount          int64     `json:"amount"`
	RelatedLedgerID string    `json:"related_ledger_id"`
	CreatedAt       time.Time `json:"created_at"`
}
