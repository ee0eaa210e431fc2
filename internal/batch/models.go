package batch

import (
	"encoding/json"
	"time"
)

// BatchCall is the local display copy of a provider batch. The provider owns
// its lifecycle; rows are refreshed whenever the provider returns the batch.
type BatchCall struct {
	ID                  string          `json:"id"`
	UserID              string          `json:"user_id"`
	Name                string          `json:"name"`
	Status              string          `json:"status"`
	AgentID             string          `json:"agent_id"`
	AgentPhoneNumberID  string          `json:"agent_phone_number_id"`
	TotalCallsScheduled int             `json:"total_calls_scheduled"`
	CreatedAt           time.Time       `json:"created_at"`
	Raw                 json.RawMessage `json:"raw,omitempty"`
}

// fromProvider reads the batch fields the mirror keeps. ok is false when the
// body does not describe a single batch.
func fromProvider(userID string, raw json.RawMessage, now time.Time) (BatchCall, bool) {
	var p struct {
		ID                  string `json:"id"`
		Name                string `json:"name"`
		Status              string `json:"status"`
		AgentID             string `json:"agent_id"`
		PhoneNumberID       string `json:"phone_number_id"`
		TotalCallsScheduled int    `json:"total_calls_scheduled"`
		CreatedAtUnix       int64  `json:"created_at_unix"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return BatchCall{}, false
	}
	created := now
	if p.CreatedAtUnix > 0 {
		created = time.Unix(p.CreatedAtUnix, 0).UTC()
	}
	return BatchCall{
		ID:                  p.ID,
		UserID:              userID,
		Name:                p.Name,
		Status:              p.Status,
		AgentID:             p.AgentID,
		AgentPhoneNumberID:  p.PhoneNumberID,
		TotalCallsScheduled: p.TotalCallsScheduled,
		CreatedAt:           created,
		Raw:                 raw,
	}, true
}
