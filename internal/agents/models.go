package agents

import "time"

// Agent maps an internal agent id to the provider's agent and its configuration.
// Agents are never hard-deleted; Active=false hides them from scheduling.
type Agent struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	ProviderAgentID string    `json:"provider_agent_id"`
	VoiceID         string    `json:"voice_id,omitempty"`
	SystemPrompt    string    `json:"system_prompt,omitempty"`
	Language        string    `json:"language,omitempty"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
