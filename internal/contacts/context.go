package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-agent-platform/internal/agents"
	"voice-agent-platform/pkg/logger"
)

const recentInteractionLimit = 5

// AgentLookup resolves a provider agent id to its owning local agent.
type AgentLookup interface {
	ByProviderID(ctx context.Context, providerAgentID string) (agents.Agent, error)
}

// CallerContext is what the voice agent is told about the person on the line.
type CallerContext struct {
	ContextFound      bool              `json:"context_found"`
	Contact           *ContactSummary   `json:"contact_context,omitempty"`
	AgentInstructions string            `json:"agent_instructions"`
	DynamicVariables  map[string]string `json:"dynamic_variables,omitempty"`
}

type ContactSummary struct {
	Name               string        `json:"name"`
	Phone              string        `json:"phone"`
	Company            string        `json:"company,omitempty"`
	Email              string        `json:"email,omitempty"`
	Notes              string        `json:"notes,omitempty"`
	LastContactAt      *time.Time    `json:"last_contact_at,omitempty"`
	RecentInteractions []Interaction `json:"recent_interactions"`
}

// ContextBuilder answers the provider's caller-context webhook.
type ContextBuilder struct {
	svc    *Service
	agents AgentLookup
}

func NewContextBuilder(svc *Service, agents AgentLookup) *ContextBuilder {
	return &ContextBuilder{svc: svc, agents: agents}
}

// Build looks up the caller by phone. With an agent id the search is scoped to
// the agent owner's contacts; without one the most recently contacted match wins.
func (b *ContextBuilder) Build(ctx context.Context, rawPhone, providerAgentID string) (CallerContext, error) {
	if strings.TrimSpace(rawPhone) == "" {
		return CallerContext{}, fmt.Errorf("%w: phone_number is required", ErrInvalidArgument)
	}
	number := b.svc.Normalize(rawPhone)

	var (
		c   Contact
		err error
	)
	userID := ""
	if providerAgentID != "" && b.agents != nil {
		a, aerr := b.agents.ByProviderID(ctx, providerAgentID)
		switch {
		case aerr == nil:
			userID = a.UserID
		case errors.Is(aerr, agents.ErrNotFound):
			logger.From(ctx).Info("caller context: unknown agent", "agent_id", providerAgentID)
		default:
			return CallerContext{}, aerr
		}
	}
	if userID != "" {
		c, err = b.svc.store.FindByPhone(ctx, userID, number)
	} else {
		c, err = b.svc.store.FindLatestByPhone(ctx, number)
	}
	if errors.Is(err, ErrNotFound) {
		return CallerContext{
			ContextFound:      false,
			AgentInstructions: "This caller is not in the contact list. Introduce yourself and ask for their name.",
		}, nil
	}
	if err != nil {
		return CallerContext{}, err
	}

	recent, err := b.svc.store.ListInteractions(ctx, c.ID, recentInteractionLimit)
	if err != nil {
		return CallerContext{}, err
	}
	if recent == nil {
		recent = []Interaction{}
	}

	summary := &ContactSummary{
		Name:               c.Name,
		Phone:              c.Phone,
		Company:            c.Company,
		Email:              c.Email,
		Notes:              c.Info,
		LastContactAt:      c.LastContactAt,
		RecentInteractions: recent,
	}
	vars := map[string]string{"contact_name": c.Name}
	if c.Company != "" {
		vars["contact_company"] = c.Company
	}
	return CallerContext{
		ContextFound:      true,
		Contact:           summary,
		AgentInstructions: instructions(c, recent),
		DynamicVariables:  vars,
	}, nil
}

func instructions(c Contact, recent []Interaction) string {
	var b strings.Builder
	name := c.Name
	if name == "" {
		name = "this caller"
	}
	fmt.Fprintf(&b, "You are speaking with %s", name)
	if c.Company != "" {
		fmt.Fprintf(&b, " from %s", c.Company)
	}
	b.WriteString(".")
	if c.Info != "" {
		fmt.Fprintf(&b, " Notes: %s.", strings.TrimSuffix(c.Info, "."))
	}
	if len(recent) == 0 {
		b.WriteString(" This is your first recorded conversation.")
		return b.String()
	}
	last := recent[0]
	fmt.Fprintf(&b, " You have spoken %d time(s) recently; the last %s was on %s",
		len(recent), last.Type, last.OccurredAt.Format("2006-01-02"))
	if last.Summary != "" {
		fmt.Fprintf(&b, " (%s)", strings.TrimSuffix(last.Summary, "."))
	}
	b.WriteString(". Greet them by name and pick up where you left off.")
	return b.String()
}
