package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-agent-platform/pkg/phone"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("contact not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Service owns contact upserts and the interaction log.
type Service struct {
	store  Store
	region string
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store Store, phoneRegion string) *Service {
	return &Service{store: store, region: phoneRegion, clock: time.Now}
}

// RecordRequest describes one interaction with a phone number.
type RecordRequest struct {
	UserID         string          `json:"user_id"`
	Phone          string          `json:"phone" binding:"required"`
	Name           string          `json:"name,omitempty"`
	Type           InteractionType `json:"type"`
	OccurredAt     time.Time       `json:"occurred_at"`
	DurationSecs   int             `json:"duration_secs"`
	Summary        string          `json:"summary,omitempty"`
	AgentID        string          `json:"agent_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Outcome        string          `json:"outcome,omitempty"`
}

// RecordInteraction upserts the contact for (user, phone) and appends one
// interaction, both in a single transaction. An unknown phone creates the
// contact; a known one only advances last_contact_at.
func (s *Service) RecordInteraction(ctx context.Context, req RecordRequest) (Contact, Interaction, error) {
	if req.UserID == "" || strings.TrimSpace(req.Phone) == "" {
		return Contact{}, Interaction{}, ErrInvalidArgument
	}
	switch req.Type {
	case "":
		req.Type = InteractionCall
	case InteractionCall, InteractionSMS:
	default:
		return Contact{}, Interaction{}, fmt.Errorf("%w: unknown interaction type %q", ErrInvalidArgument, req.Type)
	}

	now := s.clock().UTC()
	at := req.OccurredAt.UTC()
	if req.OccurredAt.IsZero() {
		at = now
	}
	number := s.Normalize(req.Phone)

	var outContact Contact
	var outInteraction Interaction
	err := s.store.InTx(ctx, func(ctx context.Context, repo Repository) error {
		c, _, err := repo.UpsertContact(ctx, Contact{
			ID:            uuid.NewString(),
			UserID:        req.UserID,
			Name:          strings.TrimSpace(req.Name),
			Phone:         number,
			LastContactAt: &at,
			CreatedAt:     now,
		})
		if err != nil {
			return fmt.Errorf("upsert contact: %w", err)
		}

		i := Interaction{
			ID:             uuid.NewString(),
			ContactID:      c.ID,
			UserID:         req.UserID,
			Type:           req.Type,
			OccurredAt:     at,
			DurationSecs:   req.DurationSecs,
			Summary:        req.Summary,
			AgentID:        req.AgentID,
			ConversationID: req.ConversationID,
			Outcome:        req.Outcome,
		}
		if err := repo.InsertInteraction(ctx, i); err != nil {
			return fmt.Errorf("insert interaction: %w", err)
		}
		outContact, outInteraction = c, i
		return nil
	})
	if err != nil {
		return Contact{}, Interaction{}, err
	}
	return outContact, outInteraction, nil
}

// Save creates or updates a contact entered manually. Status and Tags replace
// the stored values when given; omitted, they are kept.
func (s *Service) Save(ctx context.Context, c Contact) (Contact, error) {
	if c.UserID == "" || strings.TrimSpace(c.Phone) == "" {
		return Contact{}, ErrInvalidArgument
	}
	switch c.Status {
	case "", StatusActive, StatusInactive, StatusBlocked:
	default:
		return Contact{}, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, c.Status)
	}
	now := s.clock().UTC()
	c.ID = uuid.NewString()
	c.Phone = s.Normalize(c.Phone)
	c.Name = strings.TrimSpace(c.Name)
	c.CreatedAt = now
	out, _, err := s.store.UpsertContact(ctx, c)
	return out, err
}

// LookupName returns the stored name for (user, phone), or "" when unknown.
func (s *Service) LookupName(ctx context.Context, userID, rawPhone string) (string, error) {
	c, err := s.store.FindByPhone(ctx, userID, s.Normalize(rawPhone))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return c.Name, nil
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]Contact, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListContacts(ctx, userID, limit)
}

func (s *Service) Interactions(ctx context.Context, contactID string, limit int) ([]Interaction, error) {
	if contactID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return s.store.ListInteractions(ctx, contactID, limit)
}

// Normalize maps a raw number to the stored contact key.
func (s *Service) Normalize(raw string) string {
	return phone.Normalize(raw, s.region)
}

func lastContact(c Contact) time.Time {
	if c.LastContactAt == nil {
		return time.Time{}
	}
	return *c.LastContactAt
}
