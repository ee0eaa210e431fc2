package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is append-only. No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, q Query) ([]Event, error)
}

// Query selects one account's events, newest first. Type is optional.
type Query struct {
	UserID string
	Type   EventType
	Limit  int
}

// Service records internal audit events. Records are for operators and are
// not exposed to end users. Callers treat logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.UserID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// List returns the events recorded against an account for operators.
func (s *Service) List(ctx context.Context, q Query) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if q.UserID == "" {
		return nil, ErrInvalidEvent
	}
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	return s.repo.List(ctx, q)
}

// LogCreditGrant records a manual credit grant made by an admin.
func (s *Service) LogCreditGrant(ctx context.Context, userID, actorUserID, actorRole, ip, entryID string, amount int64, reason string) error {
	meta, _ := json.Marshal(map[string]any{"amount": amount, "reason": reason})
	return s.Append(ctx, Event{
		UserID:      userID,
		Type:        EventCreditGrant,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Subject:     entryID,
		Message:     "credits granted",
		Metadata:    string(meta),
	})
}

// LogScheduleCancelled records a user or admin cancelling a pending call.
func (s *Service) LogScheduleCancelled(ctx context.Context, userID, actorUserID, actorRole, ip, scheduledCallID string) error {
	return s.Append(ctx, Event{
		UserID:      userID,
		Type:        EventScheduleCancelled,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Subject:     scheduledCallID,
		Message:     "scheduled call cancelled",
	})
}
