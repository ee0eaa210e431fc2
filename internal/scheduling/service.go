package scheduling

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
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotCancellable  = errors.New("scheduled call is no longer cancellable")
)

type ScheduleRequest struct {
	AgentID     string    `json:"agent_id"`
	ClientName  string    `json:"client_name"`
	PhoneNumber string    `json:"phone_number" binding:"required"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	Priority    Priority  `json:"priority"`
	Notes       string    `json:"notes"`
}

// Service is the user-facing side of scheduled calls.
type Service struct {
	repo   Repository
	agents AgentResolver
	region string
	clock  func() time.Time
}

// NewService builds the scheduling service. A nil resolver only checks that
// agent ids are well-formed.
func NewService(repo Repository, resolver AgentResolver, phoneRegion string) *Service {
	return &Service{repo: repo, agents: resolver, region: phoneRegion, clock: time.Now}
}

// Schedule stores a new call. Times inside the due window are accepted so a
// call scheduled "now" is picked up by the next run.
func (s *Service) Schedule(ctx context.Context, userID string, req ScheduleRequest) (ScheduledCall, error) {
	if userID == "" {
		return ScheduledCall{}, fmt.Errorf("%w: user_id is required", ErrInvalidArgument)
	}
	number, err := phone.E164(req.PhoneNumber, s.region)
	if err != nil {
		return ScheduledCall{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	now := s.clock().UTC()
	if req.ScheduledAt.IsZero() || req.ScheduledAt.Before(now.Add(-DueWindow)) {
		return ScheduledCall{}, fmt.Errorf("%w: scheduled_at must not be in the past", ErrInvalidArgument)
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if !req.Priority.Valid() {
		return ScheduledCall{}, fmt.Errorf("%w: priority must be low, medium or high", ErrInvalidArgument)
	}

	agentID := strings.TrimSpace(req.AgentID)
	if agentID != "" {
		if _, err := uuid.Parse(agentID); err != nil {
			return ScheduledCall{}, fmt.Errorf("%w: agent_id must be a uuid", ErrInvalidArgument)
		}
		if s.agents != nil {
			if _, err := s.agents.ResolveForCall(ctx, userID, agentID); err != nil {
				return ScheduledCall{}, fmt.Errorf("resolve agent: %w", err)
			}
		}
	}

	sc := ScheduledCall{
		ID:          uuid.NewString(),
		UserID:      userID,
		AgentID:     agentID,
		ClientName:  strings.TrimSpace(req.ClientName),
		PhoneNumber: number,
		ScheduledAt: req.ScheduledAt.UTC(),
		Priority:    req.Priority,
		Status:      StatusScheduled,
		Notes:       strings.TrimSpace(req.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, sc); err != nil {
		return ScheduledCall{}, err
	}
	return sc, nil
}

func (s *Service) Cancel(ctx context.Context, userID, id string) error {
	if userID == "" || id == "" {
		return ErrInvalidArgument
	}
	ok, err := s.repo.Cancel(ctx, userID, id, s.clock().UTC())
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	sc, err := s.repo.Get(ctx, id)
	if err != nil || sc.UserID != userID {
		return ErrNotFound
	}
	return ErrNotCancellable
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]ScheduledCall, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListByUser(ctx, userID, limit)
}
