package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voice-agent-platform/internal/voice"
	"voice-agent-platform/pkg/logger"
)

// ErrForbidden is returned when a batch id belongs to another user's mirror row.
var ErrForbidden = errors.New("batch belongs to another user")

// Submitter relays batch actions to the provider. Provider bodies are
// returned unmodified; the local mirror is refreshed best-effort.
type Submitter struct {
	provider voice.Batches
	mirror   Repository
	clock    func() time.Time
}

func NewSubmitter(provider voice.Batches, mirror Repository) *Submitter {
	return &Submitter{provider: provider, mirror: mirror, clock: time.Now}
}

func (s *Submitter) Do(ctx context.Context, userID string, req Request) (json.RawMessage, error) {
	var (
		body json.RawMessage
		err  error
	)
	switch r := req.(type) {
	case SubmitRequest:
		body, err = s.provider.SubmitBatch(ctx, voice.BatchSubmitRequest{
			CallName:           r.CallName,
			AgentID:            r.AgentID,
			AgentPhoneNumberID: r.AgentPhoneNumberID,
			Recipients:         r.Recipients,
			ScheduledTimeUnix:  r.ScheduledTimeUnix,
		})
	case ListRequest:
		return s.provider.ListBatches(ctx, r.Limit, r.LastDoc)
	case BatchIDRequest:
		if err := s.checkOwner(ctx, userID, r.BatchID); err != nil {
			return nil, err
		}
		switch r.Action() {
		case ActionDetails:
			body, err = s.provider.GetBatch(ctx, r.BatchID)
		case ActionCancel:
			body, err = s.provider.CancelBatch(ctx, r.BatchID)
		case ActionRetry:
			body, err = s.provider.RetryBatch(ctx, r.BatchID)
		default:
			return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidRequest, r.Action())
		}
	default:
		return nil, fmt.Errorf("%w: unsupported request %T", ErrInvalidRequest, req)
	}
	if err != nil {
		return nil, err
	}

	s.remember(ctx, userID, body)
	return body, nil
}

// checkOwner rejects ids mirrored for a different user. Batches the mirror
// never saw are passed through; the provider scopes them to the workspace.
func (s *Submitter) checkOwner(ctx context.Context, userID, batchID string) error {
	if s.mirror == nil {
		return nil
	}
	b, err := s.mirror.Get(ctx, batchID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("load batch %s: %w", batchID, err)
	case b.UserID != userID:
		return ErrForbidden
	}
	return nil
}

func (s *Submitter) List(ctx context.Context, userID string, limit int) ([]BatchCall, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.mirror.ListByUser(ctx, userID, limit)
}

func (s *Submitter) remember(ctx context.Context, userID string, body json.RawMessage) {
	if s.mirror == nil || userID == "" {
		return
	}
	b, ok := fromProvider(userID, body, s.clock().UTC())
	if !ok {
		return
	}
	if err := s.mirror.Upsert(ctx, b); err != nil {
		logger.From(ctx).Warn("batch mirror upsert failed", "batch_id", b.ID, "err", err)
	}
}
