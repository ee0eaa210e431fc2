package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"voice-agent-platform/internal/analytics"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/credits"
)

// MemoryRepo is an in-memory reporting repository for tests. It enforces user
// isolation on reads.
type MemoryRepo struct {
	mu sync.Mutex

	Calls     []calls.Record
	Ledger    []credits.LedgerEntry
	Analytics []analytics.ConversationAnalytics
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Record, error) {
	if userID == "" {
		return nil, errors.New("user_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Record, 0)
	for _, c := range r.Calls {
		if c.UserID != userID || c.CallDate.Before(from) || !c.CallDate.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *MemoryRepo) ListLedger(ctx context.Context, userID string, from, to time.Time) ([]credits.LedgerEntry, error) {
	if userID == "" {
		return nil, errors.New("user_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]credits.LedgerEntry, 0)
	for _, l := range r.Ledger {
		if l.UserID != userID || l.CreatedAt.Before(from) || !l.CreatedAt.Before(to) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *MemoryRepo) ListAnalytics(ctx context.Context, userID string, from, to time.Time) ([]analytics.ConversationAnalytics, error) {
	if userID == "" {
		return nil, errors.New("user_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	own := make([]analytics.ConversationAnalytics, 0)
	for _, a := range r.Analytics {
		if a.UserID == userID {
			own = append(own, a)
		}
	}
	return inRange(own, from, to), nil
}
