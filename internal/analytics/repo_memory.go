package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	"voice-agent-platform/internal/calls"
)

// MemoryRepo is an in-memory Repository for tests. Eligibility reads the
// records held by the wrapped calls.MemoryRepo.
type MemoryRepo struct {
	mu      sync.Mutex
	history *calls.MemoryRepo
	rows    map[string]ConversationAnalytics
	tries   map[string]attempt
	upserts int
}

type attempt struct {
	count int
	at    time.Time
}

func NewMemoryRepo(history *calls.MemoryRepo) *MemoryRepo {
	return &MemoryRepo{history: history, rows: map[string]ConversationAnalytics{}, tries: map[string]attempt{}}
}

func (r *MemoryRepo) ListEligible(ctx context.Context, q EligibleQuery) ([]calls.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []calls.Record
	for _, rec := range r.history.All() {
		if rec.ConversationID == "" || !rec.CallDate.Before(q.Cutoff) {
			continue
		}
		if a, ok := r.tries[rec.ID]; ok && (a.count >= q.MaxAttempts || !a.at.Before(q.RetryBefore)) {
			continue
		}
		if rec.Status != calls.StatusInitiated && rec.Status != calls.StatusSuccess {
			continue
		}
		if _, cached := r.rows[key(rec.UserID, rec.ConversationID)]; cached {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := r.tries[out[i].ID], r.tries[out[j].ID]
		if !ai.at.Equal(aj.at) {
			return ai.at.Before(aj.at)
		}
		return out[i].CallDate.Before(out[j].CallDate)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) MarkAttempted(ctx context.Context, callHistoryID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.tries[callHistoryID]
	a.count++
	a.at = at
	r.tries[callHistoryID] = a
	return nil
}

// Attempts reports how many times the history row was tried without caching.
func (r *MemoryRepo) Attempts(callHistoryID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tries[callHistoryID].count
}

func (r *MemoryRepo) Upsert(ctx context.Context, a ConversationAnalytics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[key(a.UserID, a.ConversationID)] = a
	r.upserts++
	return nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit int) ([]ConversationAnalytics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ConversationAnalytics, 0)
	for _, a := range r.rows {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt.After(out[j].ProcessedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Upserts counts every Upsert call since creation.
func (r *MemoryRepo) Upserts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts
}

func (r *MemoryRepo) Get(userID, conversationID string) (ConversationAnalytics, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[key(userID, conversationID)]
	return a, ok
}

func key(userID, conversationID string) string { return userID + "|" + conversationID }
