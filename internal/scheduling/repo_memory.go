package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]ScheduledCall
}

func NewMemoryRepo(seed ...ScheduledCall) *MemoryRepo {
	r := &MemoryRepo{rows: map[string]ScheduledCall{}}
	for _, sc := range seed {
		r.rows[sc.ID] = sc
	}
	return r
}

func (r *MemoryRepo) Create(ctx context.Context, sc ScheduledCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[sc.ID] = sc
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.rows[id]
	if !ok {
		return ScheduledCall{}, ErrNotFound
	}
	return sc, nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit int) ([]ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ScheduledCall, 0)
	for _, sc := range r.rows {
		if sc.UserID == userID {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListDue(ctx context.Context, from, to time.Time) ([]ScheduledCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ScheduledCall, 0)
	for _, sc := range r.rows {
		if sc.Status != StatusScheduled || sc.ScheduledAt.Before(from) || sc.ScheduledAt.After(to) {
			continue
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.rank() != out[j].Priority.rank() {
			return out[i].Priority.rank() < out[j].Priority.rank()
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

func (r *MemoryRepo) MarkMissed(ctx context.Context, before, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, sc := range r.rows {
		if sc.Status == StatusScheduled && sc.ScheduledAt.Before(before) {
			sc.Status = StatusMissed
			sc.UpdatedAt = at
			r.rows[id] = sc
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.move(id, StatusScheduled, func(sc *ScheduledCall) {
		sc.Status = StatusExecuting
		sc.ExecutedAt = &at
		sc.UpdatedAt = at
	}), nil
}

func (r *MemoryRepo) Complete(ctx context.Context, id, conversationID string, at time.Time) error {
	ok := r.move(id, StatusExecuting, func(sc *ScheduledCall) {
		sc.Status = StatusCompleted
		sc.ConversationID = conversationID
		sc.UpdatedAt = at
	})
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *MemoryRepo) Fail(ctx context.Context, id, note string, at time.Time) error {
	ok := r.move(id, StatusExecuting, func(sc *ScheduledCall) {
		sc.Status = StatusFailed
		if sc.Notes == "" {
			sc.Notes = note
		} else {
			sc.Notes += "\n" + note
		}
		sc.UpdatedAt = at
	})
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *MemoryRepo) Cancel(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	sc, ok := r.rows[id]
	r.mu.Unlock()
	if !ok || sc.UserID != userID {
		return false, nil
	}
	return r.move(id, StatusScheduled, func(sc *ScheduledCall) {
		sc.Status = StatusCancelled
		sc.UpdatedAt = at
	}), nil
}

func (r *MemoryRepo) move(id string, from Status, apply func(*ScheduledCall)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.rows[id]
	if !ok || sc.Status != from {
		return false
	}
	apply(&sc)
	r.rows[id] = sc
	return true
}
