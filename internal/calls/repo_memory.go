package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]Record

	// FailInsert makes Insert fail with the given error.
	FailInsert error
}

func NewMemoryRepo(seed ...Record) *MemoryRepo {
	r := &MemoryRepo{records: map[string]Record{}}
	for _, rec := range seed {
		r.records[rec.ID] = rec
	}
	return r
}

func (r *MemoryRepo) Insert(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailInsert != nil {
		return r.FailInsert
	}
	if rec.IdempotencyKey != "" {
		for _, existing := range r.records {
			if existing.UserID == rec.UserID && existing.IdempotencyKey == rec.IdempotencyKey {
				return ErrDuplicate
			}
		}
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CallDate
	}
	r.records[rec.ID] = rec
	return nil
}

func (r *MemoryRepo) FindByIdempotencyKey(ctx context.Context, userID, key string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.UserID == userID && rec.IdempotencyKey == key {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (r *MemoryRepo) FindByConversationID(ctx context.Context, userID, conversationID string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.UserID == userID && rec.ConversationID == conversationID {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (r *MemoryRepo) UpdateOutcome(ctx context.Context, id string, o Outcome, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = o.Status
	rec.Cost = o.Cost
	rec.DurationSecs = o.DurationSecs
	rec.UpdatedAt = at
	r.records[id] = rec
	return nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]Record, error) {
	out := make([]Record, 0)
	for _, rec := range r.All() {
		if rec.UserID != userID {
			continue
		}
		if rec.CallDate.Before(from) || !rec.CallDate.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// All returns every record, newest first.
func (r *MemoryRepo) All() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallDate.After(out[j].CallDate) })
	return out
}
