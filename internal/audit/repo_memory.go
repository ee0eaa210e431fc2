package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo keeps audit events in insertion order. Like the table, it only
// grows.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event

	// FailAppend makes Append fail, to exercise best-effort callers.
	FailAppend error
}

func NewMemoryRepo(seed ...Event) *MemoryRepo {
	return &MemoryRepo{events: append([]Event(nil), seed...)}
}

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAppend != nil {
		return r.FailAppend
	}
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, q Query) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0)
	for _, e := range r.events {
		if e.UserID != q.UserID || (q.Type != "" && e.Type != q.Type) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Events returns a copy of everything appended, oldest first.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
