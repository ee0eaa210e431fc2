package contacts

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests. InTx restores the previous
// state when fn fails, matching a rolled-back transaction.
type MemoryStore struct {
	mu           sync.Mutex
	contacts     map[string]Contact // by id
	interactions []Interaction

	// FailInsertInteraction makes InsertInteraction fail, to exercise rollback.
	FailInsertInteraction error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contacts: map[string]Contact{}}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	s.mu.Lock()
	snapContacts := make(map[string]Contact, len(s.contacts))
	for k, v := range s.contacts {
		snapContacts[k] = v
	}
	snapInteractions := append([]Interaction(nil), s.interactions...)
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.contacts = snapContacts
		s.interactions = snapInteractions
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) FindByPhone(ctx context.Context, userID, phone string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.UserID == userID && c.Phone == phone {
			return c, nil
		}
	}
	return Contact{}, ErrNotFound
}

func (s *MemoryStore) FindLatestByPhone(ctx context.Context, phone string) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best Contact
	found := false
	for _, c := range s.contacts {
		if c.Phone != phone {
			continue
		}
		if !found || lastContact(c).After(lastContact(best)) {
			best, found = c, true
		}
	}
	if !found {
		return Contact{}, ErrNotFound
	}
	return best, nil
}

func (s *MemoryStore) ListContacts(ctx context.Context, userID string, limit int) ([]Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Contact
	for _, c := range s.contacts {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lastContact(out[i]).After(lastContact(out[j])) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpsertContact(ctx context.Context, c Contact) (Contact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.contacts {
		if existing.UserID != c.UserID || existing.Phone != c.Phone {
			continue
		}
		if c.Name != "" {
			existing.Name = c.Name
		}
		mergeString(&existing.Email, c.Email)
		mergeString(&existing.Company, c.Company)
		mergeString(&existing.Location, c.Location)
		mergeString(&existing.Country, c.Country)
		mergeString(&existing.Info, c.Info)
		if c.Status != "" {
			existing.Status = c.Status
		}
		if c.Tags != nil {
			existing.Tags = append([]string(nil), c.Tags...)
		}
		if c.LastContactAt != nil && (existing.LastContactAt == nil || c.LastContactAt.After(*existing.LastContactAt)) {
			t := *c.LastContactAt
			existing.LastContactAt = &t
		}
		existing.UpdatedAt = c.CreatedAt
		s.contacts[id] = existing
		return existing, false, nil
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	c.UpdatedAt = c.CreatedAt
	s.contacts[c.ID] = c
	return c, true, nil
}

func (s *MemoryStore) InsertInteraction(ctx context.Context, i Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsertInteraction != nil {
		return s.FailInsertInteraction
	}
	s.interactions = append(s.interactions, i)
	return nil
}

func (s *MemoryStore) ListInteractions(ctx context.Context, contactID string, limit int) ([]Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Interaction
	for _, i := range s.interactions {
		if i.ContactID == contactID {
			out = append(out, i)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].OccurredAt.After(out[b].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Counts returns the number of stored contacts and interactions.
func (s *MemoryStore) Counts() (contacts, interactions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contacts), len(s.interactions)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
