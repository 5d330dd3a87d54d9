package appointments

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps appointments in process memory. Transact holds the write
// lock for the whole callback, which gives the same at-most-once behavior as
// a database transaction.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Appointment
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]Appointment),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(ctx context.Context, a *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[a.ID]; ok {
		return ErrExists
	}
	a.Version = 1
	a.UpdatedAt = s.now()
	s.items[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) MergeMany(ctx context.Context, patches []Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, patch := range patches {
		existing, ok := s.items[patch.ID]
		if !ok {
			rec := patch.Clone()
			if rec.Status == "" {
				rec.Status = StatusPending
			}
			rec.Version = 1
			rec.UpdatedAt = now
			s.items[rec.ID] = rec
			continue
		}
		merged := Merge(existing, patch)
		merged.Version = existing.Version + 1
		merged.UpdatedAt = now
		s.items[merged.ID] = merged
	}
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, a *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[a.ID]
	if !ok {
		return ErrNotFound
	}
	a.Version = existing.Version + 1
	a.UpdatedAt = s.now()
	s.items[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) Transact(ctx context.Context, id string, fn MutateFunc) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	working := existing.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}
	working.ID = id
	working.Version = existing.Version + 1
	working.UpdatedAt = s.now()
	s.items[id] = working.Clone()
	return &working, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := a.Clone()
	return &out, nil
}

func (s *MemoryStore) List(ctx context.Context, q Query) ([]Appointment, error) {
	s.mu.RLock()
	out := make([]Appointment, 0, len(s.items))
	for _, a := range s.items {
		if q.Matches(a) {
			out = append(out, a.Clone())
		}
	}
	s.mu.RUnlock()

	SortQueue(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) DeleteMany(ctx context.Context, ids []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.items[id]; ok {
			delete(s.items, id)
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}
