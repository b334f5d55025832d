package profiles

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-process profile store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[string]Profile)}
}

func (s *InMemoryStore) Save(_ context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID string, limit int) ([]Profile, error) {
	s.mu.RLock()
	out := make([]Profile, 0)
	for _, p := range s.profiles {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	return newestFirst(out, limit), nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, id)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func newestFirst(in []Profile, limit int) []Profile {
	sort.Slice(in, func(i, j int) bool {
		return in[i].CreatedAt.After(in[j].CreatedAt)
	})
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
