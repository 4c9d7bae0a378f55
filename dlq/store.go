package dlq

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
)

// Store persists dead letters. Update must apply the mutation atomically per
// letter so two replay workers never both claim the same retry.
type Store interface {
	Save(ctx context.Context, letter DeadLetter) error
	Get(ctx context.Context, id string) (DeadLetter, error)
	Update(ctx context.Context, id string, mutate func(DeadLetter) (DeadLetter, error)) (DeadLetter, error)
	ListByStatus(ctx context.Context, tenantID, adapterName string, statuses []Status, limit int) ([]DeadLetter, error)
	Purge(ctx context.Context, adapterName string, statuses []Status, cutoff time.Time) (int, error)
}

type MemoryStore struct {
	mu      sync.RWMutex
	letters map[string]DeadLetter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{letters: map[string]DeadLetter{}}
}

func (s *MemoryStore) Save(_ context.Context, letter DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters[letter.ID] = cloneLetter(letter)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	letter, ok := s.letters[id]
	if !ok {
		return DeadLetter{}, core.ErrNotFound
	}
	return cloneLetter(letter), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate func(DeadLetter) (DeadLetter, error)) (DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	letter, ok := s.letters[id]
	if !ok {
		return DeadLetter{}, core.ErrNotFound
	}
	updated, err := mutate(cloneLetter(letter))
	if err != nil {
		return DeadLetter{}, err
	}
	updated.ID = letter.ID
	s.letters[id] = cloneLetter(updated)
	return updated, nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, tenantID, adapterName string, statuses []Status, limit int) ([]DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := map[Status]bool{}
	for _, status := range statuses {
		wanted[status] = true
	}
	out := []DeadLetter{}
	for _, letter := range s.letters {
		if tenantID != "" && letter.TenantID != tenantID {
			continue
		}
		if adapterName != "" && letter.AdapterName != adapterName {
			continue
		}
		if len(wanted) > 0 && !wanted[letter.Status] {
			continue
		}
		out = append(out, cloneLetter(letter))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Purge(_ context.Context, adapterName string, statuses []Status, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[Status]bool{}
	for _, status := range statuses {
		wanted[status] = true
	}
	purged := 0
	for id, letter := range s.letters {
		if adapterName != "" && letter.AdapterName != adapterName {
			continue
		}
		if !wanted[letter.Status] {
			continue
		}
		if letter.UpdatedAt.After(cutoff) {
			continue
		}
		delete(s.letters, id)
		purged++
	}
	return purged, nil
}

func cloneLetter(letter DeadLetter) DeadLetter {
	out := letter
	if letter.Payload != nil {
		out.Payload = make(map[string]any, len(letter.Payload))
		for key, value := range letter.Payload {
			out.Payload[key] = value
		}
	}
	if letter.ResolvedAt != nil {
		resolvedAt := *letter.ResolvedAt
		out.ResolvedAt = &resolvedAt
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
