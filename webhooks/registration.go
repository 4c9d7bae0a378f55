// Package webhooks emits tenant events to registered endpoints with signed
// payloads, concurrent fan-out, and per-delivery retry.
package webhooks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-integrations/core"
)

// Registration is one tenant endpoint subscription. An empty Events list
// subscribes to every event; an empty Secret leaves deliveries unsigned.
type Registration struct {
	ID          string
	TenantID    string
	URL         string
	Secret      string
	Description string
	Events      []string
	Active      bool
	CreatedAt   time.Time
}

// WantsEvent reports whether the registration subscribes to the event.
func (r Registration) WantsEvent(event string) bool {
	if !r.Active {
		return false
	}
	if len(r.Events) == 0 {
		return true
	}
	for _, candidate := range r.Events {
		if candidate == event {
			return true
		}
	}
	return false
}

type RegistrationStore interface {
	Save(ctx context.Context, registration Registration) error
	Get(ctx context.Context, tenantID string, id string) (Registration, error)
	Delete(ctx context.Context, tenantID string, id string) error
	ListByTenant(ctx context.Context, tenantID string) ([]Registration, error)
}

type MemoryRegistrationStore struct {
	mu      sync.RWMutex
	records map[string]map[string]Registration
}

func NewMemoryRegistrationStore() *MemoryRegistrationStore {
	return &MemoryRegistrationStore{records: map[string]map[string]Registration{}}
}

func (s *MemoryRegistrationStore) Save(_ context.Context, registration Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant := s.records[registration.TenantID]
	if tenant == nil {
		tenant = map[string]Registration{}
		s.records[registration.TenantID] = tenant
	}
	tenant[registration.ID] = cloneRegistration(registration)
	return nil
}

func (s *MemoryRegistrationStore) Get(_ context.Context, tenantID string, id string) (Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	registration, ok := s.records[tenantID][id]
	if !ok {
		return Registration{}, core.ErrNotFound
	}
	return cloneRegistration(registration), nil
}

func (s *MemoryRegistrationStore) Delete(_ context.Context, tenantID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[tenantID][id]; !ok {
		return core.ErrNotFound
	}
	delete(s.records[tenantID], id)
	return nil
}

func (s *MemoryRegistrationStore) ListByTenant(_ context.Context, tenantID string) ([]Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Registration, 0, len(s.records[tenantID]))
	for _, registration := range s.records[tenantID] {
		out = append(out, cloneRegistration(registration))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneRegistration(registration Registration) Registration {
	out := registration
	if registration.Events != nil {
		out.Events = append([]string(nil), registration.Events...)
	}
	return out
}

func newRegistrationID() string {
	return uuid.NewString()
}

func normalizeEvents(events []string) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		event = strings.TrimSpace(event)
		if event == "" {
			continue
		}
		out = append(out, event)
	}
	return out
}

var _ RegistrationStore = (*MemoryRegistrationStore)(nil)
