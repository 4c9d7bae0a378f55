package webhooks

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	DeliveryStatusSuccess = "success"
	DeliveryStatusFailed  = "failed"
)

// Delivery records one fan-out attempt sequence against one registration.
type Delivery struct {
	ID             string
	RegistrationID string
	TenantID       string
	Event          string
	URL            string
	Status         string
	StatusCode     int
	Attempts       int
	Error          string
	CreatedAt      time.Time
	CompletedAt    time.Time
}

// DeliveryStore keeps delivery history per tenant, newest first.
type DeliveryStore interface {
	Save(ctx context.Context, delivery Delivery) error
	ListByTenant(ctx context.Context, tenantID string, event string, limit int) ([]Delivery, error)
}

const defaultHistoryCap = 1000

// MemoryDeliveryStore retains up to historyCap deliveries per tenant,
// evicting the oldest.
type MemoryDeliveryStore struct {
	mu         sync.RWMutex
	historyCap int
	records    map[string][]Delivery
}

func NewMemoryDeliveryStore() *MemoryDeliveryStore {
	return &MemoryDeliveryStore{
		historyCap: defaultHistoryCap,
		records:    map[string][]Delivery{},
	}
}

func (s *MemoryDeliveryStore) Save(_ context.Context, delivery Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.records[delivery.TenantID], delivery)
	if s.historyCap > 0 && len(history) > s.historyCap {
		history = append([]Delivery(nil), history[len(history)-s.historyCap:]...)
	}
	s.records[delivery.TenantID] = history
	return nil
}

func (s *MemoryDeliveryStore) ListByTenant(_ context.Context, tenantID string, event string, limit int) ([]Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Delivery, 0, len(s.records[tenantID]))
	for _, delivery := range s.records[tenantID] {
		if event != "" && delivery.Event != event {
			continue
		}
		out = append(out, delivery)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ DeliveryStore = (*MemoryDeliveryStore)(nil)
