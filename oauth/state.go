package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultStateTTL = 15 * time.Minute

// StateRecord binds a single-use CSRF state token to the tenant and provider
// that initiated the authorization flow.
type StateRecord struct {
	State        string
	TenantID     string
	ProviderName string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type StateStore interface {
	Save(ctx context.Context, record StateRecord) error
	Consume(ctx context.Context, state string) (StateRecord, error)
}

type MemoryStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]StateRecord
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &MemoryStateStore{
		ttl:     ttl,
		entries: map[string]StateRecord{},
	}
}

func (s *MemoryStateStore) Save(_ context.Context, record StateRecord) error {
	if s == nil {
		return fmt.Errorf("oauth: state store is not configured")
	}
	state := strings.TrimSpace(record.State)
	if state == "" {
		return fmt.Errorf("oauth: state is required")
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[state] = record
	s.mu.Unlock()

	return nil
}

// Consume removes and returns the record; a state token exchanges at most
// once.
func (s *MemoryStateStore) Consume(_ context.Context, state string) (StateRecord, error) {
	if s == nil {
		return StateRecord{}, fmt.Errorf("oauth: state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return StateRecord{}, fmt.Errorf("oauth: state is required")
	}

	s.mu.Lock()
	record, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok {
		return StateRecord{}, fmt.Errorf("oauth: state not found")
	}
	if !record.ExpiresAt.IsZero() && time.Now().UTC().After(record.ExpiresAt) {
		return StateRecord{}, fmt.Errorf("oauth: state expired")
	}

	return record, nil
}

func generateState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("oauth: generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

var _ StateStore = (*MemoryStateStore)(nil)
