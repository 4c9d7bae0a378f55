// Package idempotency deduplicates side-effecting operations behind
// deterministic keys so a replayed request observes the first outcome instead
// of executing twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
)

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// DefaultTTL bounds how long a completed result is replayed.
const DefaultTTL = time.Hour

// keyLength is the hex length keys are truncated to.
const keyLength = 32

// GenerateKey derives a deterministic key from an operation name and its
// parameters. Equal inputs always produce the same key regardless of map
// ordering.
func GenerateKey(operation string, params map[string]any) (string, error) {
	operation = strings.TrimSpace(operation)
	if operation == "" {
		return "", fmt.Errorf("idempotency: operation is required")
	}
	// json.Marshal emits map keys sorted, which canonicalizes params
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("idempotency: encode params: %w", err)
	}
	sum := sha256.Sum256(append([]byte(operation+":"), encoded...))
	return hex.EncodeToString(sum[:])[:keyLength], nil
}

// RecordStore is the persistence boundary for reservations. Store is the
// in-memory implementation; store/sql provides a durable one.
type RecordStore interface {
	Reserve(ctx context.Context, key string, tenantID string, operation string, ttl time.Duration) (bool, Record, error)
	Check(ctx context.Context, key string) (Record, bool, error)
	Complete(ctx context.Context, key string, result any) error
	Fail(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context) (int, error)
}

// Record tracks one reserved operation and, once completed, its result.
type Record struct {
	Key         string
	TenantID    string
	Operation   string
	Status      string
	Result      any
	CreatedAt   time.Time
	CompletedAt time.Time
	ExpiresAt   time.Time
}

func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store coordinates reservations. Reserve is the only entry point for
// claiming a key; exactly one caller wins for a given live key.
type Store struct {
	Now        func() time.Time
	DefaultTTL time.Duration

	mu      sync.Mutex
	records map[string]Record
}

func NewStore() *Store {
	return &Store{
		Now:        func() time.Time { return time.Now().UTC() },
		DefaultTTL: DefaultTTL,
		records:    map[string]Record{},
	}
}

// Reserve atomically claims the key. The boolean reports whether this caller
// won the reservation; when false the existing record is returned so the
// caller can replay its result or back off while it is in progress.
func (s *Store) Reserve(_ context.Context, key string, tenantID string, operation string, ttl time.Duration) (bool, Record, error) {
	if s == nil {
		return false, Record{}, fmt.Errorf("idempotency: store is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, Record{}, fmt.Errorf("idempotency: key is required")
	}
	if ttl <= 0 {
		ttl = s.ttl()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.records[key]; ok && !existing.Expired(now) {
		return false, existing, nil
	}

	record := Record{
		Key:       key,
		TenantID:  strings.TrimSpace(tenantID),
		Operation: strings.TrimSpace(operation),
		Status:    StatusInProgress,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.records[key] = record
	return true, record, nil
}

// Check returns the live record for a key. Expired records are evicted
// lazily.
func (s *Store) Check(_ context.Context, key string) (Record, bool, error) {
	if s == nil {
		return Record{}, false, fmt.Errorf("idempotency: store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return Record{}, false, nil
	}
	if record.Expired(s.now()) {
		delete(s.records, key)
		return Record{}, false, nil
	}
	return record, true, nil
}

// Complete stores the result for a reserved key so replays observe it.
func (s *Store) Complete(_ context.Context, key string, result any) error {
	if s == nil {
		return fmt.Errorf("idempotency: store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return core.ErrNotFound
	}
	record.Status = StatusCompleted
	record.Result = result
	record.CompletedAt = s.now()
	s.records[key] = record
	return nil
}

// Fail releases a reservation after the operation failed, letting the next
// caller try again with the same key.
func (s *Store) Fail(_ context.Context, key string) error {
	if s == nil {
		return fmt.Errorf("idempotency: store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// Remove drops a record unconditionally.
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.Fail(ctx, key)
}

// CleanupExpired evicts every expired record and returns how many were
// dropped.
func (s *Store) CleanupExpired(_ context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("idempotency: store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, record := range s.records {
		if record.Expired(now) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Store) ttl() time.Duration {
	if s.DefaultTTL > 0 {
		return s.DefaultTTL
	}
	return DefaultTTL
}

var _ RecordStore = (*Store)(nil)
