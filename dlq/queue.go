// Package dlq captures operations that exhausted their retries so they can be
// inspected, replayed, or discarded later.
package dlq

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-integrations/core"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRetrying  Status = "retrying"
	StatusResolved  Status = "resolved"
	StatusDiscarded Status = "discarded"
)

const DefaultMaxRetries = 3

// DeadLetter is one failed operation awaiting replay or disposal.
type DeadLetter struct {
	ID          string
	TenantID    string
	AdapterName string
	Operation   string
	Payload     map[string]any
	Error       string
	Status      Status
	RetryCount  int
	MaxRetries  int
	ResolvedBy  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
}

// CanRetry reports whether the letter is still eligible for another replay.
// Only pending letters qualify; a letter claimed for replay goes back to
// pending through MarkFailed before it can be claimed again.
func (l DeadLetter) CanRetry() bool {
	return l.Status == StatusPending && l.RetryCount < l.MaxRetries
}

// Stats summarizes queue composition per status. Oldest and Newest are zero
// when the queue is empty.
type Stats struct {
	Total     int
	Pending   int
	Retrying  int
	Resolved  int
	Discarded int
	Oldest    time.Time
	Newest    time.Time
}

// Queue owns the dead letter lifecycle. Status transitions run atomically per
// letter through the store.
type Queue struct {
	Now func() time.Time

	store  Store
	logger core.Logger
}

type Option func(*Queue)

func WithStore(store Store) Option {
	return func(q *Queue) {
		if store != nil {
			q.store = store
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

func NewQueue(opts ...Option) *Queue {
	_, logger := glog.Resolve("integrations", nil, nil)
	queue := &Queue{
		Now:    func() time.Time { return time.Now().UTC() },
		store:  NewMemoryStore(),
		logger: glog.Ensure(logger),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(queue)
	}
	return queue
}

// Enqueue captures a failed operation. maxRetries <= 0 falls back to the
// default.
func (q *Queue) Enqueue(ctx context.Context, letter DeadLetter) (DeadLetter, error) {
	if q == nil {
		return DeadLetter{}, fmt.Errorf("dlq: queue is nil")
	}
	letter.TenantID = strings.TrimSpace(letter.TenantID)
	letter.AdapterName = normalizeAdapter(letter.AdapterName)
	letter.Operation = strings.TrimSpace(letter.Operation)
	if letter.TenantID == "" {
		return DeadLetter{}, fmt.Errorf("dlq: tenant id is required")
	}
	if letter.Operation == "" {
		return DeadLetter{}, fmt.Errorf("dlq: operation is required")
	}

	now := q.Now()
	letter.ID = uuid.NewString()
	letter.Status = StatusPending
	letter.RetryCount = 0
	if letter.MaxRetries <= 0 {
		letter.MaxRetries = DefaultMaxRetries
	}
	letter.CreatedAt = now
	letter.UpdatedAt = now
	letter.ResolvedAt = nil

	if err := q.store.Save(ctx, letter); err != nil {
		return DeadLetter{}, err
	}
	core.LogError(ctx, q.logger, "operation dead-lettered", map[string]any{
		"letter_id": letter.ID,
		"tenant_id": letter.TenantID,
		"adapter":   letter.AdapterName,
		"operation": letter.Operation,
		"error":     letter.Error,
	})
	return letter, nil
}

func (q *Queue) Get(ctx context.Context, id string) (DeadLetter, error) {
	if q == nil {
		return DeadLetter{}, fmt.Errorf("dlq: queue is nil")
	}
	return q.store.Get(ctx, id)
}

// ListPending returns pending and retrying letters, oldest first, optionally
// filtered by tenant and adapter and capped by limit.
func (q *Queue) ListPending(ctx context.Context, tenantID, adapterName string, limit int) ([]DeadLetter, error) {
	if q == nil {
		return nil, fmt.Errorf("dlq: queue is nil")
	}
	return q.store.ListByStatus(ctx, tenantID, normalizeAdapter(adapterName), []Status{StatusPending, StatusRetrying}, limit)
}

// MarkRetrying claims a letter for replay. Returns the updated letter, or an
// error when the letter is no longer eligible.
func (q *Queue) MarkRetrying(ctx context.Context, id string) (DeadLetter, error) {
	if q == nil {
		return DeadLetter{}, fmt.Errorf("dlq: queue is nil")
	}
	return q.store.Update(ctx, id, func(letter DeadLetter) (DeadLetter, error) {
		if !letter.CanRetry() {
			return DeadLetter{}, fmt.Errorf("dlq: letter %s is not retryable (status %s, retries %d/%d)",
				id, letter.Status, letter.RetryCount, letter.MaxRetries)
		}
		letter.Status = StatusRetrying
		letter.RetryCount++
		letter.UpdatedAt = q.Now()
		return letter, nil
	})
}

// MarkResolved records a successful replay. resolvedBy identifies who or what
// resolved the letter, typically an operator name or the replay worker.
func (q *Queue) MarkResolved(ctx context.Context, id, resolvedBy string) (DeadLetter, error) {
	if q == nil {
		return DeadLetter{}, fmt.Errorf("dlq: queue is nil")
	}
	return q.store.Update(ctx, id, func(letter DeadLetter) (DeadLetter, error) {
		now := q.Now()
		letter.Status = StatusResolved
		letter.ResolvedBy = strings.TrimSpace(resolvedBy)
		letter.UpdatedAt = now
		letter.ResolvedAt = &now
		return letter, nil
	})
}

// MarkFailed releases a claimed letter back to pending after a failed replay
// so a later attempt can claim it again, until the retry budget runs out. The
// failure is appended to the letter's error trail.
func (q *Queue) MarkFailed(ctx context.Context, id string, failure string) (DeadLetter, error) {
	if q == nil {
		return DeadLetter{}, fmt.Errorf("dlq: queue is nil")
	}
	return q.store.Update(ctx, id, func(letter DeadLetter) (DeadLetter, error) {
		if letter.Status != StatusRetrying {
			return DeadLetter{}, fmt.Errorf("dlq: letter %s is not claimed (status %s)", id, letter.Status)
		}
		letter.Status = StatusPending
		if failure = strings.TrimSpace(failure); failure != "" {
			if letter.Error != "" {
				letter.Error += "; "
			}
			letter.Error += failure
		}
		letter.UpdatedAt = q.Now()
		return letter, nil
	})
}

// MarkDiscarded retires a letter without replay; the reason is appended to
// the letter's error trail.
func (q *Queue) MarkDiscarded(ctx context.Context, id string, reason string) (DeadLetter, error) {
	if q == nil {
		return DeadLetter{}, fmt.Errorf("dlq: queue is nil")
	}
	return q.store.Update(ctx, id, func(letter DeadLetter) (DeadLetter, error) {
		now := q.Now()
		letter.Status = StatusDiscarded
		if reason = strings.TrimSpace(reason); reason != "" {
			if letter.Error != "" {
				letter.Error += "; "
			}
			letter.Error += "discarded: " + reason
		}
		letter.UpdatedAt = now
		letter.ResolvedAt = &now
		return letter, nil
	})
}

func (q *Queue) GetStats(ctx context.Context, tenantID, adapterName string) (Stats, error) {
	if q == nil {
		return Stats{}, fmt.Errorf("dlq: queue is nil")
	}
	letters, err := q.store.ListByStatus(ctx, tenantID, normalizeAdapter(adapterName), nil, 0)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Total: len(letters)}
	for _, letter := range letters {
		switch letter.Status {
		case StatusPending:
			stats.Pending++
		case StatusRetrying:
			stats.Retrying++
		case StatusResolved:
			stats.Resolved++
		case StatusDiscarded:
			stats.Discarded++
		}
		if stats.Oldest.IsZero() || letter.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = letter.CreatedAt
		}
		if letter.CreatedAt.After(stats.Newest) {
			stats.Newest = letter.CreatedAt
		}
	}
	return stats, nil
}

// PurgeResolved removes resolved letters older than the cutoff, optionally
// scoped to one adapter, and returns how many were dropped. Discarded letters
// are kept for audit and are not purged here.
func (q *Queue) PurgeResolved(ctx context.Context, adapterName string, olderThan time.Duration) (int, error) {
	if q == nil {
		return 0, fmt.Errorf("dlq: queue is nil")
	}
	cutoff := q.Now().Add(-olderThan)
	return q.store.Purge(ctx, normalizeAdapter(adapterName), []Status{StatusResolved}, cutoff)
}

func normalizeAdapter(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}
