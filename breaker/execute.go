package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Cache is the optional read-through cache the breaker consults when the
// circuit is open or the retry budget is exhausted.
type Cache interface {
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any)
}

type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]any
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: map[string]any{}}
}

func (c *MemoryCache) Get(_ context.Context, key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	value, ok := c.items[key]
	c.mu.RUnlock()
	return value, ok
}

func (c *MemoryCache) Set(_ context.Context, key string, value any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.items[key] = value
	c.mu.Unlock()
}

type Operation func(ctx context.Context) (any, error)

type Fallback func(ctx context.Context) (any, error)

type ExecuteOptions struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Cache       Cache
	CacheKey    string
	Fallback    Fallback
}

// Execute wraps an operation with the breaker's own bounded retry loop. The
// failure counter increments once per exhausted attempt sequence, not per
// attempt. Degradation order when no result is available: cache, fallback,
// error. A cancelled attempt counts as neither success nor failure.
func (b *Breaker) Execute(ctx context.Context, op Operation, opts ExecuteOptions) (any, error) {
	if op == nil {
		return nil, fmt.Errorf("breaker: operation is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !b.Allow() {
		if value, ok := degraded(ctx, opts); ok {
			return value, nil
		}
		if opts.Fallback != nil {
			return opts.Fallback(ctx)
		}
		return nil, OpenError{Name: b.breakerName(), RecoveryAfter: b.RecoveryAfter()}
	}

	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	base := opts.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	maximum := opts.BackoffMax
	if maximum <= 0 {
		maximum = 15 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		value, err := op(ctx)
		if err == nil {
			b.RecordSuccess()
			if opts.Cache != nil && opts.CacheKey != "" {
				opts.Cache.Set(ctx, opts.CacheKey, value)
			}
			return value, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		if attempt < maxRetries {
			if sleepErr := sleepBackoff(ctx, backoffDelay(base, maximum, attempt)); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}

	b.RecordFailure()
	if value, ok := degraded(ctx, opts); ok {
		return value, nil
	}
	if opts.Fallback != nil {
		return opts.Fallback(ctx)
	}
	return nil, lastErr
}

func (b *Breaker) breakerName() string {
	if b == nil {
		return ""
	}
	return b.Name
}

func degraded(ctx context.Context, opts ExecuteOptions) (any, bool) {
	if opts.Cache == nil || opts.CacheKey == "" {
		return nil, false
	}
	return opts.Cache.Get(ctx, opts.CacheKey)
}

func backoffDelay(base time.Duration, maximum time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

func sleepBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
