// Package ratelimit provides per-(tenant, adapter) sliding-window admission
// control for the outbound pipeline.
package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

type LimitedError struct {
	TenantID    string
	AdapterName string
	RetryAfter  time.Duration
}

func (e LimitedError) Error() string {
	return fmt.Sprintf(
		"ratelimit: tenant %q adapter %q rate limit exceeded, retry in %s",
		strings.TrimSpace(e.TenantID),
		strings.TrimSpace(e.AdapterName),
		e.RetryAfter,
	)
}

func (e LimitedError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"tenant_id":    strings.TrimSpace(e.TenantID),
		"adapter_name": strings.TrimSpace(e.AdapterName),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ErrorRateLimited).
		WithMetadata(metadata)
}

// SlidingWindow admits at most MaxRequests per key within the trailing
// Window. Entries older than the window are pruned lazily on each check.
// Locking is per key; unrelated tenants and adapters never serialize.
type SlidingWindow struct {
	MaxRequests int
	Window      time.Duration
	Now         func() time.Time

	mu      sync.Mutex
	buckets map[core.TenantKey]*windowBucket
}

type windowBucket struct {
	mu     sync.Mutex
	stamps []time.Time
}

func NewSlidingWindow(maxRequests int, window time.Duration) *SlidingWindow {
	if maxRequests <= 0 {
		maxRequests = core.DefaultMaxRequests
	}
	if window <= 0 {
		window = core.DefaultWindow
	}
	return &SlidingWindow{
		MaxRequests: maxRequests,
		Window:      window,
		Now:         func() time.Time { return time.Now().UTC() },
		buckets:     map[core.TenantKey]*windowBucket{},
	}
}

// Check reports whether a request for the key is admitted; an admission
// consumes one slot. The prune-count-append sequence is atomic per key.
func (l *SlidingWindow) Check(tenantID string, adapterName string) bool {
	if l == nil {
		return true
	}
	bucket := l.bucket(tenantID, adapterName)
	now := l.now()
	cutoff := now.Add(-l.window())

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	bucket.stamps = pruneStamps(bucket.stamps, cutoff)
	if len(bucket.stamps) >= l.maxRequests() {
		return false
	}
	bucket.stamps = append(bucket.stamps, now)
	return true
}

// Remaining reports headroom for the key without consuming a slot.
func (l *SlidingWindow) Remaining(tenantID string, adapterName string) int {
	if l == nil {
		return 0
	}
	bucket := l.bucket(tenantID, adapterName)
	cutoff := l.now().Add(-l.window())

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	bucket.stamps = pruneStamps(bucket.stamps, cutoff)
	remaining := l.maxRequests() - len(bucket.stamps)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RetryAfter reports how long until the oldest in-window entry expires. Zero
// when the key has headroom.
func (l *SlidingWindow) RetryAfter(tenantID string, adapterName string) time.Duration {
	if l == nil {
		return 0
	}
	bucket := l.bucket(tenantID, adapterName)
	now := l.now()
	cutoff := now.Add(-l.window())

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	bucket.stamps = pruneStamps(bucket.stamps, cutoff)
	if len(bucket.stamps) < l.maxRequests() {
		return 0
	}
	return bucket.stamps[0].Add(l.window()).Sub(now)
}

func (l *SlidingWindow) bucket(tenantID string, adapterName string) *windowBucket {
	key := core.NormalizeTenantKey(core.TenantKey{TenantID: tenantID, AdapterName: adapterName})
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = &windowBucket{}
		l.buckets[key] = bucket
	}
	return bucket
}

func (l *SlidingWindow) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *SlidingWindow) window() time.Duration {
	if l != nil && l.Window > 0 {
		return l.Window
	}
	return core.DefaultWindow
}

func (l *SlidingWindow) maxRequests() int {
	if l != nil && l.MaxRequests > 0 {
		return l.MaxRequests
	}
	return core.DefaultMaxRequests
}

func pruneStamps(stamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(stamps) && !stamps[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[idx:]...)
}
