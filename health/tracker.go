// Package health keeps rolling latency and error accounting per adapter.
package health

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	latencyBufferCap  = 1000
	latencyBufferKeep = 500
)

// Snapshot is an immutable view of one adapter's health.
type Snapshot struct {
	AdapterName        string
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	AuthFailures       int64
	ErrorRate          float64
	AvgLatency         time.Duration
	P95Latency         time.Duration
	CircuitState       string
	LastSuccess        *time.Time
	LastFailure        *time.Time
	LastError          string
}

// Tracker accumulates request outcomes for one adapter. The append, trim, and
// recompute sequence runs under one lock so concurrent updates never observe
// a partially updated buffer.
type Tracker struct {
	Now func() time.Time

	mu           sync.Mutex
	adapterName  string
	total        int64
	successful   int64
	failed       int64
	authFailures int64
	latencies    []time.Duration
	avgLatency   time.Duration
	p95Latency   time.Duration
	circuitState string
	lastSuccess  *time.Time
	lastFailure  *time.Time
	lastError    string
}

func NewTracker(adapterName string) *Tracker {
	return &Tracker{
		Now:          func() time.Time { return time.Now().UTC() },
		adapterName:  strings.TrimSpace(strings.ToLower(adapterName)),
		circuitState: "closed",
	}
}

// Record accounts for one completed attempt sequence.
func (t *Tracker) Record(latency time.Duration, success bool, errText string) {
	if t == nil {
		return
	}
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	t.latencies = append(t.latencies, latency)
	if len(t.latencies) > latencyBufferCap {
		t.latencies = append(t.latencies[:0], t.latencies[len(t.latencies)-latencyBufferKeep:]...)
	}

	if success {
		t.successful++
		t.lastSuccess = &now
	} else {
		t.failed++
		t.lastFailure = &now
		t.lastError = errText
	}

	t.recomputeLocked()
}

// RecordAuthFailure counts a credential or refresh failure.
func (t *Tracker) RecordAuthFailure() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.authFailures++
	t.mu.Unlock()
}

// SetCircuitState mirrors the adapter's breaker state into the snapshot.
func (t *Tracker) SetCircuitState(state string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.circuitState = state
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := Snapshot{
		AdapterName:        t.adapterName,
		TotalRequests:      t.total,
		SuccessfulRequests: t.successful,
		FailedRequests:     t.failed,
		AuthFailures:       t.authFailures,
		AvgLatency:         t.avgLatency,
		P95Latency:         t.p95Latency,
		CircuitState:       t.circuitState,
		LastError:          t.lastError,
	}
	if t.total > 0 {
		snapshot.ErrorRate = float64(t.failed) / float64(t.total)
	}
	if t.lastSuccess != nil {
		lastSuccess := *t.lastSuccess
		snapshot.LastSuccess = &lastSuccess
	}
	if t.lastFailure != nil {
		lastFailure := *t.lastFailure
		snapshot.LastFailure = &lastFailure
	}
	return snapshot
}

func (t *Tracker) recomputeLocked() {
	if len(t.latencies) == 0 {
		t.avgLatency = 0
		t.p95Latency = 0
		return
	}
	var sum time.Duration
	sorted := make([]time.Duration, len(t.latencies))
	copy(sorted, t.latencies)
	for _, latency := range sorted {
		sum += latency
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	t.avgLatency = sum / time.Duration(len(sorted))
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	t.p95Latency = sorted[idx]
}

func (t *Tracker) now() time.Time {
	if t != nil && t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}
