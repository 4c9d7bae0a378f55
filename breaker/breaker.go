// Package breaker implements a per-adapter circuit breaker. Recovery is
// evaluated lazily on each check; there is no background timer.
package breaker

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-integrations/core"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

type OpenError struct {
	Name          string
	RecoveryAfter time.Duration
}

func (e OpenError) Error() string {
	return fmt.Sprintf("breaker: circuit open for %q, recovery in %s", strings.TrimSpace(e.Name), e.RecoveryAfter)
}

func (e OpenError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"name": strings.TrimSpace(e.Name)}
	if e.RecoveryAfter > 0 {
		metadata["recovery_after_ms"] = e.RecoveryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryExternal).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(core.ErrorCircuitOpen).
		WithMetadata(metadata)
}

// Breaker is one failure-rate state machine, scoped per adapter rather than
// per tenant: a vendor outage affects every tenant of that adapter.
type Breaker struct {
	Name             string
	FailureThreshold int
	RecoveryTimeout  time.Duration
	Now              func() time.Time

	mu            sync.Mutex
	state         State
	failureCount  int
	lastFailureAt time.Time
}

func New(name string, failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = core.DefaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = core.DefaultRecoveryTimeout
	}
	return &Breaker{
		Name:             strings.TrimSpace(strings.ToLower(name)),
		FailureThreshold: failureThreshold,
		RecoveryTimeout:  recoveryTimeout,
		Now:              func() time.Time { return time.Now().UTC() },
		state:            StateClosed,
	}
}

// Allow reports whether a call may proceed. Crossing the recovery boundary
// flips open to half_open here, deterministically.
func (b *Breaker) Allow() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evaluateLocked()
	return b.state != StateOpen
}

// State reports the current state after lazy recovery evaluation.
func (b *Breaker) State() State {
	if b == nil {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evaluateLocked()
	return b.state
}

func (b *Breaker) FailureCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// RecordSuccess closes the circuit and resets the failure counter. The first
// success after half_open returns to closed.
func (b *Breaker) RecordSuccess() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.failureCount = 0
	b.state = StateClosed
	b.mu.Unlock()
}

// RecordFailure counts one failed attempt sequence; reaching the threshold,
// or failing while half_open, opens the circuit.
func (b *Breaker) RecordFailure() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailureAt = b.now()
	if b.state == StateHalfOpen || b.failureCount >= b.threshold() {
		b.state = StateOpen
	}
}

// RecoveryAfter reports time until the open circuit becomes probeable. Zero
// unless open.
func (b *Breaker) RecoveryAfter() time.Duration {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evaluateLocked()
	if b.state != StateOpen {
		return 0
	}
	return b.lastFailureAt.Add(b.recoveryTimeout()).Sub(b.now())
}

func (b *Breaker) evaluateLocked() {
	if b.state != StateOpen {
		return
	}
	if b.now().Sub(b.lastFailureAt) > b.recoveryTimeout() {
		b.state = StateHalfOpen
	}
}

func (b *Breaker) now() time.Time {
	if b != nil && b.Now != nil {
		return b.Now().UTC()
	}
	return time.Now().UTC()
}

func (b *Breaker) threshold() int {
	if b != nil && b.FailureThreshold > 0 {
		return b.FailureThreshold
	}
	return core.DefaultFailureThreshold
}

func (b *Breaker) recoveryTimeout() time.Duration {
	if b != nil && b.RecoveryTimeout > 0 {
		return b.RecoveryTimeout
	}
	return core.DefaultRecoveryTimeout
}
