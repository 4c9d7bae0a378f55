package breaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBreaker_OpensAtFailureThreshold(t *testing.T) {
	b := New("salesforce", 3, 30*time.Second)
	now := time.Unix(1_700_000_000, 0).UTC()
	b.Now = func() time.Time { return now }

	b.RecordFailure()
	b.RecordFailure()
	if state := b.State(); state != StateClosed {
		t.Fatalf("expected closed below threshold, got %s", state)
	}
	b.RecordFailure()
	if state := b.State(); state != StateOpen {
		t.Fatalf("expected open at threshold, got %s", state)
	}
	if b.Allow() {
		t.Fatalf("expected open circuit to reject calls")
	}
}

func TestBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	b := New("salesforce", 1, 30*time.Second)
	now := time.Unix(1_700_000_000, 0).UTC()
	b.Now = func() time.Time { return now }

	b.RecordFailure()
	if state := b.State(); state != StateOpen {
		t.Fatalf("expected open, got %s", state)
	}

	now = now.Add(31 * time.Second)
	if state := b.State(); state != StateHalfOpen {
		t.Fatalf("expected half_open after recovery timeout, got %s", state)
	}
	if !b.Allow() {
		t.Fatalf("expected half_open to admit one probe call")
	}

	b.RecordSuccess()
	if state := b.State(); state != StateClosed {
		t.Fatalf("expected closed after half_open success, got %s", state)
	}
	if count := b.FailureCount(); count != 0 {
		t.Fatalf("expected failure count reset, got %d", count)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("salesforce", 5, 30*time.Second)
	now := time.Unix(1_700_000_000, 0).UTC()
	b.Now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	now = now.Add(45 * time.Second)
	if state := b.State(); state != StateHalfOpen {
		t.Fatalf("expected half_open, got %s", state)
	}
	b.RecordFailure()
	if state := b.State(); state != StateOpen {
		t.Fatalf("expected failed probe to reopen circuit, got %s", state)
	}
}

func TestExecute_RetriesBeforeCountingFailure(t *testing.T) {
	b := New("salesforce", 5, 30*time.Second)
	calls := 0

	_, err := b.Execute(context.Background(), func(context.Context) (any, error) {
		calls++
		return nil, fmt.Errorf("boom %d", calls)
	}, ExecuteOptions{MaxRetries: 2, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond})
	if err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if count := b.FailureCount(); count != 1 {
		t.Fatalf("expected exactly one recorded failure for the sequence, got %d", count)
	}
}

func TestExecute_OpenCircuitConsultsCacheThenFallback(t *testing.T) {
	b := New("salesforce", 1, 30*time.Second)
	now := time.Unix(1_700_000_000, 0).UTC()
	b.Now = func() time.Time { return now }
	b.RecordFailure()

	cache := NewMemoryCache()
	cache.Set(context.Background(), "accounts", "cached-value")

	value, err := b.Execute(context.Background(), func(context.Context) (any, error) {
		t.Fatalf("operation must not run while circuit is open")
		return nil, nil
	}, ExecuteOptions{
		Cache:    cache,
		CacheKey: "accounts",
		Fallback: func(context.Context) (any, error) { return "fallback-value", nil },
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if value != "cached-value" {
		t.Fatalf("expected cache hit before fallback, got %v", value)
	}

	value, err = b.Execute(context.Background(), func(context.Context) (any, error) {
		return nil, nil
	}, ExecuteOptions{
		Fallback: func(context.Context) (any, error) { return "fallback-value", nil },
	})
	if err != nil {
		t.Fatalf("execute with fallback: %v", err)
	}
	if value != "fallback-value" {
		t.Fatalf("expected fallback value, got %v", value)
	}
}

func TestExecute_OpenCircuitWithoutDegradationReturnsOpenError(t *testing.T) {
	b := New("salesforce", 1, 30*time.Second)
	now := time.Unix(1_700_000_000, 0).UTC()
	b.Now = func() time.Time { return now }
	b.RecordFailure()

	_, err := b.Execute(context.Background(), func(context.Context) (any, error) {
		return nil, nil
	}, ExecuteOptions{})
	var openErr OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected OpenError, got %v", err)
	}
	if openErr.RecoveryAfter <= 0 {
		t.Fatalf("expected positive recovery hint, got %s", openErr.RecoveryAfter)
	}
}

func TestExecute_SuccessStoresCacheEntry(t *testing.T) {
	b := New("salesforce", 5, 30*time.Second)
	cache := NewMemoryCache()

	value, err := b.Execute(context.Background(), func(context.Context) (any, error) {
		return "fresh", nil
	}, ExecuteOptions{Cache: cache, CacheKey: "accounts"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if value != "fresh" {
		t.Fatalf("expected operation result, got %v", value)
	}
	if cached, ok := cache.Get(context.Background(), "accounts"); !ok || cached != "fresh" {
		t.Fatalf("expected result cached, got %v ok=%v", cached, ok)
	}
}

func TestExecute_CancelledAttemptIsNotCounted(t *testing.T) {
	b := New("salesforce", 1, 30*time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := b.Execute(ctx, func(context.Context) (any, error) {
		cancel()
		return nil, fmt.Errorf("transport interrupted")
	}, ExecuteOptions{MaxRetries: 3, BackoffBase: time.Millisecond})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if count := b.FailureCount(); count != 0 {
		t.Fatalf("cancelled attempt must not count as failure, got %d", count)
	}
	if state := b.State(); state != StateClosed {
		t.Fatalf("expected closed state, got %s", state)
	}
}
