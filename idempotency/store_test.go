package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	now := time.Unix(1_700_000_000, 0).UTC()
	store := NewStore()
	store.Now = func() time.Time { return now }
	return store, &now
}

func TestGenerateKey_Deterministic(t *testing.T) {
	first, err := GenerateKey("charge.create", map[string]any{"amount": 100, "currency": "usd"})
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	second, err := GenerateKey("charge.create", map[string]any{"currency": "usd", "amount": 100})
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if first != second {
		t.Fatalf("map ordering must not change the key: %s vs %s", first, second)
	}
	if len(first) != keyLength {
		t.Fatalf("expected %d hex chars got %d", keyLength, len(first))
	}
}

func TestGenerateKey_DistinguishesInputs(t *testing.T) {
	base, _ := GenerateKey("charge.create", map[string]any{"amount": 100})
	otherOp, _ := GenerateKey("charge.refund", map[string]any{"amount": 100})
	otherParams, _ := GenerateKey("charge.create", map[string]any{"amount": 200})
	if base == otherOp || base == otherParams {
		t.Fatal("different operations or params must produce different keys")
	}
}

func TestGenerateKey_RequiresOperation(t *testing.T) {
	if _, err := GenerateKey("  ", nil); err == nil {
		t.Fatal("expected error for blank operation")
	}
}

func TestReserve_FirstCallerWins(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	reserved, record, err := store.Reserve(ctx, "abc", "acme", "charge.create", 0)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !reserved || record.Status != StatusInProgress {
		t.Fatalf("first reserve must win: reserved=%v record=%+v", reserved, record)
	}
	if record.TenantID != "acme" || record.Operation != "charge.create" {
		t.Fatalf("expected tenant and operation on the record, got %+v", record)
	}

	reserved, existing, err := store.Reserve(ctx, "abc", "acme", "charge.create", 0)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if reserved {
		t.Fatal("second reserve must lose")
	}
	if existing.Status != StatusInProgress {
		t.Fatalf("loser must see the live record, got %+v", existing)
	}
}

func TestReserve_ConcurrentSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reserved, _, err := store.Reserve(context.Background(), "contested", "acme", "charge.create", 0)
			if err != nil {
				t.Errorf("Reserve: %v", err)
				return
			}
			if reserved {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&wins); got != 1 {
		t.Fatalf("expected exactly one winner got %d", got)
	}
}

func TestComplete_ReplaysResult(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Reserve(ctx, "abc", "acme", "charge.create", 0); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := store.Complete(ctx, "abc", map[string]any{"charge_id": "ch_1"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	reserved, existing, err := store.Reserve(ctx, "abc", "acme", "charge.create", 0)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if reserved {
		t.Fatal("completed key must not be re-reserved before expiry")
	}
	if existing.Status != StatusCompleted {
		t.Fatalf("expected completed got %s", existing.Status)
	}
	result, ok := existing.Result.(map[string]any)
	if !ok || result["charge_id"] != "ch_1" {
		t.Fatalf("expected stored result, got %v", existing.Result)
	}
}

func TestFail_ReleasesReservation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Reserve(ctx, "abc", "acme", "charge.create", 0); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := store.Fail(ctx, "abc"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	reserved, _, err := store.Reserve(ctx, "abc", "acme", "charge.create", 0)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !reserved {
		t.Fatal("failed key must be reservable again")
	}
}

func TestExpiry_LazyEviction(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Reserve(ctx, "abc", "acme", "charge.create", time.Minute); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	*now = now.Add(2 * time.Minute)

	if _, ok, err := store.Check(ctx, "abc"); err != nil || ok {
		t.Fatalf("expired record must not be visible: ok=%v err=%v", ok, err)
	}
	reserved, _, err := store.Reserve(ctx, "abc", "acme", "charge.create", time.Minute)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !reserved {
		t.Fatal("expired key must be reservable")
	}
}

func TestCleanupExpired(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	if _, _, err := store.Reserve(ctx, "old", "acme", "charge.create", time.Minute); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, _, err := store.Reserve(ctx, "fresh", "acme", "charge.create", time.Hour); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	*now = now.Add(30 * time.Minute)

	removed, err := store.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed got %d", removed)
	}
	if _, ok, _ := store.Check(ctx, "fresh"); !ok {
		t.Fatal("fresh record must survive cleanup")
	}
}
