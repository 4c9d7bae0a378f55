package dlq

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestQueue(t *testing.T) (*Queue, *time.Time) {
	t.Helper()
	now := time.Unix(1_700_000_000, 0).UTC()
	queue := NewQueue()
	queue.Now = func() time.Time { return now }
	return queue, &now
}

func enqueueLetter(t *testing.T, queue *Queue, tenantID string) DeadLetter {
	t.Helper()
	return enqueueAdapterLetter(t, queue, tenantID, "stripe")
}

func enqueueAdapterLetter(t *testing.T, queue *Queue, tenantID, adapterName string) DeadLetter {
	t.Helper()
	letter, err := queue.Enqueue(context.Background(), DeadLetter{
		TenantID:    tenantID,
		AdapterName: adapterName,
		Operation:   "charge.create",
		Payload:     map[string]any{"amount": 100},
		Error:       "HTTP 503: upstream down",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return letter
}

func TestEnqueue_SetsDefaults(t *testing.T) {
	queue, now := newTestQueue(t)
	letter := enqueueLetter(t, queue, "acme")

	if letter.ID == "" {
		t.Fatal("expected generated id")
	}
	if letter.Status != StatusPending {
		t.Fatalf("expected pending got %s", letter.Status)
	}
	if letter.MaxRetries != DefaultMaxRetries {
		t.Fatalf("expected default max retries got %d", letter.MaxRetries)
	}
	if !letter.CreatedAt.Equal(*now) {
		t.Fatalf("created at %v want %v", letter.CreatedAt, *now)
	}
}

func TestMarkRetrying_ExhaustsAfterMaxRetries(t *testing.T) {
	queue, _ := newTestQueue(t)
	letter := enqueueLetter(t, queue, "acme")
	ctx := context.Background()

	for i := 1; i <= DefaultMaxRetries; i++ {
		updated, err := queue.MarkRetrying(ctx, letter.ID)
		if err != nil {
			t.Fatalf("MarkRetrying attempt %d: %v", i, err)
		}
		if updated.RetryCount != i || updated.Status != StatusRetrying {
			t.Fatalf("attempt %d: %+v", i, updated)
		}
		if _, err := queue.MarkFailed(ctx, letter.ID, "still down"); err != nil {
			t.Fatalf("MarkFailed attempt %d: %v", i, err)
		}
	}

	if _, err := queue.MarkRetrying(ctx, letter.ID); err == nil {
		t.Fatal("expected error after retry budget exhausted")
	}
}

func TestMarkRetrying_ClaimedLetterCannotBeClaimedAgain(t *testing.T) {
	queue, _ := newTestQueue(t)
	letter := enqueueLetter(t, queue, "acme")
	ctx := context.Background()

	if _, err := queue.MarkRetrying(ctx, letter.ID); err != nil {
		t.Fatalf("MarkRetrying: %v", err)
	}
	if _, err := queue.MarkRetrying(ctx, letter.ID); err == nil {
		t.Fatal("claimed letter must not be claimable again")
	}

	released, err := queue.MarkFailed(ctx, letter.ID, "replay failed: HTTP 502")
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if released.Status != StatusPending {
		t.Fatalf("expected release back to pending, got %s", released.Status)
	}
	if !strings.Contains(released.Error, "replay failed: HTTP 502") {
		t.Fatalf("failure must append to error trail, got %q", released.Error)
	}
	if _, err := queue.MarkRetrying(ctx, letter.ID); err != nil {
		t.Fatalf("released letter must be claimable again: %v", err)
	}
}

func TestMarkFailed_RequiresClaimedLetter(t *testing.T) {
	queue, _ := newTestQueue(t)
	letter := enqueueLetter(t, queue, "acme")

	if _, err := queue.MarkFailed(context.Background(), letter.ID, "oops"); err == nil {
		t.Fatal("pending letter must not be releasable")
	}
}

func TestMarkRetrying_RejectsTerminalStatuses(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	resolved := enqueueLetter(t, queue, "acme")
	if _, err := queue.MarkResolved(ctx, resolved.ID, "operator"); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	if _, err := queue.MarkRetrying(ctx, resolved.ID); err == nil {
		t.Fatal("resolved letter must not be retryable")
	}

	discarded := enqueueLetter(t, queue, "acme")
	if _, err := queue.MarkDiscarded(ctx, discarded.ID, "stale"); err != nil {
		t.Fatalf("MarkDiscarded: %v", err)
	}
	if _, err := queue.MarkRetrying(ctx, discarded.ID); err == nil {
		t.Fatal("discarded letter must not be retryable")
	}
}

func TestMarkRetrying_ConcurrentClaimsYieldOneWinner(t *testing.T) {
	queue, _ := newTestQueue(t)
	letter := enqueueLetter(t, queue, "acme")

	var claims int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := queue.MarkRetrying(context.Background(), letter.ID); err == nil {
				atomic.AddInt32(&claims, 1)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&claims); got != 1 {
		t.Fatalf("expected exactly 1 successful claim got %d", got)
	}
}

func TestMarkResolved_RecordsResolver(t *testing.T) {
	queue, _ := newTestQueue(t)
	letter := enqueueLetter(t, queue, "acme")

	resolved, err := queue.MarkResolved(context.Background(), letter.ID, "ops@acme")
	if err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	if resolved.Status != StatusResolved {
		t.Fatalf("expected resolved got %s", resolved.Status)
	}
	if resolved.ResolvedBy != "ops@acme" {
		t.Fatalf("expected resolver identity, got %q", resolved.ResolvedBy)
	}
	if resolved.ResolvedAt == nil {
		t.Fatal("expected resolved timestamp")
	}
}

func TestMarkDiscarded_AppendsReason(t *testing.T) {
	queue, _ := newTestQueue(t)
	letter := enqueueLetter(t, queue, "acme")

	updated, err := queue.MarkDiscarded(context.Background(), letter.ID, "payload no longer valid")
	if err != nil {
		t.Fatalf("MarkDiscarded: %v", err)
	}
	if updated.Status != StatusDiscarded {
		t.Fatalf("expected discarded got %s", updated.Status)
	}
	if !strings.Contains(updated.Error, "HTTP 503") || !strings.Contains(updated.Error, "discarded: payload no longer valid") {
		t.Fatalf("reason must append to error trail, got %q", updated.Error)
	}
	if updated.ResolvedAt == nil {
		t.Fatal("expected resolved timestamp")
	}
}

func TestListPending_OldestFirstAndCapped(t *testing.T) {
	queue, now := newTestQueue(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		*now = now.Add(time.Minute)
		ids = append(ids, enqueueLetter(t, queue, "acme").ID)
	}
	if _, err := queue.MarkResolved(ctx, ids[1], "replay"); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}

	pending, err := queue.ListPending(ctx, "acme", "", 0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending got %d", len(pending))
	}
	if pending[0].ID != ids[0] || pending[1].ID != ids[2] {
		t.Fatalf("expected oldest first order, got %s %s", pending[0].ID, pending[1].ID)
	}

	capped, err := queue.ListPending(ctx, "acme", "", 1)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(capped) != 1 || capped[0].ID != ids[0] {
		t.Fatalf("limit must keep the oldest, got %+v", capped)
	}
}

func TestListPending_TenantScoped(t *testing.T) {
	queue, _ := newTestQueue(t)
	enqueueLetter(t, queue, "acme")
	enqueueLetter(t, queue, "globex")

	pending, err := queue.ListPending(context.Background(), "acme", "", 0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].TenantID != "acme" {
		t.Fatalf("expected only acme letters, got %+v", pending)
	}
}

func TestListPending_AdapterScoped(t *testing.T) {
	queue, _ := newTestQueue(t)
	enqueueAdapterLetter(t, queue, "acme", "stripe")
	enqueueAdapterLetter(t, queue, "acme", "slack")

	pending, err := queue.ListPending(context.Background(), "acme", "Stripe", 0)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].AdapterName != "stripe" {
		t.Fatalf("expected only stripe letters, got %+v", pending)
	}
}

func TestGetStats(t *testing.T) {
	queue, now := newTestQueue(t)
	ctx := context.Background()
	start := *now

	first := enqueueLetter(t, queue, "acme")
	second := enqueueLetter(t, queue, "acme")
	*now = now.Add(time.Minute)
	enqueueLetter(t, queue, "acme")

	if _, err := queue.MarkRetrying(ctx, first.ID); err != nil {
		t.Fatalf("MarkRetrying: %v", err)
	}
	if _, err := queue.MarkResolved(ctx, second.ID, "replay"); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}

	stats, err := queue.GetStats(ctx, "acme", "")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	want := Stats{Total: 3, Pending: 1, Retrying: 1, Resolved: 1, Oldest: start, Newest: start.Add(time.Minute)}
	if stats != want {
		t.Fatalf("stats %+v want %+v", stats, want)
	}
}

func TestGetStats_AdapterScoped(t *testing.T) {
	queue, _ := newTestQueue(t)
	enqueueAdapterLetter(t, queue, "acme", "stripe")
	enqueueAdapterLetter(t, queue, "acme", "slack")
	enqueueAdapterLetter(t, queue, "acme", "slack")

	stats, err := queue.GetStats(context.Background(), "acme", "slack")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 2 || stats.Pending != 2 {
		t.Fatalf("expected 2 slack letters, got %+v", stats)
	}
}

func TestPurgeResolved_RemovesOnlyResolvedLetters(t *testing.T) {
	queue, now := newTestQueue(t)
	ctx := context.Background()

	resolved := enqueueLetter(t, queue, "acme")
	if _, err := queue.MarkResolved(ctx, resolved.ID, "replay"); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	discarded := enqueueLetter(t, queue, "acme")
	if _, err := queue.MarkDiscarded(ctx, discarded.ID, "stale"); err != nil {
		t.Fatalf("MarkDiscarded: %v", err)
	}
	pending := enqueueLetter(t, queue, "acme")

	*now = now.Add(48 * time.Hour)
	purged, err := queue.PurgeResolved(ctx, "", 24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeResolved: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged got %d", purged)
	}
	if _, err := queue.Get(ctx, resolved.ID); err == nil {
		t.Fatal("resolved letter should be gone")
	}
	if _, err := queue.Get(ctx, discarded.ID); err != nil {
		t.Fatalf("discarded letter must survive purge: %v", err)
	}
	if _, err := queue.Get(ctx, pending.ID); err != nil {
		t.Fatalf("pending letter must survive purge: %v", err)
	}
}

func TestPurgeResolved_AdapterScoped(t *testing.T) {
	queue, now := newTestQueue(t)
	ctx := context.Background()

	stripe := enqueueAdapterLetter(t, queue, "acme", "stripe")
	slack := enqueueAdapterLetter(t, queue, "acme", "slack")
	for _, id := range []string{stripe.ID, slack.ID} {
		if _, err := queue.MarkResolved(ctx, id, "replay"); err != nil {
			t.Fatalf("MarkResolved: %v", err)
		}
	}

	*now = now.Add(48 * time.Hour)
	purged, err := queue.PurgeResolved(ctx, "stripe", 24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeResolved: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged got %d", purged)
	}
	if _, err := queue.Get(ctx, slack.ID); err != nil {
		t.Fatalf("slack letter must survive a stripe-scoped purge: %v", err)
	}
}
