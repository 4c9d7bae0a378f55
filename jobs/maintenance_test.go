package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
)

type stubRefresher struct {
	providers []string
	refreshed map[string]int
	failOn    string
}

func (s *stubRefresher) ProviderNames() []string { return s.providers }

func (s *stubRefresher) RefreshExpiring(_ context.Context, providerName string) (int, error) {
	if s.failOn != "" && providerName == s.failOn {
		return 0, fmt.Errorf("refresh %s failed", providerName)
	}
	if s.refreshed == nil {
		s.refreshed = map[string]int{}
	}
	s.refreshed[providerName]++
	return 2, nil
}

type stubCleaner struct {
	count int
	err   error
}

func (s stubCleaner) CleanupExpired(context.Context) (int, error) { return s.count, s.err }

type stubPurger struct {
	gotAdapter   string
	gotRetention time.Duration
	count        int
}

func (s *stubPurger) PurgeResolved(_ context.Context, adapterName string, olderThan time.Duration) (int, error) {
	s.gotAdapter = adapterName
	s.gotRetention = olderThan
	return s.count, nil
}

func TestRunTokenRefresh_SweepsAllProvidersWhenUnscoped(t *testing.T) {
	refresher := &stubRefresher{providers: []string{"salesforce", "slack"}}
	runner := NewMaintenance(WithTokenRefresher(refresher))

	total, err := runner.RunTokenRefresh(context.Background(), "")
	if err != nil {
		t.Fatalf("run token refresh: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected 4 refreshed tokens, got %d", total)
	}
	if refresher.refreshed["salesforce"] != 1 || refresher.refreshed["slack"] != 1 {
		t.Fatalf("expected one sweep per provider: %#v", refresher.refreshed)
	}
}

func TestRunTokenRefresh_ScopedToProvider(t *testing.T) {
	refresher := &stubRefresher{providers: []string{"salesforce", "slack"}}
	runner := NewMaintenance(WithTokenRefresher(refresher))

	if _, err := runner.RunTokenRefresh(context.Background(), "slack"); err != nil {
		t.Fatalf("run token refresh: %v", err)
	}
	if len(refresher.refreshed) != 1 || refresher.refreshed["slack"] != 1 {
		t.Fatalf("expected slack-only sweep: %#v", refresher.refreshed)
	}
}

func TestHandle_DispatchesByJobID(t *testing.T) {
	refresher := &stubRefresher{providers: []string{"salesforce"}}
	purger := &stubPurger{count: 3}
	runner := NewMaintenance(
		WithTokenRefresher(refresher),
		WithIdempotencyCleaner(stubCleaner{count: 5}),
		WithDeadLetterPurger(purger),
	)

	msgs := []*core.JobExecutionMessage{
		{JobID: JobIDTokenRefresh},
		{JobID: JobIDIdempotencyCleanup},
		{JobID: JobIDDeadLetterPurge, Parameters: map[string]any{"adapter": "salesforce", "retention": "48h"}},
	}
	for _, msg := range msgs {
		if err := runner.Handle(context.Background(), msg); err != nil {
			t.Fatalf("handle %s: %v", msg.JobID, err)
		}
	}
	if refresher.refreshed["salesforce"] != 1 {
		t.Fatalf("expected token refresh dispatch")
	}
	if purger.gotRetention != 48*time.Hour {
		t.Fatalf("expected retention parameter to apply, got %v", purger.gotRetention)
	}
	if purger.gotAdapter != "salesforce" {
		t.Fatalf("expected adapter parameter to apply, got %q", purger.gotAdapter)
	}
}

func TestHandle_UnknownJobFails(t *testing.T) {
	runner := NewMaintenance(WithIdempotencyCleaner(stubCleaner{}))
	if err := runner.Handle(context.Background(), &core.JobExecutionMessage{JobID: "integrations.unknown"}); err == nil {
		t.Fatalf("expected unknown job id error")
	}
	if err := runner.Handle(context.Background(), nil); err == nil {
		t.Fatalf("expected nil message error")
	}
}

func TestRunDeadLetterPurge_DefaultsRetention(t *testing.T) {
	purger := &stubPurger{}
	runner := NewMaintenance(WithDeadLetterPurger(purger))
	if _, err := runner.RunDeadLetterPurge(context.Background(), "", 0); err != nil {
		t.Fatalf("run purge: %v", err)
	}
	if purger.gotRetention != DefaultPurgeRetention {
		t.Fatalf("expected default retention, got %v", purger.gotRetention)
	}
}

func TestRun_MissingDependenciesFail(t *testing.T) {
	runner := NewMaintenance()
	if _, err := runner.RunTokenRefresh(context.Background(), ""); err == nil {
		t.Fatalf("expected missing refresher error")
	}
	if _, err := runner.RunIdempotencyCleanup(context.Background()); err == nil {
		t.Fatalf("expected missing cleaner error")
	}
	if _, err := runner.RunDeadLetterPurge(context.Background(), "", time.Hour); err == nil {
		t.Fatalf("expected missing purger error")
	}
}

type recordingEnqueuer struct {
	messages []*core.JobExecutionMessage
	err      error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, msg)
	return nil
}

func TestSchedule_EnqueuesSweepWithStableKeys(t *testing.T) {
	enqueuer := &recordingEnqueuer{}
	tick := time.Unix(1_700_000_000, 0).UTC()

	if err := Schedule(context.Background(), enqueuer, tick); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(enqueuer.messages) != 3 {
		t.Fatalf("expected 3 maintenance jobs, got %d", len(enqueuer.messages))
	}
	seen := map[string]bool{}
	for _, msg := range enqueuer.messages {
		seen[msg.JobID] = true
		want := msg.JobID + ":" + tick.Format(time.RFC3339)
		if msg.IdempotencyKey != want {
			t.Fatalf("expected idempotency key %q, got %q", want, msg.IdempotencyKey)
		}
	}
	if !seen[JobIDTokenRefresh] || !seen[JobIDIdempotencyCleanup] || !seen[JobIDDeadLetterPurge] {
		t.Fatalf("missing maintenance job ids: %#v", seen)
	}
}
