// Package jobs holds the background maintenance executed off the request
// path: token refresh sweeps, idempotency record cleanup, and dead letter
// retention. The runner consumes core.JobExecutionMessage so any queue
// wired through adapters/gojob can drive it.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-integrations/core"
)

const (
	JobIDTokenRefresh       = "integrations.tokens.refresh"
	JobIDIdempotencyCleanup = "integrations.idempotency.cleanup"
	JobIDDeadLetterPurge    = "integrations.dlq.purge"
)

// DefaultPurgeRetention keeps resolved letters around long enough for
// operators to audit them.
const DefaultPurgeRetention = 7 * 24 * time.Hour

// TokenRefresher is the oauth surface the runner needs.
type TokenRefresher interface {
	ProviderNames() []string
	RefreshExpiring(ctx context.Context, providerName string) (int, error)
}

// IdempotencyCleaner evicts expired idempotency records.
type IdempotencyCleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// DeadLetterPurger removes resolved dead letters past retention. An empty
// adapter name sweeps every queue.
type DeadLetterPurger interface {
	PurgeResolved(ctx context.Context, adapterName string, olderThan time.Duration) (int, error)
}

// Maintenance dispatches queued maintenance work by job id.
type Maintenance struct {
	tokens      TokenRefresher
	idempotency IdempotencyCleaner
	letters     DeadLetterPurger
	logger      core.Logger
}

type Option func(*Maintenance)

func WithTokenRefresher(tokens TokenRefresher) Option {
	return func(m *Maintenance) {
		if tokens != nil {
			m.tokens = tokens
		}
	}
}

func WithIdempotencyCleaner(cleaner IdempotencyCleaner) Option {
	return func(m *Maintenance) {
		if cleaner != nil {
			m.idempotency = cleaner
		}
	}
}

func WithDeadLetterPurger(purger DeadLetterPurger) Option {
	return func(m *Maintenance) {
		if purger != nil {
			m.letters = purger
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(m *Maintenance) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewMaintenance(opts ...Option) *Maintenance {
	_, logger := glog.Resolve("integrations", nil, nil)
	runner := &Maintenance{logger: glog.Ensure(logger)}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(runner)
	}
	return runner
}

// Handle executes the maintenance job named by the message. Unknown job ids
// fail so misrouted messages surface at the queue instead of being dropped
// silently.
func (m *Maintenance) Handle(ctx context.Context, msg *core.JobExecutionMessage) error {
	if m == nil {
		return fmt.Errorf("jobs: maintenance runner is nil")
	}
	if msg == nil {
		return fmt.Errorf("jobs: execution message is required")
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDTokenRefresh:
		_, err := m.RunTokenRefresh(ctx, paramString(msg.Parameters, "provider"))
		return err
	case JobIDIdempotencyCleanup:
		_, err := m.RunIdempotencyCleanup(ctx)
		return err
	case JobIDDeadLetterPurge:
		_, err := m.RunDeadLetterPurge(ctx, paramString(msg.Parameters, "adapter"), paramDuration(msg.Parameters, "retention", DefaultPurgeRetention))
		return err
	default:
		return fmt.Errorf("jobs: unknown job id %q", msg.JobID)
	}
}

// RunTokenRefresh proactively refreshes tokens near expiry. An empty
// provider name sweeps every registered provider.
func (m *Maintenance) RunTokenRefresh(ctx context.Context, providerName string) (int, error) {
	if m == nil || m.tokens == nil {
		return 0, fmt.Errorf("jobs: token refresher is not configured")
	}
	providers := []string{strings.TrimSpace(providerName)}
	if providers[0] == "" {
		providers = m.tokens.ProviderNames()
	}
	total := 0
	for _, name := range providers {
		count, err := m.tokens.RefreshExpiring(ctx, name)
		total += count
		if err != nil {
			return total, err
		}
	}
	core.LogInfo(ctx, m.logger, "token refresh sweep complete", map[string]any{
		"refreshed": total,
	})
	return total, nil
}

func (m *Maintenance) RunIdempotencyCleanup(ctx context.Context) (int, error) {
	if m == nil || m.idempotency == nil {
		return 0, fmt.Errorf("jobs: idempotency cleaner is not configured")
	}
	count, err := m.idempotency.CleanupExpired(ctx)
	if err != nil {
		return count, err
	}
	core.LogInfo(ctx, m.logger, "idempotency cleanup complete", map[string]any{
		"evicted": count,
	})
	return count, nil
}

func (m *Maintenance) RunDeadLetterPurge(ctx context.Context, adapterName string, retention time.Duration) (int, error) {
	if m == nil || m.letters == nil {
		return 0, fmt.Errorf("jobs: dead letter purger is not configured")
	}
	if retention <= 0 {
		retention = DefaultPurgeRetention
	}
	count, err := m.letters.PurgeResolved(ctx, strings.TrimSpace(adapterName), retention)
	if err != nil {
		return count, err
	}
	core.LogInfo(ctx, m.logger, "dead letter purge complete", map[string]any{
		"adapter": adapterName,
		"purged":  count,
	})
	return count, nil
}

// Schedule enqueues the standard maintenance sweep through the configured
// queue. The idempotency key collapses duplicate ticks from overlapping
// schedulers.
func Schedule(ctx context.Context, enqueuer core.JobEnqueuer, tick time.Time) error {
	if enqueuer == nil {
		return fmt.Errorf("jobs: enqueuer is required")
	}
	stamp := tick.UTC().Format(time.RFC3339)
	messages := []*core.JobExecutionMessage{
		{JobID: JobIDTokenRefresh, IdempotencyKey: JobIDTokenRefresh + ":" + stamp},
		{JobID: JobIDIdempotencyCleanup, IdempotencyKey: JobIDIdempotencyCleanup + ":" + stamp},
		{JobID: JobIDDeadLetterPurge, IdempotencyKey: JobIDDeadLetterPurge + ":" + stamp},
	}
	for _, msg := range messages {
		if err := enqueuer.Enqueue(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func paramString(params map[string]any, key string) string {
	if value, ok := params[key].(string); ok {
		return value
	}
	return ""
}

func paramDuration(params map[string]any, key string, fallback time.Duration) time.Duration {
	switch value := params[key].(type) {
	case string:
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	case float64:
		return time.Duration(value) * time.Second
	case int:
		return time.Duration(value) * time.Second
	case int64:
		return time.Duration(value) * time.Second
	}
	return fallback
}
