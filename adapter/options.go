package adapter

import (
	"context"

	"github.com/goliatone/go-integrations/breaker"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/health"
	"github.com/goliatone/go-integrations/oauth"
	"github.com/goliatone/go-integrations/ratelimit"
	"github.com/goliatone/go-integrations/transport"
)

// TokenSource supplies live bearer tokens for oauth2 adapters; the oauth
// package Manager satisfies it.
type TokenSource interface {
	ValidToken(ctx context.Context, providerName string, tenantID string) (oauth.Token, bool, error)
	Refresh(ctx context.Context, providerName string, tenantID string) (oauth.Token, bool, error)
}

var _ TokenSource = (*oauth.Manager)(nil)

type Option func(*Core)

func WithCredentialStore(store core.CredentialStore) Option {
	return func(c *Core) {
		if store != nil {
			c.creds = store
		}
	}
}

func WithTransport(client *transport.Client) Option {
	return func(c *Core) {
		if client != nil {
			c.client = client
		}
	}
}

func WithTokenSource(source TokenSource) Option {
	return func(c *Core) {
		if source != nil {
			c.tokens = source
		}
	}
}

func WithRateLimiter(limiter *ratelimit.SlidingWindow) Option {
	return func(c *Core) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

func WithBreaker(b *breaker.Breaker) Option {
	return func(c *Core) {
		if b != nil {
			c.breaker = b
		}
	}
}

func WithHealthTracker(tracker *health.Tracker) Option {
	return func(c *Core) {
		if tracker != nil {
			c.tracker = tracker
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(c *Core) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(c *Core) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}
