package sqlstore

import (
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/dlq"
	"github.com/goliatone/go-integrations/idempotency"
	"github.com/goliatone/go-integrations/oauth"
	"github.com/goliatone/go-integrations/webhooks"
)

var (
	_ core.CredentialStore       = (*CredentialStore)(nil)
	_ core.CredentialStore       = (*CachedCredentialStore)(nil)
	_ oauth.TokenStore           = (*TokenStore)(nil)
	_ webhooks.RegistrationStore = (*WebhookRegistrationStore)(nil)
	_ webhooks.DeliveryStore     = (*WebhookDeliveryStore)(nil)
	_ dlq.Store                  = (*DeadLetterStore)(nil)
	_ idempotency.RecordStore    = (*IdempotencyStore)(nil)
)
