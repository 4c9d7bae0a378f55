package sqlstore

import (
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/dlq"
	"github.com/goliatone/go-integrations/oauth"
	"github.com/goliatone/go-integrations/webhooks"
)

func (r *credentialRecord) toDomain() core.AuthCredentials {
	if r == nil {
		return core.AuthCredentials{}
	}
	return core.AuthCredentials{
		TenantID:          r.TenantID,
		AdapterName:       r.AdapterName,
		AuthType:          core.AuthType(r.AuthType),
		APIKey:            r.APIKey,
		APIKeyHeader:      r.APIKeyHeader,
		APIKeyPrefix:      r.APIKeyPrefix,
		Username:          r.Username,
		Password:          r.Password,
		OAuthAccessToken:  r.OAuthAccessToken,
		OAuthRefreshToken: r.OAuthRefreshToken,
		OAuthTokenURL:     r.OAuthTokenURL,
		OAuthClientID:     r.OAuthClientID,
		OAuthClientSecret: r.OAuthClientSecret,
		OAuthExpiresAt:    cloneTimePtr(r.OAuthExpiresAt),
		CustomHeaders:     copyStringMap(r.CustomHeaders),
	}
}

func newCredentialRecord(creds core.AuthCredentials, now time.Time) *credentialRecord {
	key := creds.Key()
	return &credentialRecord{
		TenantID:          key.TenantID,
		AdapterName:       key.AdapterName,
		AuthType:          string(creds.AuthType),
		APIKey:            creds.APIKey,
		APIKeyHeader:      creds.APIKeyHeader,
		APIKeyPrefix:      creds.APIKeyPrefix,
		Username:          creds.Username,
		Password:          creds.Password,
		OAuthAccessToken:  creds.OAuthAccessToken,
		OAuthRefreshToken: creds.OAuthRefreshToken,
		OAuthTokenURL:     creds.OAuthTokenURL,
		OAuthClientID:     creds.OAuthClientID,
		OAuthClientSecret: creds.OAuthClientSecret,
		OAuthExpiresAt:    cloneTimePtr(creds.OAuthExpiresAt),
		CustomHeaders:     copyStringMap(creds.CustomHeaders),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (r *tokenRecord) toDomain() oauth.Token {
	if r == nil {
		return oauth.Token{}
	}
	return oauth.Token{
		TenantID:     r.TenantID,
		ProviderName: r.ProviderName,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Scopes:       copyStrings(r.Scopes),
		IssuedAt:     r.IssuedAt,
		ExpiresAt:    cloneTimePtr(r.ExpiresAt),
		RefreshCount: r.RefreshCount,
	}
}

func newTokenRecord(token oauth.Token, now time.Time) *tokenRecord {
	key := token.Key()
	return &tokenRecord{
		TenantID:     key.TenantID,
		ProviderName: key.AdapterName,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Scopes:       copyStrings(token.Scopes),
		IssuedAt:     token.IssuedAt,
		ExpiresAt:    cloneTimePtr(token.ExpiresAt),
		RefreshCount: token.RefreshCount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (r *webhookRegistrationRecord) toDomain() webhooks.Registration {
	if r == nil {
		return webhooks.Registration{}
	}
	return webhooks.Registration{
		ID:          r.ID,
		TenantID:    r.TenantID,
		URL:         r.URL,
		Secret:      r.Secret,
		Description: r.Description,
		Events:      copyStrings(r.Events),
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
}

func newWebhookRegistrationRecord(registration webhooks.Registration) *webhookRegistrationRecord {
	return &webhookRegistrationRecord{
		ID:          registration.ID,
		TenantID:    registration.TenantID,
		URL:         registration.URL,
		Secret:      registration.Secret,
		Description: registration.Description,
		Events:      copyStrings(registration.Events),
		Active:      registration.Active,
		CreatedAt:   registration.CreatedAt,
	}
}

func (r *webhookDeliveryRecord) toDomain() webhooks.Delivery {
	if r == nil {
		return webhooks.Delivery{}
	}
	return webhooks.Delivery{
		ID:             r.ID,
		RegistrationID: r.RegistrationID,
		TenantID:       r.TenantID,
		Event:          r.Event,
		URL:            r.URL,
		Status:         r.Status,
		StatusCode:     r.StatusCode,
		Attempts:       r.Attempts,
		Error:          r.Error,
		CreatedAt:      r.CreatedAt,
		CompletedAt:    r.CompletedAt,
	}
}

func newWebhookDeliveryRecord(delivery webhooks.Delivery) *webhookDeliveryRecord {
	return &webhookDeliveryRecord{
		ID:             delivery.ID,
		RegistrationID: delivery.RegistrationID,
		TenantID:       delivery.TenantID,
		Event:          delivery.Event,
		URL:            delivery.URL,
		Status:         delivery.Status,
		StatusCode:     delivery.StatusCode,
		Attempts:       delivery.Attempts,
		Error:          delivery.Error,
		CreatedAt:      delivery.CreatedAt,
		CompletedAt:    delivery.CompletedAt,
	}
}

func (r *deadLetterRecord) toDomain() dlq.DeadLetter {
	if r == nil {
		return dlq.DeadLetter{}
	}
	return dlq.DeadLetter{
		ID:          r.ID,
		TenantID:    r.TenantID,
		AdapterName: r.AdapterName,
		Operation:   r.Operation,
		Payload:     copyAnyMap(r.Payload),
		Error:       r.Error,
		Status:      dlq.Status(r.Status),
		RetryCount:  r.RetryCount,
		MaxRetries:  r.MaxRetries,
		ResolvedBy:  r.ResolvedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		ResolvedAt:  cloneTimePtr(r.ResolvedAt),
	}
}

func newDeadLetterRecord(letter dlq.DeadLetter) *deadLetterRecord {
	return &deadLetterRecord{
		ID:          letter.ID,
		TenantID:    letter.TenantID,
		AdapterName: letter.AdapterName,
		Operation:   letter.Operation,
		Payload:     copyAnyMap(letter.Payload),
		Error:       letter.Error,
		Status:      string(letter.Status),
		RetryCount:  letter.RetryCount,
		MaxRetries:  letter.MaxRetries,
		ResolvedBy:  letter.ResolvedBy,
		CreatedAt:   letter.CreatedAt,
		UpdatedAt:   letter.UpdatedAt,
		ResolvedAt:  cloneTimePtr(letter.ResolvedAt),
	}
}

func cloneTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}

func copyStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}

func copyStringMap(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}

func copyAnyMap(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}
