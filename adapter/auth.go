package adapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
)

const credentialRefreshMargin = 60 * time.Second

// authHeaders resolves the outbound auth headers for the tenant from the
// adapter's configured auth type.
func (c *Core) authHeaders(ctx context.Context, tenantID string) (map[string]string, error) {
	headers := map[string]string{}
	if c.config.AuthType == core.AuthTypeNone {
		return headers, nil
	}

	creds, err := c.creds.Get(ctx, core.TenantKey{TenantID: tenantID, AdapterName: c.config.Name})
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "load credentials").
			WithTextCode(core.ErrorInternal)
	}
	missing := errors.Is(err, core.ErrNotFound)

	switch c.config.AuthType {
	case core.AuthTypeAPIKey:
		if missing || creds.APIKey == "" {
			return nil, c.credentialsError(tenantID, "api key not configured")
		}
		name := creds.APIKeyHeader
		if name == "" {
			name = "Authorization"
		}
		headers[name] = strings.TrimSpace(creds.APIKeyPrefix + " " + creds.APIKey)

	case core.AuthTypeBasic:
		if missing || creds.Username == "" {
			return nil, c.credentialsError(tenantID, "basic credentials not configured")
		}
		raw := creds.Username + ":" + creds.Password
		headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))

	case core.AuthTypeCustom:
		if missing || len(creds.CustomHeaders) == 0 {
			return nil, c.credentialsError(tenantID, "custom headers not configured")
		}
		for key, value := range creds.CustomHeaders {
			headers[key] = value
		}

	case core.AuthTypeOAuth2:
		token, err := c.bearerToken(ctx, tenantID, creds, missing)
		if err != nil {
			return nil, err
		}
		headers["Authorization"] = "Bearer " + token
	}

	return headers, nil
}

func (c *Core) bearerToken(ctx context.Context, tenantID string, creds core.AuthCredentials, missing bool) (string, error) {
	if c.tokens != nil {
		token, ok, err := c.tokens.ValidToken(ctx, c.config.OAuthProvider, tenantID)
		if err != nil {
			return "", err
		}
		if ok {
			return token.AccessToken, nil
		}
		if missing {
			return "", c.credentialsError(tenantID, "no oauth token available")
		}
	}
	if missing || creds.OAuthAccessToken == "" {
		return "", c.credentialsError(tenantID, "oauth token not configured")
	}
	if credentialTokenExpired(creds, c.Now()) && creds.OAuthRefreshToken != "" {
		if refreshed, err := c.refreshCredentialToken(ctx, creds); err == nil {
			return refreshed.OAuthAccessToken, nil
		}
	}
	return creds.OAuthAccessToken, nil
}

// oauthCredentials reports whether a mid-request token refresh is possible
// for the tenant.
func (c *Core) oauthCredentials(ctx context.Context, tenantID string) bool {
	if c.config.AuthType != core.AuthTypeOAuth2 {
		return false
	}
	if c.tokens != nil {
		return true
	}
	creds, err := c.creds.Get(ctx, core.TenantKey{TenantID: tenantID, AdapterName: c.config.Name})
	return err == nil && creds.OAuthRefreshToken != ""
}

// refreshAuth rotates the bearer token after an upstream 401 and rewrites the
// Authorization header in place. Returns false when no fresh token could be
// obtained.
func (c *Core) refreshAuth(ctx context.Context, tenantID string, headers map[string]string) bool {
	if c.tokens != nil {
		token, ok, err := c.tokens.Refresh(ctx, c.config.OAuthProvider, tenantID)
		if err != nil || !ok {
			core.LogError(ctx, c.logger, "token refresh failed", map[string]any{
				"adapter":   c.config.Name,
				"tenant_id": tenantID,
				"error":     errText(err),
			})
			return false
		}
		headers["Authorization"] = "Bearer " + token.AccessToken
		return true
	}

	creds, err := c.creds.Get(ctx, core.TenantKey{TenantID: tenantID, AdapterName: c.config.Name})
	if err != nil || creds.OAuthRefreshToken == "" {
		return false
	}
	refreshed, err := c.refreshCredentialToken(ctx, creds)
	if err != nil {
		core.LogError(ctx, c.logger, "token refresh failed", map[string]any{
			"adapter":   c.config.Name,
			"tenant_id": tenantID,
			"error":     err.Error(),
		})
		return false
	}
	headers["Authorization"] = "Bearer " + refreshed.OAuthAccessToken
	return true
}

// refreshCredentialToken performs a refresh_token grant against the token URL
// stored on the credential record and persists the rotated token.
func (c *Core) refreshCredentialToken(ctx context.Context, creds core.AuthCredentials) (core.AuthCredentials, error) {
	if creds.OAuthTokenURL == "" {
		return core.AuthCredentials{}, fmt.Errorf("adapter: credential record has no token url")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", creds.OAuthRefreshToken)
	if creds.OAuthClientID != "" {
		form.Set("client_id", creds.OAuthClientID)
	}
	if creds.OAuthClientSecret != "" {
		form.Set("client_secret", creds.OAuthClientSecret)
	}

	res, err := c.client.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     creds.OAuthTokenURL,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    []byte(form.Encode()),
		Timeout: 15 * time.Second,
	})
	if err != nil {
		return core.AuthCredentials{}, fmt.Errorf("adapter: refresh token grant: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return core.AuthCredentials{}, fmt.Errorf("adapter: refresh token grant returned HTTP %d", res.StatusCode)
	}

	var grant struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(res.Body, &grant); err != nil {
		return core.AuthCredentials{}, fmt.Errorf("adapter: decode refresh grant: %w", err)
	}
	if grant.AccessToken == "" {
		return core.AuthCredentials{}, fmt.Errorf("adapter: refresh grant returned no access token")
	}

	creds.OAuthAccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		creds.OAuthRefreshToken = grant.RefreshToken
	}
	expiresIn := grant.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	expiresAt := c.Now().Add(time.Duration(expiresIn) * time.Second)
	creds.OAuthExpiresAt = &expiresAt

	if err := c.creds.Set(ctx, creds); err != nil {
		return core.AuthCredentials{}, fmt.Errorf("adapter: persist refreshed credentials: %w", err)
	}
	return creds, nil
}

func (c *Core) credentialsError(tenantID string, reason string) error {
	return goerrors.New(
		fmt.Sprintf("credentials for tenant %s on %s: %s", tenantID, c.config.Name, reason),
		goerrors.CategoryAuth,
	).WithTextCode(core.ErrorCredentialsNotFound).
		WithCode(http.StatusUnauthorized).
		WithMetadata(map[string]any{"tenant_id": tenantID, "adapter": c.config.Name})
}

func credentialTokenExpired(creds core.AuthCredentials, now time.Time) bool {
	if creds.OAuthExpiresAt == nil {
		return false
	}
	return !now.Before(creds.OAuthExpiresAt.Add(-credentialRefreshMargin))
}

func errText(err error) string {
	if err == nil {
		return "refresh declined"
	}
	return err.Error()
}
