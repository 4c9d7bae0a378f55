package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
)

const tokenEndpointTimeout = 15 * time.Second
const revokeEndpointTimeout = 10 * time.Second
const defaultExpiresIn = 3600

// Manager coordinates the token lifecycle: none -> authorized -> expired ->
// authorized | revoked. Providers and stores are constructor-injected;
// independent instances never interfere.
type Manager struct {
	Now func() time.Time

	mu        sync.RWMutex
	providers map[string]ProviderConfig

	tokens        TokenStore
	states        StateStore
	stateTTL      time.Duration
	refreshMargin time.Duration
	client        *transport.Client
	logger        core.Logger
	refreshMu     sync.Mutex
	refreshes     map[core.TenantKey]*sync.Mutex
}

type Option func(*Manager)

func WithTokenStore(store TokenStore) Option {
	return func(m *Manager) {
		if store != nil {
			m.tokens = store
		}
	}
}

func WithStateStore(store StateStore) Option {
	return func(m *Manager) {
		if store != nil {
			m.states = store
		}
	}
}

// WithStateTTL sets how long authorize states stay valid before a pending
// exchange is rejected. Ignored when WithStateStore supplies its own store.
func WithStateTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.stateTTL = ttl
		}
	}
}

// WithRefreshMargin overrides how far before expiry tokens are refreshed.
func WithRefreshMargin(margin time.Duration) Option {
	return func(m *Manager) {
		if margin > 0 {
			m.refreshMargin = margin
		}
	}
}

func WithTransport(client *transport.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.client = client
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(opts ...Option) *Manager {
	_, logger := glog.Resolve("integrations", nil, nil)
	manager := &Manager{
		Now:           func() time.Time { return time.Now().UTC() },
		providers:     map[string]ProviderConfig{},
		tokens:        NewMemoryTokenStore(),
		refreshMargin: RefreshMargin,
		client:        transport.NewClient(nil),
		logger:        glog.Ensure(logger),
		refreshes:     map[core.TenantKey]*sync.Mutex{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(manager)
	}
	if manager.states == nil {
		manager.states = NewMemoryStateStore(manager.stateTTL)
	}
	return manager
}

// RegisterProvider stores the static provider config; idempotent overwrite.
func (m *Manager) RegisterProvider(config ProviderConfig) error {
	if m == nil {
		return fmt.Errorf("oauth: manager is nil")
	}
	if err := config.Validate(); err != nil {
		return err
	}
	name := strings.TrimSpace(strings.ToLower(config.Name))
	config.Name = name
	m.mu.Lock()
	m.providers[name] = config
	m.mu.Unlock()
	return nil
}

// ProviderNames returns the registered provider names sorted.
func (m *Manager) ProviderNames() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (m *Manager) provider(name string) (ProviderConfig, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	m.mu.RLock()
	config, ok := m.providers[name]
	m.mu.RUnlock()
	if !ok {
		return ProviderConfig{}, fmt.Errorf("oauth: provider %q is not registered", name)
	}
	return config, nil
}

// AuthorizeURL generates the provider authorization URL with a single-use
// CSRF state bound to the tenant and provider.
func (m *Manager) AuthorizeURL(ctx context.Context, providerName string, tenantID string, extraScopes ...string) (string, error) {
	if m == nil {
		return "", fmt.Errorf("oauth: manager is nil")
	}
	config, err := m.provider(providerName)
	if err != nil {
		return "", err
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", fmt.Errorf("oauth: tenant id is required")
	}

	state, err := generateState()
	if err != nil {
		return "", err
	}
	if err := m.states.Save(ctx, StateRecord{
		State:        state,
		TenantID:     tenantID,
		ProviderName: config.Name,
		CreatedAt:    m.now(),
	}); err != nil {
		return "", err
	}

	scopes := append(append([]string(nil), config.Scopes...), extraScopes...)
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", config.ClientID)
	params.Set("redirect_uri", config.RedirectURI)
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("state", state)

	separator := "?"
	if strings.Contains(config.AuthorizeURL, "?") {
		separator = "&"
	}
	return config.AuthorizeURL + separator + params.Encode(), nil
}

// ExchangeCode validates and consumes the state, performs the
// authorization-code grant, and stores the resulting token.
func (m *Manager) ExchangeCode(ctx context.Context, providerName string, tenantID string, code string, state string) (Token, error) {
	if m == nil {
		return Token{}, fmt.Errorf("oauth: manager is nil")
	}
	config, err := m.provider(providerName)
	if err != nil {
		return Token{}, err
	}
	tenantID = strings.TrimSpace(tenantID)

	if strings.TrimSpace(state) != "" {
		record, consumeErr := m.states.Consume(ctx, state)
		if consumeErr != nil {
			return Token{}, consumeErr
		}
		if record.TenantID != tenantID || record.ProviderName != config.Name {
			return Token{}, fmt.Errorf("oauth: state mismatch for tenant %q provider %q", tenantID, config.Name)
		}
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", config.RedirectURI)
	form.Set("client_id", config.ClientID)
	form.Set("client_secret", config.ClientSecret)

	grant, err := m.tokenGrant(ctx, config.TokenURL, form)
	if err != nil {
		return Token{}, err
	}

	now := m.now()
	expiresAt := now.Add(time.Duration(grant.expiresIn) * time.Second)
	token := Token{
		TenantID:     tenantID,
		ProviderName: config.Name,
		AccessToken:  grant.accessToken,
		RefreshToken: grant.refreshToken,
		TokenType:    grant.tokenType,
		Scopes:       grant.scopes,
		IssuedAt:     now,
		ExpiresAt:    &expiresAt,
	}
	if err := m.tokens.Save(ctx, token); err != nil {
		return Token{}, err
	}

	core.LogInfo(ctx, m.logger, "oauth code exchanged", map[string]any{
		"provider": config.Name,
		"tenant":   tenantID,
		"scopes":   len(token.Scopes),
	})
	return token, nil
}

// ValidToken returns the stored token, refreshing it first when it is inside
// the expiry margin and a refresh token exists. The boolean reports whether a
// usable token is available.
func (m *Manager) ValidToken(ctx context.Context, providerName string, tenantID string) (Token, bool, error) {
	if m == nil {
		return Token{}, false, fmt.Errorf("oauth: manager is nil")
	}
	key := core.NormalizeTenantKey(core.TenantKey{TenantID: tenantID, AdapterName: providerName})
	token, err := m.tokens.Get(ctx, key)
	if err != nil {
		if err == core.ErrNotFound {
			return Token{}, false, nil
		}
		return Token{}, false, err
	}

	if !token.ExpiresWithin(m.now(), m.refreshMargin) {
		return token, true, nil
	}
	if token.RefreshToken == "" {
		return Token{}, false, nil
	}
	refreshed, ok, err := m.Refresh(ctx, providerName, tenantID)
	if err != nil || !ok {
		return Token{}, false, err
	}
	return refreshed, true, nil
}

// Refresh performs one refresh grant for the stored token. Refreshes for the
// same key serialize so two callers cannot rotate the same token twice.
func (m *Manager) Refresh(ctx context.Context, providerName string, tenantID string) (Token, bool, error) {
	if m == nil {
		return Token{}, false, fmt.Errorf("oauth: manager is nil")
	}
	config, err := m.provider(providerName)
	if err != nil {
		return Token{}, false, err
	}
	key := core.NormalizeTenantKey(core.TenantKey{TenantID: tenantID, AdapterName: providerName})

	lock := m.refreshLock(key)
	lock.Lock()
	defer lock.Unlock()

	token, err := m.tokens.Get(ctx, key)
	if err != nil {
		if err == core.ErrNotFound {
			return Token{}, false, nil
		}
		return Token{}, false, err
	}
	if token.RefreshToken == "" {
		return Token{}, false, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", token.RefreshToken)
	form.Set("client_id", config.ClientID)
	form.Set("client_secret", config.ClientSecret)

	grant, err := m.tokenGrant(ctx, config.TokenURL, form)
	if err != nil {
		core.LogError(ctx, m.logger, "oauth token refresh failed", map[string]any{
			"provider": config.Name,
			"tenant":   token.TenantID,
			"error":    err.Error(),
		})
		return Token{}, false, nil
	}

	now := m.now()
	expiresAt := now.Add(time.Duration(grant.expiresIn) * time.Second)
	token.AccessToken = grant.accessToken
	if grant.refreshToken != "" {
		token.RefreshToken = grant.refreshToken
	}
	if len(grant.scopes) > 0 {
		token.Scopes = grant.scopes
	}
	token.ExpiresAt = &expiresAt
	token.RefreshCount++
	if err := m.tokens.Save(ctx, token); err != nil {
		return Token{}, false, err
	}
	return token, true, nil
}

// Revoke calls the provider revoke endpoint best-effort and removes the local
// token unconditionally.
func (m *Manager) Revoke(ctx context.Context, providerName string, tenantID string) error {
	if m == nil {
		return fmt.Errorf("oauth: manager is nil")
	}
	key := core.NormalizeTenantKey(core.TenantKey{TenantID: tenantID, AdapterName: providerName})
	token, err := m.tokens.Get(ctx, key)
	if err != nil {
		if err == core.ErrNotFound {
			return nil
		}
		return err
	}

	config, configErr := m.provider(providerName)
	if configErr == nil && strings.TrimSpace(config.RevokeURL) != "" {
		form := url.Values{}
		form.Set("token", token.AccessToken)
		form.Set("client_id", config.ClientID)
		if _, revokeErr := m.client.Do(ctx, transport.Request{
			Method:  http.MethodPost,
			URL:     config.RevokeURL,
			Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
			Body:    []byte(form.Encode()),
			Timeout: revokeEndpointTimeout,
		}); revokeErr != nil {
			core.LogError(ctx, m.logger, "oauth revoke endpoint call failed", map[string]any{
				"provider": providerName,
				"tenant":   tenantID,
				"error":    revokeErr.Error(),
			})
		}
	}

	return m.tokens.Delete(ctx, key)
}

// ValidateScopes reports whether a token exists and its granted scopes cover
// the required set.
func (m *Manager) ValidateScopes(ctx context.Context, providerName string, tenantID string, required []string) bool {
	if m == nil {
		return false
	}
	key := core.NormalizeTenantKey(core.TenantKey{TenantID: tenantID, AdapterName: providerName})
	token, err := m.tokens.Get(ctx, key)
	if err != nil {
		return false
	}
	return token.HasScopes(required)
}

// RefreshExpiring refreshes every stored token for the provider that is
// inside the expiry margin. Returns the number of tokens refreshed.
func (m *Manager) RefreshExpiring(ctx context.Context, providerName string) (int, error) {
	if m == nil {
		return 0, fmt.Errorf("oauth: manager is nil")
	}
	tokens, err := m.tokens.List(ctx, providerName)
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for _, token := range tokens {
		if !token.ExpiresWithin(m.now(), m.refreshMargin) || token.RefreshToken == "" {
			continue
		}
		if _, ok, refreshErr := m.Refresh(ctx, token.ProviderName, token.TenantID); refreshErr == nil && ok {
			refreshed++
		}
	}
	return refreshed, nil
}

type tokenGrantResult struct {
	accessToken  string
	refreshToken string
	tokenType    string
	expiresIn    int
	scopes       []string
}

func (m *Manager) tokenGrant(ctx context.Context, tokenURL string, form url.Values) (tokenGrantResult, error) {
	res, err := m.client.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     tokenURL,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    []byte(form.Encode()),
		Timeout: tokenEndpointTimeout,
	})
	if err != nil {
		return tokenGrantResult{}, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return tokenGrantResult{}, fmt.Errorf(
			"oauth: token endpoint returned %d: %s",
			res.StatusCode,
			truncate(string(res.Body), 200),
		)
	}
	return parseTokenGrant(res.Body)
}

func parseTokenGrant(body []byte) (tokenGrantResult, error) {
	var payload struct {
		AccessToken  string          `json:"access_token"`
		RefreshToken string          `json:"refresh_token"`
		TokenType    string          `json:"token_type"`
		ExpiresIn    *int            `json:"expires_in"`
		Scope        json.RawMessage `json:"scope"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return tokenGrantResult{}, fmt.Errorf("oauth: invalid token response: %w", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenGrantResult{}, fmt.Errorf("oauth: token response is missing access_token")
	}

	result := tokenGrantResult{
		accessToken:  payload.AccessToken,
		refreshToken: payload.RefreshToken,
		tokenType:    payload.TokenType,
		expiresIn:    defaultExpiresIn,
		scopes:       parseScope(payload.Scope),
	}
	if result.tokenType == "" {
		result.tokenType = "Bearer"
	}
	if payload.ExpiresIn != nil && *payload.ExpiresIn > 0 {
		result.expiresIn = *payload.ExpiresIn
	}
	return result, nil
}

// parseScope handles both wire shapes: a space-delimited string and a list.
func parseScope(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.Fields(asString)
	}
	var asList []string
	if err := json.Unmarshal(raw, &asList); err == nil {
		return asList
	}
	return nil
}

func (m *Manager) refreshLock(key core.TenantKey) *sync.Mutex {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	lock, ok := m.refreshes[key]
	if !ok {
		lock = &sync.Mutex{}
		m.refreshes[key] = lock
	}
	return lock
}

func (m *Manager) now() time.Time {
	if m != nil && m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
