// Package oauth manages the OAuth2 token lifecycle across providers and
// tenants: authorization-code exchange, proactive refresh, revocation, CSRF
// state, and scope validation.
package oauth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
)

// RefreshMargin is the default span subtracted from the token expiry so
// refreshes happen before the provider actually rejects the token.
const RefreshMargin = 60 * time.Second

type Token struct {
	TenantID     string
	ProviderName string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scopes       []string
	IssuedAt     time.Time
	ExpiresAt    *time.Time
	RefreshCount int
}

func (t Token) Key() core.TenantKey {
	return core.NormalizeTenantKey(core.TenantKey{TenantID: t.TenantID, AdapterName: t.ProviderName})
}

// ExpiresWithin reports whether the token needs a refresh at the given
// instant, applying the proactive margin. Tokens without expiry never expire.
func (t Token) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if t.ExpiresAt == nil {
		return false
	}
	if margin <= 0 {
		margin = RefreshMargin
	}
	return !now.Before(t.ExpiresAt.Add(-margin))
}

// IsExpired is ExpiresWithin with the default margin.
func (t Token) IsExpired(now time.Time) bool {
	return t.ExpiresWithin(now, RefreshMargin)
}

func (t Token) HasScopes(required []string) bool {
	if len(required) == 0 {
		return true
	}
	granted := make(map[string]struct{}, len(t.Scopes))
	for _, scope := range t.Scopes {
		granted[strings.TrimSpace(scope)] = struct{}{}
	}
	for _, scope := range required {
		if _, ok := granted[strings.TrimSpace(scope)]; !ok {
			return false
		}
	}
	return true
}

// ProviderConfig is the static per-provider registration. Immutable once
// registered; re-registering overwrites wholesale.
type ProviderConfig struct {
	Name         string
	AuthorizeURL string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	RevokeURL    string
	RedirectURI  string
}

func (c ProviderConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("oauth: provider name is required")
	}
	if strings.TrimSpace(c.AuthorizeURL) == "" {
		return fmt.Errorf("oauth: authorize url is required")
	}
	if strings.TrimSpace(c.TokenURL) == "" {
		return fmt.Errorf("oauth: token url is required")
	}
	return nil
}

type TokenStore interface {
	Get(ctx context.Context, key core.TenantKey) (Token, error)
	Save(ctx context.Context, token Token) error
	Delete(ctx context.Context, key core.TenantKey) error
	List(ctx context.Context, providerName string) ([]Token, error)
}

type MemoryTokenStore struct {
	mu    sync.RWMutex
	items map[core.TenantKey]Token
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{items: map[core.TenantKey]Token{}}
}

func (s *MemoryTokenStore) Get(_ context.Context, key core.TenantKey) (Token, error) {
	if s == nil {
		return Token{}, fmt.Errorf("oauth: token store is not configured")
	}
	s.mu.RLock()
	token, ok := s.items[core.NormalizeTenantKey(key)]
	s.mu.RUnlock()
	if !ok {
		return Token{}, core.ErrNotFound
	}
	return cloneToken(token), nil
}

func (s *MemoryTokenStore) Save(_ context.Context, token Token) error {
	if s == nil {
		return fmt.Errorf("oauth: token store is not configured")
	}
	key := token.Key()
	if key.TenantID == "" || key.AdapterName == "" {
		return fmt.Errorf("oauth: tenant id and provider name are required")
	}
	s.mu.Lock()
	s.items[key] = cloneToken(token)
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, key core.TenantKey) error {
	if s == nil {
		return fmt.Errorf("oauth: token store is not configured")
	}
	s.mu.Lock()
	delete(s.items, core.NormalizeTenantKey(key))
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) List(_ context.Context, providerName string) ([]Token, error) {
	if s == nil {
		return nil, fmt.Errorf("oauth: token store is not configured")
	}
	providerName = strings.TrimSpace(strings.ToLower(providerName))
	s.mu.RLock()
	out := make([]Token, 0, len(s.items))
	for key, token := range s.items {
		if providerName != "" && key.AdapterName != providerName {
			continue
		}
		out = append(out, cloneToken(token))
	}
	s.mu.RUnlock()
	return out, nil
}

func cloneToken(token Token) Token {
	cloned := token
	cloned.Scopes = append([]string(nil), token.Scopes...)
	if token.ExpiresAt != nil {
		expiresAt := *token.ExpiresAt
		cloned.ExpiresAt = &expiresAt
	}
	return cloned
}

var _ TokenStore = (*MemoryTokenStore)(nil)
