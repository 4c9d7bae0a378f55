package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-integrations/core"
)

const credentialCacheKeyPrefix = "go-integrations::credentials::v1"

// CachedCredentialStore fronts a credential store with a read-through cache.
// Writes invalidate the cached entry before hitting the base store.
type CachedCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
}

func NewCachedCredentialStore(base core.CredentialStore, cacheService repositorycache.CacheService) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{base: base, cache: cacheService}, nil
}

// CredentialCacheKey is the deterministic cache key contract for credential
// reads: go-integrations::credentials::v1::<tenant>::<adapter> with each
// segment URL-path escaped after key normalization.
func CredentialCacheKey(key core.TenantKey) (string, error) {
	key = core.NormalizeTenantKey(key)
	if key.TenantID == "" || key.AdapterName == "" {
		return "", fmt.Errorf("sqlstore: tenant id and adapter name are required")
	}
	segments := []string{url.PathEscape(key.TenantID), url.PathEscape(key.AdapterName)}
	return strings.Join(append([]string{credentialCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedCredentialStore) Get(ctx context.Context, key core.TenantKey) (core.AuthCredentials, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.AuthCredentials{}, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	key = core.NormalizeTenantKey(key)
	cacheKey, err := CredentialCacheKey(key)
	if err != nil {
		return core.AuthCredentials{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.AuthCredentials, error) {
		return s.base.Get(ctx, key)
	})
}

func (s *CachedCredentialStore) Set(ctx context.Context, creds core.AuthCredentials) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(creds.Key())
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return err
	}
	return s.base.Set(ctx, creds)
}

func (s *CachedCredentialStore) Delete(ctx context.Context, key core.TenantKey) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	cacheKey, err := CredentialCacheKey(key)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return err
	}
	return s.base.Delete(ctx, key)
}

// List always reads through to the base store; listings are not cached.
func (s *CachedCredentialStore) List(ctx context.Context, adapterName string) ([]core.AuthCredentials, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	return s.base.List(ctx, adapterName)
}
