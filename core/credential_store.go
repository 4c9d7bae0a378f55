package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryCredentialStore keeps credentials in process memory. Swap in the
// store/sql implementation for durable deployments.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	items map[TenantKey]AuthCredentials
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{items: map[TenantKey]AuthCredentials{}}
}

func (s *MemoryCredentialStore) Get(_ context.Context, key TenantKey) (AuthCredentials, error) {
	if s == nil {
		return AuthCredentials{}, fmt.Errorf("core: credential store is not configured")
	}
	s.mu.RLock()
	creds, ok := s.items[NormalizeTenantKey(key)]
	s.mu.RUnlock()
	if !ok {
		return AuthCredentials{}, ErrNotFound
	}
	return cloneCredentials(creds), nil
}

func (s *MemoryCredentialStore) Set(_ context.Context, creds AuthCredentials) error {
	if s == nil {
		return fmt.Errorf("core: credential store is not configured")
	}
	key := creds.Key()
	if key.TenantID == "" || key.AdapterName == "" {
		return fmt.Errorf("core: tenant id and adapter name are required")
	}
	if creds.AuthType == "" {
		creds.AuthType = AuthTypeNone
	}
	if !creds.AuthType.Valid() {
		return fmt.Errorf("core: invalid auth type %q", creds.AuthType)
	}
	s.mu.Lock()
	s.items[key] = cloneCredentials(creds)
	s.mu.Unlock()
	return nil
}

func (s *MemoryCredentialStore) Delete(_ context.Context, key TenantKey) error {
	if s == nil {
		return fmt.Errorf("core: credential store is not configured")
	}
	s.mu.Lock()
	delete(s.items, NormalizeTenantKey(key))
	s.mu.Unlock()
	return nil
}

func (s *MemoryCredentialStore) List(_ context.Context, adapterName string) ([]AuthCredentials, error) {
	if s == nil {
		return nil, fmt.Errorf("core: credential store is not configured")
	}
	adapterName = strings.TrimSpace(strings.ToLower(adapterName))
	s.mu.RLock()
	out := make([]AuthCredentials, 0, len(s.items))
	for key, creds := range s.items {
		if adapterName != "" && key.AdapterName != adapterName {
			continue
		}
		out = append(out, cloneCredentials(creds))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].AdapterName != out[j].AdapterName {
			return out[i].AdapterName < out[j].AdapterName
		}
		return out[i].TenantID < out[j].TenantID
	})
	return out, nil
}

func cloneCredentials(creds AuthCredentials) AuthCredentials {
	cloned := creds
	if creds.OAuthExpiresAt != nil {
		expiresAt := *creds.OAuthExpiresAt
		cloned.OAuthExpiresAt = &expiresAt
	}
	if creds.CustomHeaders != nil {
		headers := make(map[string]string, len(creds.CustomHeaders))
		for key, value := range creds.CustomHeaders {
			headers[key] = value
		}
		cloned.CustomHeaders = headers
	}
	return cloned
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)
