package core

import (
	"strings"
	"time"
)

type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeOAuth2 AuthType = "oauth2"
	AuthTypeCustom AuthType = "custom"
)

func (t AuthType) Valid() bool {
	switch t {
	case AuthTypeNone, AuthTypeAPIKey, AuthTypeBasic, AuthTypeOAuth2, AuthTypeCustom:
		return true
	}
	return false
}

// TenantKey identifies the (tenant, adapter) partition most core state is
// scoped to.
type TenantKey struct {
	TenantID    string
	AdapterName string
}

func (k TenantKey) String() string {
	return k.TenantID + ":" + k.AdapterName
}

func NormalizeTenantKey(key TenantKey) TenantKey {
	return TenantKey{
		TenantID:    strings.TrimSpace(key.TenantID),
		AdapterName: strings.TrimSpace(strings.ToLower(key.AdapterName)),
	}
}

// AuthCredentials holds the tenant-scoped secrets for one adapter. One record
// per (tenant, adapter); Set replaces the record wholesale.
type AuthCredentials struct {
	TenantID     string
	AdapterName  string
	AuthType     AuthType
	APIKey       string
	APIKeyHeader string
	APIKeyPrefix string
	Username     string
	Password     string

	OAuthAccessToken  string
	OAuthRefreshToken string
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthExpiresAt    *time.Time

	CustomHeaders map[string]string
}

func (c AuthCredentials) Key() TenantKey {
	return NormalizeTenantKey(TenantKey{TenantID: c.TenantID, AdapterName: c.AdapterName})
}

// AdapterRequest is the standardized outbound request envelope. Body is JSON
// encoded when set; RawBody wins when both are present.
type AdapterRequest struct {
	Method  string
	Path    string
	Query   map[string]string
	Body    any
	RawBody []byte
	Headers map[string]string
	Timeout time.Duration
}

// AdapterResponse is the immutable result envelope. Ordinary transport and
// HTTP failures are encoded here, never raised as errors.
type AdapterResponse struct {
	StatusCode  int
	Data        any
	Headers     map[string]string
	Latency     time.Duration
	AdapterName string
	TenantID    string
	Error       string
	Retries     int
}

func (r AdapterResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// AdapterConfig parameterizes the shared request pipeline; an adapter is this
// config plus the executor, not a subclass.
type AdapterConfig struct {
	Name     string
	BaseURL  string
	AuthType AuthType

	// OAuthProvider names the registered oauth provider backing oauth2
	// adapters. Defaults to Name.
	OAuthProvider string

	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	FailureThreshold int
	RecoveryTimeout  time.Duration

	MaxRequests int
	Window      time.Duration
}

const (
	DefaultMaxRetries       = 3
	DefaultBackoffBase      = time.Second
	DefaultBackoffMax       = 15 * time.Second
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 30 * time.Second
	DefaultMaxRequests      = 100
	DefaultWindow           = time.Minute
)

func (c AdapterConfig) WithDefaults() AdapterConfig {
	out := c
	out.Name = strings.TrimSpace(strings.ToLower(c.Name))
	out.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if !out.AuthType.Valid() {
		out.AuthType = AuthTypeNone
	}
	out.OAuthProvider = strings.TrimSpace(strings.ToLower(c.OAuthProvider))
	if out.OAuthProvider == "" {
		out.OAuthProvider = out.Name
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = DefaultMaxRetries
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = DefaultBackoffBase
	}
	if out.BackoffMax <= 0 {
		out.BackoffMax = DefaultBackoffMax
	}
	if out.FailureThreshold <= 0 {
		out.FailureThreshold = DefaultFailureThreshold
	}
	if out.RecoveryTimeout <= 0 {
		out.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if out.MaxRequests <= 0 {
		out.MaxRequests = DefaultMaxRequests
	}
	if out.Window <= 0 {
		out.Window = DefaultWindow
	}
	return out
}
