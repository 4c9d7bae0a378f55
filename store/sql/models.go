package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:integration_credentials,alias:ic"`

	ID                string            `bun:"id,pk"`
	TenantID          string            `bun:"tenant_id,notnull"`
	AdapterName       string            `bun:"adapter_name,notnull"`
	AuthType          string            `bun:"auth_type,notnull"`
	APIKey            string            `bun:"api_key"`
	APIKeyHeader      string            `bun:"api_key_header"`
	APIKeyPrefix      string            `bun:"api_key_prefix"`
	Username          string            `bun:"username"`
	Password          string            `bun:"password"`
	OAuthAccessToken  string            `bun:"oauth_access_token"`
	OAuthRefreshToken string            `bun:"oauth_refresh_token"`
	OAuthTokenURL     string            `bun:"oauth_token_url"`
	OAuthClientID     string            `bun:"oauth_client_id"`
	OAuthClientSecret string            `bun:"oauth_client_secret"`
	OAuthExpiresAt    *time.Time        `bun:"oauth_expires_at,nullzero"`
	CustomHeaders     map[string]string `bun:"custom_headers,type:jsonb"`
	CreatedAt         time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *credentialRecord) primaryKey() string      { return r.ID }
func (r *credentialRecord) setPrimaryKey(id string) { r.ID = id }

type tokenRecord struct {
	bun.BaseModel `bun:"table:integration_oauth_tokens,alias:iot"`

	ID           string     `bun:"id,pk"`
	TenantID     string     `bun:"tenant_id,notnull"`
	ProviderName string     `bun:"provider_name,notnull"`
	AccessToken  string     `bun:"access_token,notnull"`
	RefreshToken string     `bun:"refresh_token"`
	TokenType    string     `bun:"token_type,notnull"`
	Scopes       []string   `bun:"scopes,type:jsonb"`
	IssuedAt     time.Time  `bun:"issued_at,nullzero,notnull"`
	ExpiresAt    *time.Time `bun:"expires_at,nullzero"`
	RefreshCount int        `bun:"refresh_count,notnull"`
	CreatedAt    time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *tokenRecord) primaryKey() string      { return r.ID }
func (r *tokenRecord) setPrimaryKey(id string) { r.ID = id }

type webhookRegistrationRecord struct {
	bun.BaseModel `bun:"table:integration_webhook_registrations,alias:iwr"`

	ID          string    `bun:"id,pk"`
	TenantID    string    `bun:"tenant_id,notnull"`
	URL         string    `bun:"url,notnull"`
	Secret      string    `bun:"secret"`
	Description string    `bun:"description"`
	Events      []string  `bun:"events,type:jsonb"`
	Active      bool      `bun:"active,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *webhookRegistrationRecord) primaryKey() string      { return r.ID }
func (r *webhookRegistrationRecord) setPrimaryKey(id string) { r.ID = id }

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:integration_webhook_deliveries,alias:iwd"`

	ID             string    `bun:"id,pk"`
	RegistrationID string    `bun:"registration_id,notnull"`
	TenantID       string    `bun:"tenant_id,notnull"`
	Event          string    `bun:"event,notnull"`
	URL            string    `bun:"url,notnull"`
	Status         string    `bun:"status,notnull"`
	StatusCode     int       `bun:"status_code"`
	Attempts       int       `bun:"attempts,notnull"`
	Error          string    `bun:"error"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	CompletedAt    time.Time `bun:"completed_at,nullzero"`
}

func (r *webhookDeliveryRecord) primaryKey() string      { return r.ID }
func (r *webhookDeliveryRecord) setPrimaryKey(id string) { r.ID = id }

type idempotencyRecord struct {
	bun.BaseModel `bun:"table:integration_idempotency_records,alias:iid"`

	Key         string     `bun:"key,pk"`
	TenantID    string     `bun:"tenant_id"`
	Operation   string     `bun:"operation"`
	Status      string     `bun:"status,notnull"`
	Result      []byte     `bun:"result"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	CompletedAt *time.Time `bun:"completed_at,nullzero"`
	ExpiresAt   time.Time  `bun:"expires_at,notnull"`
}

type deadLetterRecord struct {
	bun.BaseModel `bun:"table:integration_dead_letters,alias:idl"`

	ID          string         `bun:"id,pk"`
	TenantID    string         `bun:"tenant_id,notnull"`
	AdapterName string         `bun:"adapter_name"`
	Operation   string         `bun:"operation,notnull"`
	Payload     map[string]any `bun:"payload,type:jsonb"`
	Error       string         `bun:"error"`
	Status      string         `bun:"status,notnull"`
	RetryCount  int            `bun:"retry_count,notnull"`
	MaxRetries  int            `bun:"max_retries,notnull"`
	ResolvedBy  string         `bun:"resolved_by"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	ResolvedAt  *time.Time     `bun:"resolved_at,nullzero"`
}

func (r *deadLetterRecord) primaryKey() string      { return r.ID }
func (r *deadLetterRecord) setPrimaryKey(id string) { r.ID = id }
