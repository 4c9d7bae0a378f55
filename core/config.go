package core

import (
	"fmt"
	"strings"
)

type AdapterDefaultsConfig struct {
	MaxRetries         int `koanf:"max_retries" mapstructure:"max_retries"`
	BackoffBaseSeconds int `koanf:"backoff_base_seconds" mapstructure:"backoff_base_seconds"`
	BackoffMaxSeconds  int `koanf:"backoff_max_seconds" mapstructure:"backoff_max_seconds"`
}

type RateLimitConfig struct {
	MaxRequests   int `koanf:"max_requests" mapstructure:"max_requests"`
	WindowSeconds int `koanf:"window_seconds" mapstructure:"window_seconds"`
}

type BreakerConfig struct {
	FailureThreshold       int `koanf:"failure_threshold" mapstructure:"failure_threshold"`
	RecoveryTimeoutSeconds int `koanf:"recovery_timeout_seconds" mapstructure:"recovery_timeout_seconds"`
}

type OAuthConfigSection struct {
	StateTTLSeconds      int `koanf:"state_ttl_seconds" mapstructure:"state_ttl_seconds"`
	RefreshMarginSeconds int `koanf:"refresh_margin_seconds" mapstructure:"refresh_margin_seconds"`
}

type WebhooksConfig struct {
	MaxRetries         int `koanf:"max_retries" mapstructure:"max_retries"`
	BackoffBaseSeconds int `koanf:"backoff_base_seconds" mapstructure:"backoff_base_seconds"`
	TimeoutSeconds     int `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
}

type IdempotencyConfig struct {
	DefaultTTLSeconds int `koanf:"default_ttl_seconds" mapstructure:"default_ttl_seconds"`
}

type Config struct {
	ServiceName string                `koanf:"service_name" mapstructure:"service_name"`
	Adapter     AdapterDefaultsConfig `koanf:"adapter" mapstructure:"adapter"`
	RateLimit   RateLimitConfig       `koanf:"rate_limit" mapstructure:"rate_limit"`
	Breaker     BreakerConfig         `koanf:"breaker" mapstructure:"breaker"`
	OAuth       OAuthConfigSection    `koanf:"oauth" mapstructure:"oauth"`
	Webhooks    WebhooksConfig        `koanf:"webhooks" mapstructure:"webhooks"`
	Idempotency IdempotencyConfig     `koanf:"idempotency" mapstructure:"idempotency"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "integrations",
		Adapter: AdapterDefaultsConfig{
			MaxRetries:         DefaultMaxRetries,
			BackoffBaseSeconds: 1,
			BackoffMaxSeconds:  15,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   DefaultMaxRequests,
			WindowSeconds: 60,
		},
		Breaker: BreakerConfig{
			FailureThreshold:       DefaultFailureThreshold,
			RecoveryTimeoutSeconds: 30,
		},
		OAuth: OAuthConfigSection{
			StateTTLSeconds:      15 * 60,
			RefreshMarginSeconds: 60,
		},
		Webhooks: WebhooksConfig{
			MaxRetries:         3,
			BackoffBaseSeconds: 1,
			TimeoutSeconds:     10,
		},
		Idempotency: IdempotencyConfig{
			DefaultTTLSeconds: 3600,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("core: rate_limit.max_requests must not be negative")
	}
	if c.Breaker.FailureThreshold < 0 {
		return fmt.Errorf("core: breaker.failure_threshold must not be negative")
	}
	return nil
}
