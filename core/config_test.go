package core

import (
	"context"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to validate: %v", err)
	}

	cfg := DefaultConfig()
	cfg.ServiceName = "  "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing service name to fail")
	}

	cfg = DefaultConfig()
	cfg.RateLimit.MaxRequests = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative rate limit to fail")
	}

	cfg = DefaultConfig()
	cfg.Breaker.FailureThreshold = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative breaker threshold to fail")
	}
}

func TestLoadConfig_LayersInPrecedenceOrder(t *testing.T) {
	loader := NewStaticRawConfigLoader(map[string]any{
		"service_name": "billing-integrations",
		"adapter": map[string]any{
			"max_retries": 5,
		},
		"rate_limit": map[string]any{
			"max_requests": 50,
		},
	})

	runtime := Config{
		RateLimit: RateLimitConfig{MaxRequests: 25},
	}

	resolved, err := LoadConfig(context.Background(), loader, runtime)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if resolved.ServiceName != "billing-integrations" {
		t.Fatalf("expected loaded service name, got %q", resolved.ServiceName)
	}
	if resolved.Adapter.MaxRetries != 5 {
		t.Fatalf("expected loaded retry count, got %d", resolved.Adapter.MaxRetries)
	}
	if resolved.RateLimit.MaxRequests != 25 {
		t.Fatalf("expected runtime override to win, got %d", resolved.RateLimit.MaxRequests)
	}
	if resolved.Webhooks.MaxRetries != DefaultConfig().Webhooks.MaxRetries {
		t.Fatalf("expected untouched sections to keep defaults, got %d", resolved.Webhooks.MaxRetries)
	}
}

func TestLoadConfig_NilLoaderUsesDefaults(t *testing.T) {
	resolved, err := LoadConfig(context.Background(), nil, Config{})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if resolved.ServiceName != DefaultConfig().ServiceName {
		t.Fatalf("expected default service name, got %q", resolved.ServiceName)
	}
}
