package core

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	out := map[string]any{}
	maps.Copy(out, l.Values)
	return out, nil
}

func NewStaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	return buildConfig(raw, defaults)
}

// buildConfig runs cfgx with defaults layered under raw and the Config
// validator applied.
func buildConfig(raw map[string]any, defaults Config) (Config, error) {
	return cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	return buildConfig(merged.Value, defaults)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if section := intSection(includeZero, map[string]int{
		"max_retries":          cfg.Adapter.MaxRetries,
		"backoff_base_seconds": cfg.Adapter.BackoffBaseSeconds,
		"backoff_max_seconds":  cfg.Adapter.BackoffMaxSeconds,
	}); len(section) > 0 {
		layer["adapter"] = section
	}
	if section := intSection(includeZero, map[string]int{
		"max_requests":   cfg.RateLimit.MaxRequests,
		"window_seconds": cfg.RateLimit.WindowSeconds,
	}); len(section) > 0 {
		layer["rate_limit"] = section
	}
	if section := intSection(includeZero, map[string]int{
		"failure_threshold":        cfg.Breaker.FailureThreshold,
		"recovery_timeout_seconds": cfg.Breaker.RecoveryTimeoutSeconds,
	}); len(section) > 0 {
		layer["breaker"] = section
	}
	if section := intSection(includeZero, map[string]int{
		"state_ttl_seconds":      cfg.OAuth.StateTTLSeconds,
		"refresh_margin_seconds": cfg.OAuth.RefreshMarginSeconds,
	}); len(section) > 0 {
		layer["oauth"] = section
	}
	if section := intSection(includeZero, map[string]int{
		"max_retries":          cfg.Webhooks.MaxRetries,
		"backoff_base_seconds": cfg.Webhooks.BackoffBaseSeconds,
		"timeout_seconds":      cfg.Webhooks.TimeoutSeconds,
	}); len(section) > 0 {
		layer["webhooks"] = section
	}
	if section := intSection(includeZero, map[string]int{
		"default_ttl_seconds": cfg.Idempotency.DefaultTTLSeconds,
	}); len(section) > 0 {
		layer["idempotency"] = section
	}
	return layer
}

func intSection(includeZero bool, values map[string]int) map[string]any {
	section := map[string]any{}
	for key, value := range values {
		if includeZero || value != 0 {
			section[key] = value
		}
	}
	return section
}

// LoadConfig resolves the effective configuration from defaults, an optional
// raw loader, and runtime overrides, in ascending precedence.
func LoadConfig(ctx context.Context, loader RawConfigLoader, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	provider := NewCfgxConfigProvider(loader)
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, MapError(err)
	}
	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		return Config{}, MapError(err)
	}
	return resolved, nil
}
