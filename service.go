// Package integrations is the top-level entry point: a Service that owns the
// adapter registry, credential store, OAuth manager, webhook emitter, dead
// letter queue, and idempotency store, wired from one Config.
package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-integrations/adapter"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/dlq"
	"github.com/goliatone/go-integrations/health"
	"github.com/goliatone/go-integrations/idempotency"
	"github.com/goliatone/go-integrations/oauth"
	"github.com/goliatone/go-integrations/transport"
	"github.com/goliatone/go-integrations/webhooks"
)

type Service struct {
	Now func() time.Time

	config      core.Config
	registry    *core.AdapterRegistry
	creds       core.CredentialStore
	client      *transport.Client
	oauth       *oauth.Manager
	webhooks    *webhooks.Emitter
	dlq         *dlq.Queue
	idempotency idempotency.RecordStore
	logger      core.Logger
	metrics     core.MetricsRecorder
}

type Option func(*Service)

func WithLogger(logger core.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

func WithCredentialStore(store core.CredentialStore) Option {
	return func(s *Service) {
		if store != nil {
			s.creds = store
		}
	}
}

func WithTransport(client *transport.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.client = client
		}
	}
}

func WithOAuthManager(manager *oauth.Manager) Option {
	return func(s *Service) {
		if manager != nil {
			s.oauth = manager
		}
	}
}

func WithWebhookEmitter(emitter *webhooks.Emitter) Option {
	return func(s *Service) {
		if emitter != nil {
			s.webhooks = emitter
		}
	}
}

func WithDeadLetterQueue(queue *dlq.Queue) Option {
	return func(s *Service) {
		if queue != nil {
			s.dlq = queue
		}
	}
}

func WithIdempotencyStore(store idempotency.RecordStore) Option {
	return func(s *Service) {
		if store != nil {
			s.idempotency = store
		}
	}
}

func NewService(cfg core.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	_, logger := glog.Resolve(cfg.ServiceName, nil, nil)

	service := &Service{
		Now:      func() time.Time { return time.Now().UTC() },
		config:   cfg,
		registry: core.NewAdapterRegistry(),
		creds:    core.NewMemoryCredentialStore(),
		client:   transport.NewClient(nil),
		logger:   glog.Ensure(logger),
		metrics:  core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(service)
	}

	if service.oauth == nil {
		oauthOpts := []oauth.Option{
			oauth.WithTransport(service.client),
			oauth.WithLogger(service.logger),
		}
		if ttl := secondsToDuration(cfg.OAuth.StateTTLSeconds); ttl > 0 {
			oauthOpts = append(oauthOpts, oauth.WithStateTTL(ttl))
		}
		if margin := secondsToDuration(cfg.OAuth.RefreshMarginSeconds); margin > 0 {
			oauthOpts = append(oauthOpts, oauth.WithRefreshMargin(margin))
		}
		service.oauth = oauth.NewManager(oauthOpts...)
	}
	if service.webhooks == nil {
		service.webhooks = webhooks.NewEmitter(
			webhooks.WithTransport(service.client),
			webhooks.WithLogger(service.logger),
			webhooks.WithMetricsRecorder(service.metrics),
			webhooks.WithRetry(cfg.Webhooks.MaxRetries, secondsToDuration(cfg.Webhooks.BackoffBaseSeconds)),
		)
		if timeout := secondsToDuration(cfg.Webhooks.TimeoutSeconds); timeout > 0 {
			service.webhooks.Timeout = timeout
		}
	}
	if service.dlq == nil {
		service.dlq = dlq.NewQueue(dlq.WithLogger(service.logger))
	}
	if service.idempotency == nil {
		store := idempotency.NewStore()
		if ttl := secondsToDuration(cfg.Idempotency.DefaultTTLSeconds); ttl > 0 {
			store.DefaultTTL = ttl
		}
		service.idempotency = store
	}

	return service, nil
}

// Setup is NewService plus config validation sugar for callers that build the
// config elsewhere.
func Setup(cfg core.Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func (s *Service) Config() core.Config {
	if s == nil {
		return core.Config{}
	}
	return s.config
}

func (s *Service) OAuth() *oauth.Manager {
	if s == nil {
		return nil
	}
	return s.oauth
}

func (s *Service) Webhooks() *webhooks.Emitter {
	if s == nil {
		return nil
	}
	return s.webhooks
}

func (s *Service) DeadLetters() *dlq.Queue {
	if s == nil {
		return nil
	}
	return s.dlq
}

func (s *Service) Idempotency() idempotency.RecordStore {
	if s == nil {
		return nil
	}
	return s.idempotency
}

// RegisterAdapter builds an adapter from the config, filling unset retry,
// rate-limit, and breaker settings from the service defaults, and adds it to
// the registry.
func (s *Service) RegisterAdapter(cfg core.AdapterConfig, opts ...adapter.Option) (*adapter.Core, error) {
	if s == nil {
		return nil, fmt.Errorf("integrations: service is nil")
	}
	cfg = s.applyAdapterDefaults(cfg)

	baseOpts := []adapter.Option{
		adapter.WithCredentialStore(s.creds),
		adapter.WithTransport(s.client),
		adapter.WithTokenSource(s.oauth),
		adapter.WithLogger(s.logger),
		adapter.WithMetricsRecorder(s.metrics),
	}
	built, err := adapter.New(cfg, append(baseOpts, opts...)...)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Register(built); err != nil {
		return nil, err
	}
	return built, nil
}

func (s *Service) Adapter(name string) (*adapter.Core, error) {
	if s == nil {
		return nil, fmt.Errorf("integrations: service is nil")
	}
	registered, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("integrations: adapter not registered: %s", name)
	}
	built, ok := registered.(*adapter.Core)
	if !ok {
		return nil, fmt.Errorf("integrations: adapter %s is not a pipeline adapter", name)
	}
	return built, nil
}

func (s *Service) AdapterNames() []string {
	if s == nil {
		return nil
	}
	adapters := s.registry.List()
	names := make([]string, 0, len(adapters))
	for _, registered := range adapters {
		names = append(names, registered.Name())
	}
	return names
}

// Request routes through the named adapter's pipeline. Requests that exhaust
// their retries are captured on the dead letter queue before the 502 envelope
// is returned.
func (s *Service) Request(ctx context.Context, adapterName string, tenantID string, req core.AdapterRequest) (core.AdapterResponse, error) {
	if s == nil {
		return core.AdapterResponse{}, fmt.Errorf("integrations: service is nil")
	}
	registered, ok := s.registry.Get(adapterName)
	if !ok {
		return core.AdapterResponse{}, fmt.Errorf("integrations: adapter not registered: %s", adapterName)
	}

	res, err := registered.Request(ctx, tenantID, req)
	if err != nil {
		return res, err
	}
	if res.StatusCode == http.StatusBadGateway && res.Error != "" {
		s.deadLetter(ctx, registered.Name(), tenantID, req, res.Error)
	}
	return res, nil
}

// RequestIdempotent wraps Request with an idempotency reservation derived
// from the operation name and request shape. Replays return the stored
// response without touching the upstream.
func (s *Service) RequestIdempotent(ctx context.Context, adapterName string, tenantID string, operation string, req core.AdapterRequest) (core.AdapterResponse, error) {
	if s == nil {
		return core.AdapterResponse{}, fmt.Errorf("integrations: service is nil")
	}
	key, err := idempotency.GenerateKey(operation, map[string]any{
		"adapter": adapterName,
		"tenant":  tenantID,
		"method":  req.Method,
		"path":    req.Path,
		"query":   req.Query,
		"body":    req.Body,
	})
	if err != nil {
		return core.AdapterResponse{}, err
	}

	reserved, existing, err := s.idempotency.Reserve(ctx, key, tenantID, operation, 0)
	if err != nil {
		return core.AdapterResponse{}, err
	}
	if !reserved {
		if existing.Status == idempotency.StatusCompleted {
			if res, ok := replayResponse(existing.Result); ok {
				return res, nil
			}
		}
		return core.AdapterResponse{}, fmt.Errorf("integrations: operation %s is already in progress", operation)
	}

	res, err := s.Request(ctx, adapterName, tenantID, req)
	if err != nil || !res.OK() {
		if failErr := s.idempotency.Fail(ctx, key); failErr != nil {
			core.LogError(ctx, s.logger, "release idempotency reservation failed", map[string]any{
				"key":   key,
				"error": failErr.Error(),
			})
		}
		return res, err
	}
	if completeErr := s.idempotency.Complete(ctx, key, res); completeErr != nil {
		core.LogError(ctx, s.logger, "store idempotent result failed", map[string]any{
			"key":   key,
			"error": completeErr.Error(),
		})
	}
	return res, nil
}

// ReplayDeadLetter claims a dead letter and re-executes its captured request.
// Success resolves the letter; failure releases it back to pending so a later
// pass can claim it again while the retry budget lasts.
func (s *Service) ReplayDeadLetter(ctx context.Context, id string) (core.AdapterResponse, error) {
	if s == nil {
		return core.AdapterResponse{}, fmt.Errorf("integrations: service is nil")
	}
	letter, err := s.dlq.MarkRetrying(ctx, id)
	if err != nil {
		return core.AdapterResponse{}, err
	}

	req := requestFromPayload(letter.Payload)
	res, err := s.Request(ctx, letter.AdapterName, letter.TenantID, req)
	if err != nil {
		s.releaseDeadLetter(ctx, id, "replay failed: "+err.Error())
		return res, err
	}
	if res.OK() {
		if _, resolveErr := s.dlq.MarkResolved(ctx, id, "replay"); resolveErr != nil {
			return res, resolveErr
		}
		return res, nil
	}
	s.releaseDeadLetter(ctx, id, "replay failed: status "+fmt.Sprint(res.StatusCode))
	return res, nil
}

func (s *Service) releaseDeadLetter(ctx context.Context, id string, failure string) {
	if _, err := s.dlq.MarkFailed(ctx, id, failure); err != nil {
		core.LogError(ctx, s.logger, "dead letter release failed", map[string]any{
			"letter_id": id,
			"error":     err.Error(),
		})
	}
}

func (s *Service) SetCredentials(ctx context.Context, creds core.AuthCredentials) error {
	if s == nil {
		return fmt.Errorf("integrations: service is nil")
	}
	if !creds.AuthType.Valid() {
		return fmt.Errorf("integrations: invalid auth type %q", creds.AuthType)
	}
	return s.creds.Set(ctx, creds)
}

func (s *Service) DeleteCredentials(ctx context.Context, key core.TenantKey) error {
	if s == nil {
		return fmt.Errorf("integrations: service is nil")
	}
	return s.creds.Delete(ctx, key)
}

// Health reports the tracker snapshot for one adapter.
func (s *Service) Health(adapterName string) (health.Snapshot, error) {
	if s == nil {
		return health.Snapshot{}, fmt.Errorf("integrations: service is nil")
	}
	built, err := s.Adapter(adapterName)
	if err != nil {
		return health.Snapshot{}, err
	}
	return built.Health(), nil
}

// HealthAll reports snapshots for every registered adapter keyed by name.
func (s *Service) HealthAll() map[string]health.Snapshot {
	if s == nil {
		return nil
	}
	out := map[string]health.Snapshot{}
	for _, registered := range s.registry.List() {
		built, ok := registered.(*adapter.Core)
		if !ok {
			continue
		}
		out[built.Name()] = built.Health()
	}
	return out
}

// EmitEvent fans the event out to the tenant's webhook registrations.
func (s *Service) EmitEvent(ctx context.Context, tenantID string, event string, payload any) ([]webhooks.Delivery, error) {
	if s == nil {
		return nil, fmt.Errorf("integrations: service is nil")
	}
	return s.webhooks.Emit(ctx, tenantID, event, payload)
}

func (s *Service) RegisterWebhook(ctx context.Context, tenantID string, endpoint string, secret string, events []string, opts ...webhooks.RegisterOption) (webhooks.Registration, error) {
	if s == nil {
		return webhooks.Registration{}, fmt.Errorf("integrations: service is nil")
	}
	return s.webhooks.Register(ctx, tenantID, endpoint, secret, events, opts...)
}

func (s *Service) UnregisterWebhook(ctx context.Context, tenantID string, id string) error {
	if s == nil {
		return fmt.Errorf("integrations: service is nil")
	}
	return s.webhooks.Unregister(ctx, tenantID, id)
}

// RevokeToken revokes the tenant's OAuth token at the provider and drops it
// locally.
func (s *Service) RevokeToken(ctx context.Context, providerName string, tenantID string) error {
	if s == nil {
		return fmt.Errorf("integrations: service is nil")
	}
	return s.oauth.Revoke(ctx, providerName, tenantID)
}

func (s *Service) DiscardDeadLetter(ctx context.Context, id string, reason string) (dlq.DeadLetter, error) {
	if s == nil {
		return dlq.DeadLetter{}, fmt.Errorf("integrations: service is nil")
	}
	return s.dlq.MarkDiscarded(ctx, id, reason)
}

func (s *Service) deadLetter(ctx context.Context, adapterName string, tenantID string, req core.AdapterRequest, errText string) {
	_, err := s.dlq.Enqueue(ctx, dlq.DeadLetter{
		TenantID:    tenantID,
		AdapterName: adapterName,
		Operation:   req.Method + " " + req.Path,
		Payload:     payloadFromRequest(req),
		Error:       errText,
	})
	if err != nil {
		core.LogError(ctx, s.logger, "dead letter enqueue failed", map[string]any{
			"adapter":   adapterName,
			"tenant_id": tenantID,
			"error":     err.Error(),
		})
	}
}

func (s *Service) applyAdapterDefaults(cfg core.AdapterConfig) core.AdapterConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = s.config.Adapter.MaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = secondsToDuration(s.config.Adapter.BackoffBaseSeconds)
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = secondsToDuration(s.config.Adapter.BackoffMaxSeconds)
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = s.config.RateLimit.MaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = secondsToDuration(s.config.RateLimit.WindowSeconds)
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = s.config.Breaker.FailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = secondsToDuration(s.config.Breaker.RecoveryTimeoutSeconds)
	}
	return cfg
}

func payloadFromRequest(req core.AdapterRequest) map[string]any {
	payload := map[string]any{
		"method": req.Method,
		"path":   req.Path,
	}
	if len(req.Query) > 0 {
		payload["query"] = req.Query
	}
	if req.Body != nil {
		payload["body"] = req.Body
	}
	if len(req.RawBody) > 0 {
		payload["raw_body"] = string(req.RawBody)
	}
	if len(req.Headers) > 0 {
		payload["headers"] = req.Headers
	}
	return payload
}

func requestFromPayload(payload map[string]any) core.AdapterRequest {
	req := core.AdapterRequest{}
	if method, ok := payload["method"].(string); ok {
		req.Method = method
	}
	if path, ok := payload["path"].(string); ok {
		req.Path = path
	}
	if query := stringMap(payload["query"]); len(query) > 0 {
		req.Query = query
	}
	if headers := stringMap(payload["headers"]); len(headers) > 0 {
		req.Headers = headers
	}
	if raw, ok := payload["raw_body"].(string); ok {
		req.RawBody = []byte(raw)
	}
	if body, ok := payload["body"]; ok {
		req.Body = body
	}
	return req
}

// stringMap recovers a string map from a captured payload value. Durable
// stores hand payloads back JSON-decoded, so map[string]any with string
// values counts too.
func stringMap(value any) map[string]string {
	switch typed := value.(type) {
	case map[string]string:
		return typed
	case map[string]any:
		out := make(map[string]string, len(typed))
		for key, item := range typed {
			text, ok := item.(string)
			if !ok {
				continue
			}
			out[key] = text
		}
		return out
	}
	return nil
}

// replayResponse recovers a stored response envelope. Durable stores hand
// results back JSON-decoded, so a map is re-marshalled into the struct.
func replayResponse(result any) (core.AdapterResponse, bool) {
	switch typed := result.(type) {
	case core.AdapterResponse:
		return typed, true
	case map[string]any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return core.AdapterResponse{}, false
		}
		var res core.AdapterResponse
		if err := json.Unmarshal(encoded, &res); err != nil {
			return core.AdapterResponse{}, false
		}
		return res, true
	}
	return core.AdapterResponse{}, false
}

func secondsToDuration(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
