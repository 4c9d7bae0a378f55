package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
)

const (
	headerEvent     = "X-AgentOS-Event"
	headerDelivery  = "X-AgentOS-Delivery"
	headerSignature = "X-AgentOS-Signature"

	defaultMaxRetries      = 3
	defaultBackoffBase     = time.Second
	defaultDeliveryTimeout = 10 * time.Second
)

// Emitter fans events out to every matching registration concurrently. Each
// registration gets its own attempt sequence and delivery record; one slow or
// failing endpoint never blocks the others.
type Emitter struct {
	Now func() time.Time

	MaxRetries  int
	BackoffBase time.Duration
	Timeout     time.Duration

	registrations RegistrationStore
	deliveries    DeliveryStore
	client        *transport.Client
	logger        core.Logger
	metrics       core.MetricsRecorder
}

type Option func(*Emitter)

func WithRegistrationStore(store RegistrationStore) Option {
	return func(e *Emitter) {
		if store != nil {
			e.registrations = store
		}
	}
}

func WithDeliveryStore(store DeliveryStore) Option {
	return func(e *Emitter) {
		if store != nil {
			e.deliveries = store
		}
	}
}

func WithTransport(client *transport.Client) Option {
	return func(e *Emitter) {
		if client != nil {
			e.client = client
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(e *Emitter) {
		if recorder != nil {
			e.metrics = recorder
		}
	}
}

func WithRetry(maxRetries int, backoffBase time.Duration) Option {
	return func(e *Emitter) {
		if maxRetries > 0 {
			e.MaxRetries = maxRetries
		}
		if backoffBase > 0 {
			e.BackoffBase = backoffBase
		}
	}
}

func NewEmitter(opts ...Option) *Emitter {
	_, logger := glog.Resolve("integrations", nil, nil)
	emitter := &Emitter{
		Now:           func() time.Time { return time.Now().UTC() },
		MaxRetries:    defaultMaxRetries,
		BackoffBase:   defaultBackoffBase,
		Timeout:       defaultDeliveryTimeout,
		registrations: NewMemoryRegistrationStore(),
		deliveries:    NewMemoryDeliveryStore(),
		client:        transport.NewClient(nil),
		logger:        glog.Ensure(logger),
		metrics:       core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(emitter)
	}
	return emitter
}

// RegisterOption customizes a registration beyond the required fields.
type RegisterOption func(*Registration)

// WithDescription labels the registration for operators.
func WithDescription(description string) RegisterOption {
	return func(r *Registration) {
		r.Description = strings.TrimSpace(description)
	}
}

// Register subscribes an endpoint. An empty events list subscribes to every
// event; an empty secret registers an unsigned endpoint.
func (e *Emitter) Register(ctx context.Context, tenantID string, endpoint string, secret string, events []string, opts ...RegisterOption) (Registration, error) {
	if e == nil {
		return Registration{}, fmt.Errorf("webhooks: emitter is nil")
	}
	tenantID = strings.TrimSpace(tenantID)
	endpoint = strings.TrimSpace(endpoint)
	if tenantID == "" {
		return Registration{}, fmt.Errorf("webhooks: tenant id is required")
	}
	if endpoint == "" {
		return Registration{}, fmt.Errorf("webhooks: endpoint url is required")
	}

	registration := Registration{
		ID:        newRegistrationID(),
		TenantID:  tenantID,
		URL:       endpoint,
		Secret:    strings.TrimSpace(secret),
		Events:    normalizeEvents(events),
		Active:    true,
		CreatedAt: e.Now(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&registration)
		}
	}
	if err := e.registrations.Save(ctx, registration); err != nil {
		return Registration{}, err
	}
	return registration, nil
}

func (e *Emitter) Unregister(ctx context.Context, tenantID string, id string) error {
	if e == nil {
		return fmt.Errorf("webhooks: emitter is nil")
	}
	return e.registrations.Delete(ctx, tenantID, id)
}

// SetActive pauses or resumes a registration without losing it.
func (e *Emitter) SetActive(ctx context.Context, tenantID string, id string, active bool) (Registration, error) {
	if e == nil {
		return Registration{}, fmt.Errorf("webhooks: emitter is nil")
	}
	registration, err := e.registrations.Get(ctx, tenantID, id)
	if err != nil {
		return Registration{}, err
	}
	registration.Active = active
	if err := e.registrations.Save(ctx, registration); err != nil {
		return Registration{}, err
	}
	return registration, nil
}

func (e *Emitter) Registrations(ctx context.Context, tenantID string) ([]Registration, error) {
	if e == nil {
		return nil, fmt.Errorf("webhooks: emitter is nil")
	}
	return e.registrations.ListByTenant(ctx, tenantID)
}

func (e *Emitter) Deliveries(ctx context.Context, tenantID string, event string, limit int) ([]Delivery, error) {
	if e == nil {
		return nil, fmt.Errorf("webhooks: emitter is nil")
	}
	return e.deliveries.ListByTenant(ctx, tenantID, event, limit)
}

// Emit delivers the event to every active matching registration and returns
// one delivery record per endpoint. Endpoint failures are encoded in the
// records, not the error.
func (e *Emitter) Emit(ctx context.Context, tenantID string, event string, payload any) ([]Delivery, error) {
	if e == nil {
		return nil, fmt.Errorf("webhooks: emitter is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return nil, fmt.Errorf("webhooks: event name is required")
	}

	// map keys serialize sorted, so equal payloads sign identically
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("webhooks: encode payload: %w", err)
	}

	registrations, err := e.registrations.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	targets := registrations[:0:0]
	for _, registration := range registrations {
		if registration.WantsEvent(event) {
			targets = append(targets, registration)
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	results := make([]Delivery, len(targets))
	var wg sync.WaitGroup
	for i, registration := range targets {
		wg.Add(1)
		go func(i int, registration Registration) {
			defer wg.Done()
			results[i] = e.deliver(ctx, registration, event, body)
		}(i, registration)
	}
	wg.Wait()

	for _, delivery := range results {
		if err := e.deliveries.Save(ctx, delivery); err != nil {
			core.LogError(ctx, e.logger, "persist webhook delivery failed", map[string]any{
				"tenant_id":   tenantID,
				"delivery_id": delivery.ID,
				"error":       err.Error(),
			})
		}
	}
	return results, nil
}

func (e *Emitter) deliver(ctx context.Context, registration Registration, event string, body []byte) Delivery {
	delivery := Delivery{
		ID:             uuid.NewString(),
		RegistrationID: registration.ID,
		TenantID:       registration.TenantID,
		Event:          event,
		URL:            registration.URL,
		Status:         DeliveryStatusFailed,
		CreatedAt:      e.Now(),
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		headerEvent:    event,
		headerDelivery: delivery.ID,
	}
	// unsigned endpoints get no signature header at all
	if registration.Secret != "" {
		headers[headerSignature] = Sign(registration.Secret, body)
	}

	for attempt := 1; attempt <= e.maxRetries(); attempt++ {
		delivery.Attempts = attempt
		res, err := e.client.Do(ctx, transport.Request{
			Method:  http.MethodPost,
			URL:     registration.URL,
			Headers: headers,
			Body:    body,
			Timeout: e.Timeout,
		})
		if err == nil && res.StatusCode >= http.StatusOK && res.StatusCode < http.StatusMultipleChoices {
			delivery.Status = DeliveryStatusSuccess
			delivery.StatusCode = res.StatusCode
			delivery.Error = ""
			break
		}
		if err != nil {
			delivery.Error = err.Error()
		} else {
			delivery.StatusCode = res.StatusCode
			delivery.Error = fmt.Sprintf("endpoint returned HTTP %d", res.StatusCode)
		}
		if ctx.Err() != nil {
			delivery.Error = ctx.Err().Error()
			break
		}
		if attempt < e.maxRetries() {
			e.sleep(ctx, e.backoffDelay(attempt))
		}
	}

	delivery.CompletedAt = e.Now()

	tags := map[string]string{
		"tenant_id": registration.TenantID,
		"event":     event,
		"status":    delivery.Status,
	}
	e.metrics.IncCounter(ctx, "integrations.webhooks.delivery.total", 1, tags)
	if delivery.Status != DeliveryStatusSuccess {
		core.LogError(ctx, e.logger, "webhook delivery failed", map[string]any{
			"tenant_id":   registration.TenantID,
			"delivery_id": delivery.ID,
			"event":       event,
			"url":         registration.URL,
			"attempts":    delivery.Attempts,
			"error":       delivery.Error,
		})
	}
	return delivery
}

func (e *Emitter) backoffDelay(attempt int) time.Duration {
	base := e.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func (e *Emitter) sleep(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (e *Emitter) maxRetries() int {
	if e.MaxRetries > 0 {
		return e.MaxRetries
	}
	return defaultMaxRetries
}
