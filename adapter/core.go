// Package adapter implements the per-vendor outbound request pipeline:
// rate limit -> circuit breaker -> auth -> retry with backoff -> health.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-integrations/breaker"
	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/health"
	"github.com/goliatone/go-integrations/ratelimit"
	"github.com/goliatone/go-integrations/transport"
)

// Core executes requests for one vendor adapter. It is adapter config plus a
// shared pipeline, not a base class; register instances on a
// core.AdapterRegistry.
type Core struct {
	Now func() time.Time

	config  core.AdapterConfig
	creds   core.CredentialStore
	limiter *ratelimit.SlidingWindow
	breaker *breaker.Breaker
	tracker *health.Tracker
	client  *transport.Client
	tokens  TokenSource
	logger  core.Logger
	metrics core.MetricsRecorder
}

func New(config core.AdapterConfig, opts ...Option) (*Core, error) {
	config = config.WithDefaults()
	if config.Name == "" {
		return nil, fmt.Errorf("adapter: name is required")
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("adapter: base url is required")
	}

	_, logger := glog.Resolve("integrations", nil, nil)
	c := &Core{
		Now:     func() time.Time { return time.Now().UTC() },
		config:  config,
		creds:   core.NewMemoryCredentialStore(),
		limiter: ratelimit.NewSlidingWindow(config.MaxRequests, config.Window),
		breaker: breaker.New(config.Name, config.FailureThreshold, config.RecoveryTimeout),
		tracker: health.NewTracker(config.Name),
		client:  transport.NewClient(nil),
		logger:  glog.Ensure(logger),
		metrics: core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

func (c *Core) Name() string {
	if c == nil {
		return ""
	}
	return c.config.Name
}

func (c *Core) Config() core.AdapterConfig {
	if c == nil {
		return core.AdapterConfig{}
	}
	return c.config
}

// SetCredentials replaces the tenant's credential record wholesale.
func (c *Core) SetCredentials(ctx context.Context, creds core.AuthCredentials) error {
	if c == nil {
		return fmt.Errorf("adapter: core is nil")
	}
	creds.AdapterName = c.config.Name
	return c.creds.Set(ctx, creds)
}

func (c *Core) Credentials(ctx context.Context, tenantID string) (core.AuthCredentials, error) {
	if c == nil {
		return core.AuthCredentials{}, fmt.Errorf("adapter: core is nil")
	}
	return c.creds.Get(ctx, core.TenantKey{TenantID: tenantID, AdapterName: c.config.Name})
}

func (c *Core) Health() health.Snapshot {
	if c == nil {
		return health.Snapshot{}
	}
	c.tracker.SetCircuitState(string(c.breaker.State()))
	return c.tracker.Snapshot()
}

// Remaining reports rate-limit headroom for the tenant without consuming a
// slot.
func (c *Core) Remaining(tenantID string) int {
	if c == nil {
		return 0
	}
	return c.limiter.Remaining(tenantID, c.config.Name)
}

// Request runs the full pipeline. Ordinary transport and HTTP failures are
// encoded in the response envelope; the returned error is reserved for
// cancellation and configuration problems.
func (c *Core) Request(ctx context.Context, tenantID string, req core.AdapterRequest) (core.AdapterResponse, error) {
	if c == nil {
		return core.AdapterResponse{}, fmt.Errorf("adapter: core is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return core.AdapterResponse{}, fmt.Errorf("adapter: tenant id is required")
	}

	if !c.limiter.Check(tenantID, c.config.Name) {
		c.metrics.IncCounter(ctx, "integrations.adapter.rate_limited.total", 1, c.tags(tenantID))
		return c.envelope(tenantID, http.StatusTooManyRequests, 0, "rate limit exceeded"), nil
	}

	if !c.breaker.Allow() {
		c.tracker.SetCircuitState(string(c.breaker.State()))
		c.metrics.IncCounter(ctx, "integrations.adapter.circuit_open.total", 1, c.tags(tenantID))
		return c.envelope(
			tenantID,
			http.StatusServiceUnavailable,
			0,
			fmt.Sprintf("circuit breaker open for %s", c.config.Name),
		), nil
	}

	headers, err := c.authHeaders(ctx, tenantID)
	if err != nil {
		return core.AdapterResponse{}, err
	}
	for key, value := range req.Headers {
		headers[key] = value
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return core.AdapterResponse{}, err
	}
	if contentType != "" {
		if transport.HeaderValue(headers, "Content-Type") == "" {
			headers["Content-Type"] = contentType
		}
	}

	requestURL := c.config.BaseURL + "/" + strings.TrimLeft(req.Path, "/")

	var lastErr string
	var lastLatency time.Duration
	retries := 0
	refreshed := false

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		res, doErr := c.client.Do(ctx, transport.Request{
			Method:  req.Method,
			URL:     requestURL,
			Query:   req.Query,
			Headers: headers,
			Body:    body,
			Timeout: req.Timeout,
		})
		if ctx.Err() != nil {
			// a cancelled attempt counts as neither success nor failure
			return core.AdapterResponse{}, ctx.Err()
		}
		if doErr == nil {
			lastLatency = res.Latency

			if res.StatusCode == http.StatusUnauthorized && !refreshed && c.oauthCredentials(ctx, tenantID) {
				refreshed = true
				if c.refreshAuth(ctx, tenantID, headers) {
					// the refresh retry does not consume a retry slot
					attempt--
					continue
				}
				c.tracker.RecordAuthFailure()
				c.finish(ctx, tenantID, res.Latency, true, "")
				return c.responseFrom(tenantID, res, retries), nil
			}

			if res.StatusCode < http.StatusInternalServerError {
				c.finish(ctx, tenantID, res.Latency, true, "")
				return c.responseFrom(tenantID, res, retries), nil
			}

			lastErr = fmt.Sprintf("HTTP %d: %s", res.StatusCode, truncate(string(res.Body), 200))
			retries++
		} else {
			lastErr = doErr.Error()
			retries++
		}

		if attempt < c.config.MaxRetries {
			if sleepErr := sleepBackoff(ctx, backoffDelay(c.config.BackoffBase, c.config.BackoffMax, attempt)); sleepErr != nil {
				return core.AdapterResponse{}, sleepErr
			}
		}
	}

	c.finish(ctx, tenantID, lastLatency, false, lastErr)
	response := c.envelope(tenantID, http.StatusBadGateway, lastLatency, lastErr)
	response.Retries = retries
	return response, nil
}

func (c *Core) finish(ctx context.Context, tenantID string, latency time.Duration, success bool, errText string) {
	c.tracker.Record(latency, success, errText)
	if success {
		c.breaker.RecordSuccess()
	} else {
		c.breaker.RecordFailure()
	}
	c.tracker.SetCircuitState(string(c.breaker.State()))

	status := "success"
	if !success {
		status = "failure"
	}
	tags := c.tags(tenantID)
	tags["status"] = status
	c.metrics.IncCounter(ctx, "integrations.adapter.request.total", 1, tags)
	c.metrics.ObserveHistogram(ctx, "integrations.adapter.request.duration_ms", float64(latency.Milliseconds()), tags)

	fields := map[string]any{
		"adapter":     c.config.Name,
		"tenant_id":   tenantID,
		"duration_ms": latency.Milliseconds(),
	}
	if success {
		core.LogInfo(ctx, c.logger, "adapter request completed", fields)
		return
	}
	fields["error"] = errText
	core.LogError(ctx, c.logger, "adapter request failed", fields)
}

func (c *Core) responseFrom(tenantID string, res transport.Response, retries int) core.AdapterResponse {
	return core.AdapterResponse{
		StatusCode:  res.StatusCode,
		Data:        transport.DecodeBody(res.Headers, res.Body),
		Headers:     res.Headers,
		Latency:     res.Latency,
		AdapterName: c.config.Name,
		TenantID:    tenantID,
		Retries:     retries,
	}
}

func (c *Core) envelope(tenantID string, status int, latency time.Duration, errText string) core.AdapterResponse {
	return core.AdapterResponse{
		StatusCode:  status,
		Latency:     latency,
		AdapterName: c.config.Name,
		TenantID:    tenantID,
		Error:       errText,
	}
}

func (c *Core) tags(tenantID string) map[string]string {
	return map[string]string{
		"adapter":   c.config.Name,
		"tenant_id": tenantID,
	}
}

func encodeBody(req core.AdapterRequest) ([]byte, string, error) {
	if len(req.RawBody) > 0 {
		return req.RawBody, "", nil
	}
	if req.Body == nil {
		return nil, "", nil
	}
	encoded, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", fmt.Errorf("adapter: encode request body: %w", err)
	}
	return encoded, "application/json", nil
}

func backoffDelay(base time.Duration, maximum time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

func sleepBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

var _ core.Adapter = (*Core)(nil)
