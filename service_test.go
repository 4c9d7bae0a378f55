package integrations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/dlq"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Adapter.BackoffBaseSeconds = 0
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func registerTestAdapter(t *testing.T, service *Service, name string, baseURL string) {
	t.Helper()
	if _, err := service.RegisterAdapter(core.AdapterConfig{
		Name:        name,
		BaseURL:     baseURL,
		AuthType:    core.AuthTypeAPIKey,
		BackoffBase: time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
	}); err != nil {
		t.Fatalf("register adapter: %v", err)
	}
	if err := service.SetCredentials(context.Background(), core.AuthCredentials{
		TenantID:    "tenant-1",
		AdapterName: name,
		AuthType:    core.AuthTypeAPIKey,
		APIKey:      "sk_test_1",
	}); err != nil {
		t.Fatalf("set credentials: %v", err)
	}
}

func TestRegisterAdapter_FillsDefaultsFromConfig(t *testing.T) {
	service := newTestService(t)

	built, err := service.RegisterAdapter(core.AdapterConfig{
		Name:     "stripe",
		BaseURL:  "https://api.stripe.example",
		AuthType: core.AuthTypeAPIKey,
	})
	if err != nil {
		t.Fatalf("register adapter: %v", err)
	}

	cfg := built.Config()
	if cfg.MaxRetries != service.Config().Adapter.MaxRetries {
		t.Fatalf("expected retry default %d, got %d", service.Config().Adapter.MaxRetries, cfg.MaxRetries)
	}
	if cfg.MaxRequests != service.Config().RateLimit.MaxRequests {
		t.Fatalf("expected rate limit default %d, got %d", service.Config().RateLimit.MaxRequests, cfg.MaxRequests)
	}
	if cfg.FailureThreshold != service.Config().Breaker.FailureThreshold {
		t.Fatalf("expected breaker default %d, got %d", service.Config().Breaker.FailureThreshold, cfg.FailureThreshold)
	}
	if cfg.OAuthProvider != "stripe" {
		t.Fatalf("expected oauth provider to default to adapter name, got %q", cfg.OAuthProvider)
	}

	names := service.AdapterNames()
	if len(names) != 1 || names[0] != "stripe" {
		t.Fatalf("unexpected adapter names: %#v", names)
	}
}

func TestRegisterAdapter_RejectsDuplicates(t *testing.T) {
	service := newTestService(t)
	registerTestAdapter(t, service, "stripe", "https://api.stripe.example")

	if _, err := service.RegisterAdapter(core.AdapterConfig{
		Name:     "stripe",
		BaseURL:  "https://api.stripe.example",
		AuthType: core.AuthTypeAPIKey,
	}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestRequest_RoutesThroughRegisteredAdapter(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "sk_test_1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cus_1"}`))
	}))
	defer upstream.Close()

	service := newTestService(t)
	registerTestAdapter(t, service, "stripe", upstream.URL)

	res, err := service.Request(context.Background(), "stripe", "tenant-1", core.AdapterRequest{
		Method: "GET",
		Path:   "/customers/cus_1",
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected success, got %d: %s", res.StatusCode, res.Error)
	}

	if _, err := service.Request(context.Background(), "missing", "tenant-1", core.AdapterRequest{Method: "GET", Path: "/"}); err == nil {
		t.Fatalf("expected unknown adapter error")
	}
}

func TestRequest_ExhaustedRetriesCaptureDeadLetter(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	service := newTestService(t)
	registerTestAdapter(t, service, "stripe", upstream.URL)

	res, err := service.Request(context.Background(), "stripe", "tenant-1", core.AdapterRequest{
		Method: "POST",
		Path:   "/charges",
		Body:   map[string]any{"amount": 100},
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 envelope, got %d", res.StatusCode)
	}

	letters, err := service.DeadLetters().ListPending(context.Background(), "tenant-1", "", 10)
	if err != nil {
		t.Fatalf("list dead letters: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(letters))
	}
	if letters[0].Operation != "POST /charges" {
		t.Fatalf("unexpected operation %q", letters[0].Operation)
	}
	if letters[0].AdapterName != "stripe" {
		t.Fatalf("unexpected adapter %q", letters[0].AdapterName)
	}
}

func TestRequestIdempotent_ReplaysStoredResponse(t *testing.T) {
	var calls int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"ch_1"}`))
	}))
	defer upstream.Close()

	service := newTestService(t)
	registerTestAdapter(t, service, "stripe", upstream.URL)

	req := core.AdapterRequest{Method: "POST", Path: "/charges", Body: map[string]any{"amount": 100}}
	first, err := service.RequestIdempotent(context.Background(), "stripe", "tenant-1", "create-charge", req)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := service.RequestIdempotent(context.Background(), "stripe", "tenant-1", "create-charge", req)
	if err != nil {
		t.Fatalf("replay request: %v", err)
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("expected a single upstream call, got %d", calls)
	}
	if first.StatusCode != second.StatusCode {
		t.Fatalf("expected identical replayed response")
	}
}

func TestRequestIdempotent_FailureReleasesReservation(t *testing.T) {
	var fail int64 = 1
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt64(&fail) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	service := newTestService(t)
	registerTestAdapter(t, service, "stripe", upstream.URL)

	req := core.AdapterRequest{Method: "POST", Path: "/charges"}
	res, err := service.RequestIdempotent(context.Background(), "stripe", "tenant-1", "create-charge", req)
	if err != nil {
		t.Fatalf("failing request: %v", err)
	}
	if res.OK() {
		t.Fatalf("expected failure envelope")
	}

	atomic.StoreInt64(&fail, 0)
	res, err = service.RequestIdempotent(context.Background(), "stripe", "tenant-1", "create-charge", req)
	if err != nil {
		t.Fatalf("retry request: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected retry to reach upstream after release, got %d", res.StatusCode)
	}
}

func TestReplayDeadLetter_ResolvesOnSuccess(t *testing.T) {
	var fail int64 = 1
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt64(&fail) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	service := newTestService(t)
	registerTestAdapter(t, service, "stripe", upstream.URL)

	if _, err := service.Request(context.Background(), "stripe", "tenant-1", core.AdapterRequest{
		Method: "POST",
		Path:   "/charges",
	}); err != nil {
		t.Fatalf("seed dead letter: %v", err)
	}
	letters, err := service.DeadLetters().ListPending(context.Background(), "tenant-1", "", 1)
	if err != nil || len(letters) != 1 {
		t.Fatalf("expected seeded dead letter, got %d (%v)", len(letters), err)
	}

	atomic.StoreInt64(&fail, 0)
	res, err := service.ReplayDeadLetter(context.Background(), letters[0].ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected replay success, got %d", res.StatusCode)
	}

	resolved, err := service.DeadLetters().Get(context.Background(), letters[0].ID)
	if err != nil {
		t.Fatalf("get letter: %v", err)
	}
	if resolved.Status != dlq.StatusResolved {
		t.Fatalf("expected resolved letter, got %s", resolved.Status)
	}
	if resolved.ResolvedBy != "replay" {
		t.Fatalf("expected replay resolver, got %q", resolved.ResolvedBy)
	}
}

func TestReplayDeadLetter_FailureReleasesLetter(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	service := newTestService(t)
	registerTestAdapter(t, service, "stripe", upstream.URL)

	if _, err := service.Request(context.Background(), "stripe", "tenant-1", core.AdapterRequest{
		Method: "POST",
		Path:   "/charges",
	}); err != nil {
		t.Fatalf("seed dead letter: %v", err)
	}
	letters, err := service.DeadLetters().ListPending(context.Background(), "tenant-1", "", 1)
	if err != nil || len(letters) != 1 {
		t.Fatalf("expected seeded dead letter, got %d (%v)", len(letters), err)
	}

	res, err := service.ReplayDeadLetter(context.Background(), letters[0].ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.OK() {
		t.Fatalf("expected replay failure, got %d", res.StatusCode)
	}

	letter, err := service.DeadLetters().Get(context.Background(), letters[0].ID)
	if err != nil {
		t.Fatalf("get letter: %v", err)
	}
	if letter.Status != dlq.StatusPending {
		t.Fatalf("failed replay must release the letter to pending, got %s", letter.Status)
	}
	if letter.RetryCount != 1 {
		t.Fatalf("expected one consumed retry, got %d", letter.RetryCount)
	}

	if _, err := service.ReplayDeadLetter(context.Background(), letter.ID); err != nil {
		t.Fatalf("released letter must be claimable again: %v", err)
	}
}

func TestReplayDeadLetter_RestoresDecodedQueryAndHeaders(t *testing.T) {
	var gotQuery, gotHeader string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("expand")
		gotHeader = r.Header.Get("Idempotency-Key")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	service := newTestService(t)
	registerTestAdapter(t, service, "stripe", upstream.URL)

	// durable stores hand jsonb payloads back as map[string]any
	letter, err := service.DeadLetters().Enqueue(context.Background(), dlq.DeadLetter{
		TenantID:    "tenant-1",
		AdapterName: "stripe",
		Operation:   "GET /charges",
		Payload: map[string]any{
			"method":  "GET",
			"path":    "/charges",
			"query":   map[string]any{"expand": "customer"},
			"headers": map[string]any{"Idempotency-Key": "idem_1"},
		},
		Error: "HTTP 502",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := service.ReplayDeadLetter(context.Background(), letter.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected replay success, got %d", res.StatusCode)
	}
	if gotQuery != "customer" {
		t.Fatalf("expected replay to carry the captured query, got %q", gotQuery)
	}
	if gotHeader != "idem_1" {
		t.Fatalf("expected replay to carry the captured headers, got %q", gotHeader)
	}
}

func TestDiscardDeadLetter_MarksTerminal(t *testing.T) {
	service := newTestService(t)

	letter, err := service.DeadLetters().Enqueue(context.Background(), dlq.DeadLetter{
		TenantID:  "tenant-1",
		Operation: "POST /charges",
		Error:     "HTTP 502",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	discarded, err := service.DiscardDeadLetter(context.Background(), letter.ID, "stale payload")
	if err != nil {
		t.Fatalf("discard: %v", err)
	}
	if discarded.Status != dlq.StatusDiscarded {
		t.Fatalf("expected discarded status, got %s", discarded.Status)
	}
}

func TestWebhookLifecycleThroughService(t *testing.T) {
	received := make(chan string, 1)
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get("X-AgentOS-Event")
	}))
	defer endpoint.Close()

	service := newTestService(t)

	registration, err := service.RegisterWebhook(context.Background(), "tenant-1", endpoint.URL, "whsec_1", []string{"invoice.paid"})
	if err != nil {
		t.Fatalf("register webhook: %v", err)
	}

	deliveries, err := service.EmitEvent(context.Background(), "tenant-1", "invoice.paid", map[string]any{"id": "inv_1"})
	if err != nil {
		t.Fatalf("emit event: %v", err)
	}
	if len(deliveries) != 1 || deliveries[0].Status != "success" {
		t.Fatalf("unexpected deliveries: %#v", deliveries)
	}
	select {
	case event := <-received:
		if event != "invoice.paid" {
			t.Fatalf("unexpected event header %q", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected webhook delivery")
	}

	if err := service.UnregisterWebhook(context.Background(), "tenant-1", registration.ID); err != nil {
		t.Fatalf("unregister webhook: %v", err)
	}
	deliveries, err = service.EmitEvent(context.Background(), "tenant-1", "invoice.paid", map[string]any{"id": "inv_2"})
	if err != nil {
		t.Fatalf("emit after unregister: %v", err)
	}
	if len(deliveries) != 0 {
		t.Fatalf("expected no deliveries after unregister, got %d", len(deliveries))
	}
}

func TestSetCredentials_RejectsInvalidAuthType(t *testing.T) {
	service := newTestService(t)
	err := service.SetCredentials(context.Background(), core.AuthCredentials{
		TenantID:    "tenant-1",
		AdapterName: "stripe",
		AuthType:    "kerberos",
	})
	if err == nil {
		t.Fatalf("expected invalid auth type error")
	}
}

func TestHealthAll_ReportsRegisteredAdapters(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	service := newTestService(t)
	registerTestAdapter(t, service, "stripe", upstream.URL)
	registerTestAdapter(t, service, "shopify", upstream.URL)

	if _, err := service.Request(context.Background(), "stripe", "tenant-1", core.AdapterRequest{Method: "GET", Path: "/"}); err != nil {
		t.Fatalf("request: %v", err)
	}

	all := service.HealthAll()
	if len(all) != 2 {
		t.Fatalf("expected two snapshots, got %d", len(all))
	}
	if all["stripe"].TotalRequests != 1 {
		t.Fatalf("expected stripe request recorded, got %d", all["stripe"].TotalRequests)
	}
	if all["shopify"].TotalRequests != 0 {
		t.Fatalf("expected shopify untouched")
	}

	single, err := service.Health("stripe")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if single.SuccessfulRequests != 1 {
		t.Fatalf("expected one success, got %d", single.SuccessfulRequests)
	}
}
