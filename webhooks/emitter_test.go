package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestEmitter(t *testing.T, opts ...Option) *Emitter {
	t.Helper()
	emitter := NewEmitter(opts...)
	emitter.BackoffBase = time.Millisecond
	emitter.Timeout = time.Second
	return emitter
}

func TestEmit_DeliversSignedPayload(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
	}))
	defer server.Close()

	emitter := newTestEmitter(t)
	registration, err := emitter.Register(context.Background(), "acme", server.URL, "topsecret", nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	payload := map[string]any{"order_id": "ord_1", "amount": 42}
	deliveries, err := emitter.Emit(context.Background(), "acme", "order.created", payload)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery got %d", len(deliveries))
	}
	delivery := deliveries[0]
	if delivery.Status != DeliveryStatusSuccess {
		t.Fatalf("expected success got %q (%s)", delivery.Status, delivery.Error)
	}
	if delivery.RegistrationID != registration.ID {
		t.Fatalf("delivery bound to wrong registration")
	}

	if got := gotHeaders.Get("X-AgentOS-Event"); got != "order.created" {
		t.Fatalf("event header %q", got)
	}
	if got := gotHeaders.Get("X-AgentOS-Delivery"); got != delivery.ID {
		t.Fatalf("delivery header %q want %q", got, delivery.ID)
	}
	if got := gotHeaders.Get("Content-Type"); got != "application/json" {
		t.Fatalf("content type %q", got)
	}

	signature := gotHeaders.Get("X-AgentOS-Signature")
	if !VerifySignature("topsecret", gotBody, signature) {
		t.Fatalf("signature %q does not verify", signature)
	}
	if VerifySignature("wrong", gotBody, signature) {
		t.Fatal("signature must not verify under a different secret")
	}

	var decoded map[string]any
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded["order_id"] != "ord_1" {
		t.Fatalf("unexpected payload %v", decoded)
	}
}

func TestEmit_SecretlessRegistrationOmitsSignatureHeader(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
	}))
	defer server.Close()

	emitter := newTestEmitter(t)
	if _, err := emitter.Register(context.Background(), "acme", server.URL, "", nil); err != nil {
		t.Fatalf("Register without secret: %v", err)
	}

	deliveries, err := emitter.Emit(context.Background(), "acme", "order.created", map[string]any{"id": 1})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if deliveries[0].Status != DeliveryStatusSuccess {
		t.Fatalf("expected success got %q (%s)", deliveries[0].Status, deliveries[0].Error)
	}
	if _, present := gotHeaders["X-Agentos-Signature"]; present {
		t.Fatal("unsigned registration must not receive a signature header")
	}
	if got := gotHeaders.Get("X-AgentOS-Event"); got != "order.created" {
		t.Fatalf("event header %q", got)
	}
}

func TestRegister_Description(t *testing.T) {
	emitter := newTestEmitter(t)
	registration, err := emitter.Register(context.Background(), "acme", "https://hooks.example.com", "s1", nil,
		WithDescription("  billing sink  "))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if registration.Description != "billing sink" {
		t.Fatalf("expected trimmed description, got %q", registration.Description)
	}

	stored, err := emitter.Registrations(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Registrations: %v", err)
	}
	if len(stored) != 1 || stored[0].Description != "billing sink" {
		t.Fatalf("description must persist, got %+v", stored)
	}
}

func TestEmit_EqualPayloadsSignIdentically(t *testing.T) {
	a, _ := json.Marshal(map[string]any{"b": 2, "a": 1})
	b, _ := json.Marshal(map[string]any{"a": 1, "b": 2})
	if Sign("secret", a) != Sign("secret", b) {
		t.Fatal("equal payloads must produce equal signatures")
	}
}

func TestEmit_EventFilter(t *testing.T) {
	var orderCalls, invoiceCalls int32
	orderServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&orderCalls, 1)
	}))
	defer orderServer.Close()
	invoiceServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&invoiceCalls, 1)
	}))
	defer invoiceServer.Close()

	emitter := newTestEmitter(t)
	ctx := context.Background()
	if _, err := emitter.Register(ctx, "acme", orderServer.URL, "s1", []string{"order.created"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := emitter.Register(ctx, "acme", invoiceServer.URL, "s2", []string{"invoice.paid"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	deliveries, err := emitter.Emit(ctx, "acme", "order.created", map[string]any{"id": 1})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery got %d", len(deliveries))
	}
	if atomic.LoadInt32(&orderCalls) != 1 || atomic.LoadInt32(&invoiceCalls) != 0 {
		t.Fatalf("filter leaked: order=%d invoice=%d", orderCalls, invoiceCalls)
	}
}

func TestEmit_EmptyEventListReceivesEverything(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	emitter := newTestEmitter(t)
	ctx := context.Background()
	if _, err := emitter.Register(ctx, "acme", server.URL, "s1", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, event := range []string{"order.created", "invoice.paid"} {
		if _, err := emitter.Emit(ctx, "acme", event, map[string]any{}); err != nil {
			t.Fatalf("Emit %s: %v", event, err)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 calls got %d", got)
	}
}

func TestEmit_RetriesFailedDelivery(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	emitter := newTestEmitter(t)
	ctx := context.Background()
	if _, err := emitter.Register(ctx, "acme", server.URL, "s1", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	deliveries, err := emitter.Emit(ctx, "acme", "order.created", map[string]any{})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if deliveries[0].Status != DeliveryStatusSuccess {
		t.Fatalf("expected success after retries, got %q (%s)", deliveries[0].Status, deliveries[0].Error)
	}
	if deliveries[0].Attempts != 3 {
		t.Fatalf("expected 3 attempts got %d", deliveries[0].Attempts)
	}
}

func TestEmit_ExhaustedRetriesRecordFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	emitter := newTestEmitter(t)
	ctx := context.Background()
	if _, err := emitter.Register(ctx, "acme", server.URL, "s1", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	deliveries, err := emitter.Emit(ctx, "acme", "order.created", map[string]any{})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	delivery := deliveries[0]
	if delivery.Status != DeliveryStatusFailed {
		t.Fatalf("expected failed got %q", delivery.Status)
	}
	if delivery.Attempts != emitter.MaxRetries {
		t.Fatalf("expected %d attempts got %d", emitter.MaxRetries, delivery.Attempts)
	}
	if delivery.StatusCode != http.StatusBadGateway || delivery.Error == "" {
		t.Fatalf("expected failure detail, got %+v", delivery)
	}
}

func TestEmit_OneFailingEndpointDoesNotAffectOthers(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	emitter := newTestEmitter(t)
	ctx := context.Background()
	if _, err := emitter.Register(ctx, "acme", good.URL, "s1", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := emitter.Register(ctx, "acme", bad.URL, "s2", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	deliveries, err := emitter.Emit(ctx, "acme", "order.created", map[string]any{})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(deliveries) != 2 {
		t.Fatalf("expected 2 deliveries got %d", len(deliveries))
	}
	statuses := map[string]int{}
	for _, delivery := range deliveries {
		statuses[delivery.Status]++
	}
	if statuses[DeliveryStatusSuccess] != 1 || statuses[DeliveryStatusFailed] != 1 {
		t.Fatalf("unexpected statuses %v", statuses)
	}
}

func TestEmit_InactiveRegistrationSkipped(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	emitter := newTestEmitter(t)
	ctx := context.Background()
	registration, err := emitter.Register(ctx, "acme", server.URL, "s1", nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := emitter.SetActive(ctx, "acme", registration.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	deliveries, err := emitter.Emit(ctx, "acme", "order.created", map[string]any{})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(deliveries) != 0 || atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("inactive registration must be skipped: deliveries=%d calls=%d", len(deliveries), calls)
	}
}

func TestDeliveries_HistoryNewestFirstWithEventFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	emitter := newTestEmitter(t)
	now := time.Unix(1_700_000_000, 0).UTC()
	emitter.Now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	ctx := context.Background()
	if _, err := emitter.Register(ctx, "acme", server.URL, "s1", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, event := range []string{"order.created", "invoice.paid", "order.created"} {
		if _, err := emitter.Emit(ctx, "acme", event, map[string]any{}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	history, err := emitter.Deliveries(ctx, "acme", "", 0)
	if err != nil {
		t.Fatalf("Deliveries: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 records got %d", len(history))
	}
	if history[0].CreatedAt.Before(history[1].CreatedAt) {
		t.Fatal("history must be newest first")
	}

	orders, err := emitter.Deliveries(ctx, "acme", "order.created", 1)
	if err != nil {
		t.Fatalf("Deliveries: %v", err)
	}
	if len(orders) != 1 || orders[0].Event != "order.created" {
		t.Fatalf("event filter with limit broken: %+v", orders)
	}
}
