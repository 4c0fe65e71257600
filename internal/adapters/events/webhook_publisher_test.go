package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

func testEnvelope() domain.EventEnvelope {
	return domain.EventEnvelope{
		EventID:       "evt-1",
		EventType:     domain.ActionLeadIngested,
		SchemaVersion: domain.CurrentEventSchemaVersion,
		TenantID:      "5b0f3a8e-2c44-4d0e-9a57-0c1b2d3e4f50",
		EntityType:    domain.EntityLead,
		EntityID:      "lead-1",
		Actor:         "api_key:k1",
	}
}

func TestWebhookPublisherSignsDelivery(t *testing.T) {
	var (
		gotBody    []byte
		gotHeaders http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	pub := NewWebhookPublisher(srv.URL, "test-secret", 5*time.Second)
	pub.now = func() time.Time { return now }

	event := testEnvelope()
	topic := "events." + event.TenantID + "." + event.EventType
	if err := pub.Publish(context.Background(), topic, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := gotHeaders.Get(HeaderTopic); got != topic {
		t.Errorf("%s = %q, want %q", HeaderTopic, got, topic)
	}
	if got := gotHeaders.Get(HeaderEventID); got != "evt-1" {
		t.Errorf("%s = %q, want evt-1", HeaderEventID, got)
	}
	if got := gotHeaders.Get(HeaderTenant); got != event.TenantID {
		t.Errorf("%s = %q, want %q", HeaderTenant, got, event.TenantID)
	}
	if err := VerifySignature([]byte("test-secret"), gotHeaders, gotBody, time.Minute, now.Add(10*time.Second)); err != nil {
		t.Fatalf("signature did not verify: %v", err)
	}

	var decoded domain.EventEnvelope
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.EntityID != "lead-1" {
		t.Errorf("EntityID = %q, want lead-1", decoded.EntityID)
	}
}

func TestVerifySignatureRejectsTampering(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	body := []byte(`{"event_id":"evt-1"}`)
	header := http.Header{}
	header.Set(HeaderTimestamp, "1772359200")
	header.Set(HeaderSignature, "v1="+sign([]byte("s"), "1772359200", body))

	if err := VerifySignature([]byte("s"), header, body, time.Minute, now); err != nil {
		t.Fatalf("valid delivery rejected: %v", err)
	}
	if err := VerifySignature([]byte("s"), header, []byte(`{"event_id":"evt-2"}`), time.Minute, now); !errors.Is(err, ErrBadSignature) {
		t.Errorf("tampered body: got %v", err)
	}
	if err := VerifySignature([]byte("other"), header, body, time.Minute, now); !errors.Is(err, ErrBadSignature) {
		t.Errorf("wrong secret: got %v", err)
	}
	if err := VerifySignature([]byte("s"), header, body, time.Minute, now.Add(time.Hour)); !errors.Is(err, ErrBadSignature) {
		t.Errorf("stale timestamp: got %v", err)
	}
}

func TestWebhookPublisherNon2xxReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	pub := NewWebhookPublisher(srv.URL, "secret", 5*time.Second)
	err := pub.Publish(context.Background(), "events.platform.tenant.created", domain.EventEnvelope{EventID: "evt-2", EventType: domain.ActionTenantCreated})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected 503 error, got %v", err)
	}
}

func TestWebhookPublisherContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	pub := NewWebhookPublisher(srv.URL, "secret", 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Publish(ctx, "events.t.lead.ingested", testEnvelope())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected error to wrap context.Canceled, got: %v", err)
	}
}

func TestWebhookPublisherZeroTimeoutUsesDefault(t *testing.T) {
	pub := NewWebhookPublisher("http://localhost:9", "s", 0)
	if pub.client.Timeout != defaultWebhookTimeout {
		t.Errorf("timeout = %v, want %v", pub.client.Timeout, defaultWebhookTimeout)
	}
}
