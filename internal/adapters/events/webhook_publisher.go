package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

const (
	defaultWebhookTimeout = 10 * time.Second

	HeaderTopic     = "X-Leadgate-Topic"
	HeaderEventID   = "X-Leadgate-Event-Id"
	HeaderEventType = "X-Leadgate-Event-Type"
	HeaderTenant    = "X-Leadgate-Tenant"
	HeaderTimestamp = "X-Leadgate-Timestamp"
	HeaderSignature = "X-Leadgate-Signature"
)

var ErrBadSignature = errors.New("webhook signature mismatch")

// WebhookPublisher POSTs outbox events to a subscriber endpoint. Non-2xx
// responses are errors so the dispatcher retries them.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

func NewWebhookPublisher(url, secret string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Publish signs "<unix timestamp>.<body>" with HMAC-SHA256 and sends it as
// HeaderSignature "v1=<hex>". Receivers check it with VerifySignature.
func (p *WebhookPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ts := strconv.FormatInt(p.now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTopic, topic)
	req.Header.Set(HeaderEventID, event.EventID)
	req.Header.Set(HeaderEventType, event.EventType)
	if event.TenantID != "" {
		req.Header.Set(HeaderTenant, event.TenantID)
	}
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderSignature, "v1="+sign(p.secret, ts, body))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook %s: %w", event.EventID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", event.EventID, resp.StatusCode)
	}
	return nil
}

func sign(secret []byte, ts string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a delivery and rejects timestamps further than
// tolerance from now.
func VerifySignature(secret []byte, header http.Header, body []byte, tolerance time.Duration, now time.Time) error {
	ts := header.Get(HeaderTimestamp)
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrBadSignature)
	}
	if d := now.Sub(time.Unix(sec, 0)); d > tolerance || d < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrBadSignature)
	}
	got, ok := strings.CutPrefix(header.Get(HeaderSignature), "v1=")
	if !ok {
		return fmt.Errorf("%w: missing v1 signature", ErrBadSignature)
	}
	if !hmac.Equal([]byte(got), []byte(sign(secret, ts, body))) {
		return ErrBadSignature
	}
	return nil
}
