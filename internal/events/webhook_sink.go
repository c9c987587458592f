package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mbd888/txsentinel/internal/retry"
)

// Webhook request headers.
const (
	HeaderEvent     = "X-Txsentinel-Event"
	HeaderTimestamp = "X-Txsentinel-Timestamp"
	HeaderSignature = "X-Txsentinel-Signature"
)

// WebhookSink POSTs each notification envelope to one HTTP endpoint. With a
// secret set, requests carry an HMAC-SHA256 of "<timestamp>.<body>" so the
// receiver can reject forged or replayed calls.
type WebhookSink struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

// NewWebhookSink creates a sink for url. The URL must already have passed
// endpoint validation.
func NewWebhookSink(url, secret string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Publish delivers n. Client errors other than 408 and 429 are permanent:
// resending the same body cannot fix them.
func (s *WebhookSink) Publish(ctx context.Context, n *Notification) error {
	body, err := encodeEnvelope(n)
	if err != nil {
		return retry.Permanent(err)
	}
	ts := strconv.FormatInt(s.now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(n.Type))
	req.Header.Set(HeaderTimestamp, ts)
	if len(s.secret) > 0 {
		req.Header.Set(HeaderSignature, Sign(s.secret, ts, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("webhook returned %d", code)
	default:
		return retry.Permanent(fmt.Errorf("webhook rejected with %d", code))
	}
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>" under secret.
func Sign(secret []byte, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(timestamp))
	h.Write([]byte{'.'})
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func Verify(secret []byte, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}
