package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const defaultWebhookTimeout = 15 * time.Second

// SignatureHeader carries the hex HMAC-SHA256 of the request body when a secret is configured.
const SignatureHeader = "X-Hancock-Signature"

// WebhookNotifier posts each message as JSON to a mailer service.
type WebhookNotifier struct {
	URL        string
	Secret     string
	HTTPClient *http.Client
}

// NewWebhookNotifier returns a notifier posting to url. secret may be empty.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:        url,
		Secret:     secret,
		HTTPClient: &http.Client{Timeout: defaultWebhookTimeout},
	}
}

// Notify sends msg. 4xx responses other than 408 and 429 are permanent failures.
func (w *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	if w.URL == "" {
		return backoff.Permanent(fmt.Errorf("notify: webhook URL not configured"))
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(raw))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hancock-Event", msg.Event)
	if w.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.Secret, raw))
	}
	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err = fmt.Errorf("notify: webhook failed status=%d body=%s", resp.StatusCode, string(b))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether sig is the HMAC of body under secret.
func VerifySignature(secret string, body []byte, sig string) bool {
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
