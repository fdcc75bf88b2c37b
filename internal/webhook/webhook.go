package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"bindery/internal/config"
	"bindery/internal/metrics"
)

// Event names delivered to external callback URLs.
const (
	EventSessionValidated   = "session.validated"
	EventSessionFailed      = "session.failed"
	EventSynthesisCompleted = "synthesis.completed"
	EventSynthesisFailed    = "synthesis.failed"
)

// Sender delivers signed JSON callbacks. Delivery is best-effort: at most
// two attempts total, and a false return never unwinds the state change
// that triggered it.
type Sender struct {
	client     *http.Client
	secret     string
	retryDelay time.Duration
	logger     *slog.Logger
}

// Notifier is the interface the ingestion path depends on.
type Notifier interface {
	Send(ctx context.Context, url, event, identifier string, payload any) bool
}

func NewSender(cfg config.WebhookConfig, logger *slog.Logger) *Sender {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	delay := time.Duration(cfg.RetryDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Sender{
		client:     &http.Client{Timeout: timeout},
		secret:     cfg.Secret,
		retryDelay: delay,
		logger:     logger,
	}
}

// Send POSTs the payload to url and reports whether a 2xx response was
// received within at most two attempts. An empty url is a no-op returning
// false without any network call.
func (s *Sender) Send(ctx context.Context, url, event, identifier string, payload any) bool {
	if url == "" {
		return false
	}

	body, err := json.Marshal(payload)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("webhook_marshal_failed", "event", event, "id", identifier, "error", err)
		}
		return false
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	signature := s.sign(identifier, event, timestamp)

	attempt := 0
	backoff := retry.WithMaxRetries(1, retry.NewConstant(s.retryDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := s.post(ctx, url, event, timestamp, signature, body, attempt > 1); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})

	if err != nil {
		if s.logger != nil {
			s.logger.Warn("webhook_delivery_failed",
				"event", event, "id", identifier, "url", url, "attempts", attempt, "error", err)
		}
		metrics.RecordWebhookDelivery(event, false)
		return false
	}

	metrics.RecordWebhookDelivery(event, true)
	return true
}

func (s *Sender) post(ctx context.Context, url, event, timestamp, signature string, body []byte, isRetry bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Bindery-Event", event)
	req.Header.Set("X-Bindery-Timestamp", timestamp)
	req.Header.Set("X-Bindery-Signature", signature)
	if isRetry {
		req.Header.Set("X-Bindery-Retry", "true")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// sign computes the signature over "{identifier}:{event}:{timestamp}".
// With a configured secret this is hex HMAC-SHA256; without one it falls
// back to the legacy base64 integrity hint.
func (s *Sender) sign(identifier, event, timestamp string) string {
	msg := identifier + ":" + event + ":" + timestamp
	if s.secret == "" {
		return base64.StdEncoding.EncodeToString([]byte(msg))
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
