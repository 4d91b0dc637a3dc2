package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

// Webhook POSTs each snapshot as JSON, retrying transport errors, 429 and
// 5xx responses with exponential backoff.
type Webhook struct {
	url        string
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
	header     http.Header
	logger     *slog.Logger
	client     *resty.Client
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.maxRetries = n }
}

// WithWebhookBackoff sets the first retry delay; later ones double. Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookHeader adds a header to every request.
func WithWebhookHeader(key, value string) WebhookOption {
	return func(w *Webhook) { w.header.Add(key, value) }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l }
}

// NewWebhook creates a Webhook sink targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:        url,
		maxRetries: 3,
		backoff:    time.Second,
		timeout:    10 * time.Second,
		header:     http.Header{},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}

	w.client = resty.New().
		SetTimeout(w.timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(w.maxRetries).
		SetRetryWaitTime(w.backoff).
		SetRetryMaxWaitTime(w.backoff << uint(max(w.maxRetries, 0))).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		}).
		AddRetryHook(func(r *resty.Response, err error) {
			attrs := []any{"url", w.url}
			if r != nil && r.Request != nil {
				attrs = append(attrs, "attempt", r.Request.Attempt)
			}
			if err != nil {
				attrs = append(attrs, "error", err)
			} else if r != nil {
				attrs = append(attrs, "status", r.StatusCode())
			}
			w.logger.Warn("webhook: request failed, retrying", attrs...)
		})
	w.client.SetLogger(restyLogger{w.logger})
	for k, vs := range w.header {
		for _, v := range vs {
			w.client.Header.Add(k, v)
		}
	}
	return w
}

func (w *Webhook) Publish(ctx context.Context, snap *ranking.Snapshot) error {
	body, err := json.Marshal(wrap(snap))
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	res, err := w.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("webhook: status %d after %d attempts", res.StatusCode(), res.Request.Attempt)
	}
	return nil
}

func (w *Webhook) Close() error { return nil }

// restyLogger routes resty's internal messages to slog.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Error("webhook: " + fmt.Sprintf(format, v...))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Debug("webhook: " + fmt.Sprintf(format, v...))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug("webhook: " + fmt.Sprintf(format, v...))
}
