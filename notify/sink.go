package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Sink delivers a rendered message to an operator-facing channel.
type Sink interface {
	Send(ctx context.Context, channel, message string) error
}

// LogSink writes messages to a structured logger. Useful as a default
// and in tests.
type LogSink struct {
	Logger *slog.Logger
}

// Send logs the message at info level.
func (s *LogSink) Send(_ context.Context, channel, message string) error {
	s.Logger.Info(message, slog.String("channel", channel))
	return nil
}

// WebhookSink posts messages as JSON to an incoming-webhook endpoint
// (Slack-compatible payload shape: {"channel": ..., "text": ...}).
type WebhookSink struct {
	URL    string
	Client *http.Client
}

// NewWebhookSink creates a WebhookSink with a bounded default client.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the message. Non-2xx responses are errors.
func (s *WebhookSink) Send(ctx context.Context, channel, message string) error {
	body, err := json.Marshal(map[string]string{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return fmt.Errorf("stride/notify: marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("stride/notify: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("stride/notify: post webhook: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on a drained response

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("stride/notify: webhook returned %s", resp.Status)
	}
	return nil
}
