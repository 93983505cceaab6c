package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/maskball-tickets/pkg/config"
	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/outbox/registry"
)

const (
	SinkLog     = "log"
	SinkWebhook = "webhook"

	defaultWebhookTimeout = 10 * time.Second
	maxErrorBody          = 512
)

// Sink delivers composed messages. Errors wrapped in registry.NonRetryableError are
// dead-lettered immediately; anything else is retried.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// NewSink builds the sink selected in configuration.
func NewSink(cfg config.NotificationsConfig, logg *logger.Logger) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Sink)) {
	case "", SinkLog:
		return NewLogSink(logg), nil
	case SinkWebhook:
		return NewWebhookSink(cfg.WebhookURL, &http.Client{Timeout: cfg.Timeout})
	default:
		return nil, fmt.Errorf("unknown notification sink %q", cfg.Sink)
	}
}

// LogSink writes messages to the structured log. Used in development and as the default.
type LogSink struct {
	logg *logger.Logger
}

func NewLogSink(logg *logger.Logger) *LogSink {
	return &LogSink{logg: logg}
}

func (s *LogSink) Name() string { return SinkLog }

func (s *LogSink) Send(ctx context.Context, msg Message) error {
	if s.logg == nil {
		return nil
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":   msg.EventID,
		"event_type": msg.EventType,
		"channel":    msg.Channel,
		"to":         msg.To,
		"subject":    msg.Subject,
		"tickets":    len(msg.Tickets),
	})
	s.logg.Info(logCtx, "notification delivered to log sink")
	s.logg.Debug(logCtx, msg.Body)
	return nil
}

// WebhookSink posts messages as JSON to an external mailer.
type WebhookSink struct {
	url    string
	client *http.Client
}

func NewWebhookSink(url string, client *http.Client) (*WebhookSink, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("notification webhook url required")
	}
	if client == nil {
		client = &http.Client{}
	}
	if client.Timeout <= 0 {
		client.Timeout = defaultWebhookTimeout
	}
	return &WebhookSink{url: url, client: client}, nil
}

func (s *WebhookSink) Name() string { return SinkWebhook }

func (s *WebhookSink) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return registry.NewNonRetryableError(fmt.Errorf("encode notification: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return registry.NewNonRetryableError(fmt.Errorf("build notification request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if msg.EventID != "" {
		req.Header.Set("Idempotency-Key", msg.EventID)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	sendErr := fmt.Errorf("notification webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
		return registry.NewNonRetryableError(sendErr)
	}
	return sendErr
}
