package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
)

// WebhookConfig describes the outbound endpoint.
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// WebhookHandler POSTs events of one type as JSON to a fixed URL.
type WebhookHandler struct {
	eventType domain.EventType
	cfg       WebhookConfig
	client    *http.Client
}

// NewWebhookHandler creates a WebhookHandler for eventType.
func NewWebhookHandler(eventType domain.EventType, cfg WebhookConfig) *WebhookHandler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &WebhookHandler{
		eventType: eventType,
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (h *WebhookHandler) EventType() domain.EventType { return h.eventType }

// Handle returns a *PermanentError for 4xx responses (other than 408 and
// 429) and a plain error for anything worth retrying.
func (h *WebhookHandler) Handle(ctx context.Context, event domain.TaskEvent) error {
	ctx, span := otel.Tracer("notify").Start(ctx, "notify.webhook")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.url", h.cfg.URL),
		attribute.String("event.type", string(event.Type)),
		attribute.String("task.id", event.TaskID),
	)

	body, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return &PermanentError{Err: fmt.Errorf("marshal webhook body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request failed")
		return &PermanentError{Err: fmt.Errorf("build webhook request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(event.Type))
	req.Header.Set("X-Event-ID", event.ID)
	for k, v := range h.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "http call failed")
		return fmt.Errorf("webhook call to %s: %w", h.cfg.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	err = fmt.Errorf("webhook %s returned status %d", h.cfg.URL, resp.StatusCode)
	span.RecordError(err)
	span.SetStatus(codes.Error, "bad status code")
	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return err
	}
	return &PermanentError{Err: err}
}
