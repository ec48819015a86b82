package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	segkafka "github.com/segmentio/kafka-go"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/pkg/retry"
)

// Topics carrying lifecycle events.
const (
	EventsTopic    = "tasks.events"
	EventsDLQTopic = "tasks.events.dlq"
)

// Header names set on every lifecycle event message.
const (
	HeaderEventType = "event-type"
	HeaderError     = "error"
	HeaderAttempts  = "attempts"
)

// EventPublisher writes lifecycle events to EventsTopic, keyed by task id.
type EventPublisher struct {
	producer Producer
	topic    string
	retry    retry.Config
	logger   *slog.Logger
}

// NewEventPublisher wraps producer. Writes are retried a few times on top of
// the writer's own attempts before the failure is reported.
func NewEventPublisher(producer Producer, logger *slog.Logger) *EventPublisher {
	p := &EventPublisher{
		producer: producer,
		topic:    EventsTopic,
		logger:   logger,
	}
	p.retry = retry.Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		OnRetry: func(attempt int, err error) {
			p.logger.Warn("event publish retry",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		},
	}
	return p
}

// Publish implements lifecycle.Publisher.
func (p *EventPublisher) Publish(ctx context.Context, event domain.TaskEvent) error {
	msg, err := EncodeEvent(p.topic, event)
	if err != nil {
		return err
	}
	return retry.Do(ctx, p.retry, func(ctx context.Context) error {
		return p.producer.Publish(ctx, msg)
	})
}

// EncodeEvent builds the Kafka message for event.
func EncodeEvent(topic string, event domain.TaskEvent) (Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s event for task %s: %w", event.Type, event.TaskID, err)
	}
	return Message{
		Topic:   topic,
		Key:     []byte(event.TaskID),
		Value:   value,
		Headers: []segkafka.Header{{Key: HeaderEventType, Value: []byte(event.Type)}},
	}, nil
}

// DecodeEvent parses a lifecycle event message.
func DecodeEvent(msg Message) (domain.TaskEvent, error) {
	var event domain.TaskEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return domain.TaskEvent{}, fmt.Errorf("decode event at offset %d: %w", msg.Offset, err)
	}
	if event.TaskID == "" || event.Type == "" {
		return domain.TaskEvent{}, fmt.Errorf("decode event at offset %d: missing task_id or type", msg.Offset)
	}
	return event, nil
}

// DeadLetter builds the DLQ copy of msg, annotated with the failure.
func DeadLetter(msg Message, cause error, attempts int) Message {
	headers := append([]segkafka.Header(nil), msg.Headers...)
	carrier := HeaderCarrier(headers)
	carrier.Set(HeaderError, cause.Error())
	carrier.Set(HeaderAttempts, fmt.Sprint(attempts))
	return Message{
		Topic:   EventsDLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: carrier,
	}
}
