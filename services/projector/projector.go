// Package projector consumes committed lifecycle events and fans them out to
// the read cache and to external notification handlers.
package projector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/go-task-tracker/internal/kafka"
	"github.com/ramiqadoumi/go-task-tracker/internal/notify"
	"github.com/ramiqadoumi/go-task-tracker/pkg/retry"
	"github.com/ramiqadoumi/go-task-tracker/pkg/telemetry"
)

// Invalidator drops cached task snapshots.
type Invalidator interface {
	Invalidate(ctx context.Context, taskID string) error
}

// Projector reads EventsTopic. Every event evicts the task from the cache;
// events with a registered notify.Handler are delivered with retries, and
// deliveries that still fail are parked on the DLQ topic.
type Projector struct {
	consumer    kafka.Consumer
	producer    kafka.Producer
	cache       Invalidator
	registry    *notify.Registry
	projectorID string
	maxRetries  int
	timeout     time.Duration
	baseDelay   time.Duration
	logger      *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Projector.
type Option func(*Projector)

func WithRetries(n int) Option             { return func(p *Projector) { p.maxRetries = n } }
func WithTimeout(d time.Duration) Option   { return func(p *Projector) { p.timeout = d } }
func WithLogger(l *slog.Logger) Option     { return func(p *Projector) { p.logger = l } }
func WithBaseDelay(d time.Duration) Option { return func(p *Projector) { p.baseDelay = d } }

// NewProjector constructs a Projector. cache may be nil.
func NewProjector(
	projectorID string,
	consumer kafka.Consumer,
	producer kafka.Producer,
	cache Invalidator,
	registry *notify.Registry,
	opts ...Option,
) *Projector {
	p := &Projector{
		projectorID: projectorID,
		consumer:    consumer,
		producer:    producer,
		cache:       cache,
		registry:    registry,
		maxRetries:  3,
		timeout:     15 * time.Second,
		baseDelay:   time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes events until ctx is cancelled.
func (p *Projector) Run(ctx context.Context) error {
	return p.consumer.Subscribe(ctx, p.processMessage)
}

// Wait blocks until in-flight deliveries finish. Call after Run returns.
func (p *Projector) Wait() { p.wg.Wait() }

// processMessage is the Kafka HandlerFunc. It returns an error only when the
// event must be seen again: the cache could not be invalidated, or a failed
// delivery could not be parked on the DLQ.
func (p *Projector) processMessage(consumerCtx context.Context, msg kafka.Message) error {
	event, err := kafka.DecodeEvent(msg)
	if err != nil {
		p.logger.Error("malformed event message, discarding",
			slog.String("error", err.Error()),
			slog.String("raw", string(msg.Value)),
		)
		return nil
	}

	ctx, span := otel.Tracer("projector").Start(consumerCtx, "projector.process_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", string(event.Type)),
		attribute.String("task.id", event.TaskID),
	)
	log := p.logger.With(
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.String("task_id", event.TaskID),
	)
	telemetry.ProjectorEventsConsumed.WithLabelValues(string(event.Type)).Inc()

	if p.cache != nil {
		if err := p.cache.Invalidate(ctx, event.TaskID); err != nil {
			span.RecordError(err)
			log.Error("cache invalidation failed", slog.String("error", err.Error()))
			return fmt.Errorf("invalidate task %s: %w", event.TaskID, err)
		}
	}

	h, err := p.registry.Get(event.Type)
	if err != nil {
		log.Debug("no handler for event type")
		return nil
	}

	p.wg.Add(1)
	defer p.wg.Done()

	attempts := 0
	deliverErr := retry.Do(ctx, retry.Config{
		MaxAttempts: p.maxRetries + 1,
		BaseDelay:   p.baseDelay,
		MaxDelay:    30 * time.Second,
		Retryable:   func(err error) bool { return !notify.IsPermanent(err) },
		OnRetry: func(attempt int, retryErr error) {
			telemetry.ProjectorHandlerRetries.WithLabelValues(string(event.Type)).Inc()
			log.Warn("delivery failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", retryErr.Error()),
			)
		},
	}, func(context.Context) error {
		attempts++
		// Detached from consumer shutdown so an in-flight call can finish,
		// but still parented to this span.
		execCtx, cancel := context.WithTimeout(trace.ContextWithSpan(context.Background(), span), p.timeout)
		defer cancel()
		return h.Handle(execCtx, event)
	})
	if deliverErr == nil {
		log.Info("event delivered", slog.Int("attempts", attempts))
		return nil
	}

	span.RecordError(deliverErr)
	span.SetStatus(codes.Error, "delivery failed")
	log.Error("event delivery failed, sending to DLQ",
		slog.Int("attempts", attempts),
		slog.Bool("permanent", notify.IsPermanent(deliverErr)),
		slog.String("error", deliverErr.Error()),
	)
	if err := p.producer.Publish(ctx, kafka.DeadLetter(msg, deliverErr, attempts)); err != nil {
		log.Error("failed to publish to DLQ", slog.String("error", err.Error()))
		return fmt.Errorf("dead-letter event %s: %w", event.ID, err)
	}
	telemetry.ProjectorDLQTotal.WithLabelValues(string(event.Type)).Inc()
	return nil
}
