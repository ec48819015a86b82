package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	segkafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
)

type fakeProducer struct {
	msgs []Message
	errs []error // returned per call; nil entry = success
	n    int
}

func (p *fakeProducer) Publish(_ context.Context, msg Message) error {
	var err error
	if p.n < len(p.errs) {
		err = p.errs[p.n]
	}
	p.n++
	if err != nil {
		return err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHeaderCarrier_SetReplaces(t *testing.T) {
	c := HeaderCarrier{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}}
	c.Set("a", "3")

	assert.Equal(t, "3", c.Get("a"))
	assert.Equal(t, "2", c.Get("b"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())
}

func TestTracePropagatesThroughHeaders(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	original := []segkafka.Header{{Key: HeaderEventType, Value: []byte("task.created")}}
	headers := injectTrace(ctx, original)
	assert.Len(t, original, 1, "input headers are not modified")
	assert.NotEmpty(t, HeaderCarrier(headers).Get("traceparent"))

	got := trace.SpanContextFromContext(extractTrace(context.Background(), headers))
	assert.Equal(t, traceID, got.TraceID())
}

func TestEncodeDecodeEvent(t *testing.T) {
	prev := domain.StatusToDo
	event := domain.TaskEvent{
		ID:             "e-1",
		Type:           domain.EventTaskStatusChanged,
		TaskID:         "t-1",
		ProjectID:      "p-1",
		ActorID:        "u-1",
		PreviousStatus: &prev,
		Status:         domain.StatusInProgress,
		OccurredAt:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	msg, err := EncodeEvent(EventsTopic, event)
	require.NoError(t, err)
	assert.Equal(t, []byte("t-1"), msg.Key, "events are keyed by task for per-task ordering")
	assert.Equal(t, string(domain.EventTaskStatusChanged), msg.Header(HeaderEventType))

	decoded, err := DecodeEvent(msg)
	require.NoError(t, err)
	assert.Equal(t, event.TaskID, decoded.TaskID)
	require.NotNil(t, decoded.PreviousStatus)
	assert.Equal(t, domain.StatusToDo, *decoded.PreviousStatus)
}

func TestDecodeEvent_Malformed(t *testing.T) {
	_, err := DecodeEvent(Message{Value: []byte("not-json")})
	require.Error(t, err)

	_, err = DecodeEvent(Message{Value: []byte(`{"type":"task.created"}`)})
	require.Error(t, err, "task_id is required")
}

func TestEventPublisher_RetriesTransientFailures(t *testing.T) {
	prod := &fakeProducer{errs: []error{errors.New("leader not available"), nil}}
	pub := NewEventPublisher(prod, discard())
	pub.retry.BaseDelay = time.Millisecond

	err := pub.Publish(context.Background(), domain.TaskEvent{Type: domain.EventTaskCreated, TaskID: "t-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, prod.n)
	require.Len(t, prod.msgs, 1)
	assert.Equal(t, EventsTopic, prod.msgs[0].Topic)
}

func TestEventPublisher_GivesUp(t *testing.T) {
	boom := errors.New("broker down")
	prod := &fakeProducer{errs: []error{boom, boom, boom}}
	pub := NewEventPublisher(prod, discard())
	pub.retry.BaseDelay = time.Millisecond

	err := pub.Publish(context.Background(), domain.TaskEvent{Type: domain.EventTaskCreated, TaskID: "t-1"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, prod.n)
}

func TestDeadLetter(t *testing.T) {
	msg := Message{
		Topic:   EventsTopic,
		Key:     []byte("t-1"),
		Value:   []byte(`{}`),
		Headers: []segkafka.Header{{Key: HeaderEventType, Value: []byte("task.created")}},
	}
	dlq := DeadLetter(msg, errors.New("webhook 500"), 3)

	assert.Equal(t, EventsDLQTopic, dlq.Topic)
	assert.Equal(t, msg.Key, dlq.Key)
	assert.Equal(t, "webhook 500", dlq.Header(HeaderError))
	assert.Equal(t, "3", dlq.Header(HeaderAttempts))
	assert.Equal(t, "task.created", dlq.Header(HeaderEventType))
	assert.Len(t, msg.Headers, 1, "source message headers are untouched")
}
