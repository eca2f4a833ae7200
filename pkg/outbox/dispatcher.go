package outbox

import (
	"context"
	"log/slog"
	"sort"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
	HeaderTraceparent   = "traceparent"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher turns outbox rows into keyed Kafka messages. An empty topic
// leaves routing to the producer's own topic.
type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

func NewDispatcher(log *slog.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if err := d.producer.WriteMessages(ctx, d.message(event)); err != nil {
		d.log.Error("outbox dispatch failed", "event_id", event.ID, "key", event.AggregateID, "err", err)
		return err
	}
	d.log.Debug("outbox dispatched", "event_id", event.ID, "type", event.Type, "key", event.AggregateID)
	return nil
}

func (d *Dispatcher) message(event Event) kafka.Message {
	return kafka.Message{
		Topic:   d.topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: messageHeaders(event),
	}
}

// messageHeaders emits the stored headers in key order. The row's own type and
// trace context win over a stored header of the same name.
func messageHeaders(event Event) []kafka.Header {
	merged := make(map[string]string, len(event.Headers)+3)
	for k, v := range event.Headers {
		merged[k] = v
	}
	merged[HeaderEventType] = event.Type
	if event.AggregateType != "" {
		merged[HeaderAggregateType] = event.AggregateType
	}
	if event.Traceparent != "" {
		merged[HeaderTraceparent] = event.Traceparent
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(merged[k])})
	}
	return headers
}
