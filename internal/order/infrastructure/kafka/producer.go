package kafka

import (
	"context"

	"github.com/dmehra2102/venue-orders/pkg/tracing"
	"github.com/segmentio/kafka-go"
)

// Writer publishes order commands. Messages are hashed on their key so every
// command for one user or order lands on the same partition.
type Writer struct {
	*kafka.Writer
}

func NewWriter(brokers []string, topic string) *Writer {
	return &Writer{
		Writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func (w *Writer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return w.Writer.WriteMessages(ctx, msgs...)
}

// Publish writes a single keyed message. The current span is injected unless
// the caller already supplied a traceparent header.
func (w *Writer) Publish(ctx context.Context, key string, value []byte, headers map[string]string) error {
	hs := make([]kafka.Header, 0, len(headers)+1)
	for k, v := range headers {
		hs = append(hs, kafka.Header{Key: k, Value: []byte(v)})
	}
	if _, ok := headers[tracing.TraceparentHeader]; !ok {
		hs = tracing.InjectKafkaHeaders(ctx, hs)
	}
	return w.Writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: hs,
	})
}
