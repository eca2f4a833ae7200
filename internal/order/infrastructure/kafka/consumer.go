package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/venue-orders/pkg/tracing"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CommandHandler applies one raw command envelope. Handle returns an error
// only when the message should be retried.
type CommandHandler interface {
	Handle(ctx context.Context, raw []byte) error
	Abandon(ctx context.Context, raw []byte, cause error) error
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        group,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
}

type Consumer struct {
	log     *slog.Logger
	reader  MessageReader
	handler CommandHandler
	retries int
	backoff time.Duration
	tracer  trace.Tracer
}

func NewConsumer(log *slog.Logger, reader MessageReader, handler CommandHandler, retries int, backoff time.Duration) *Consumer {
	if retries < 1 {
		retries = 1
	}
	return &Consumer{
		log:     log,
		reader:  reader,
		handler: handler,
		retries: retries,
		backoff: backoff,
		tracer:  otel.Tracer("order-consumer"),
	}
}

// Run processes messages one at a time and commits each offset only after
// its command reached a final outcome. It returns nil when ctx is cancelled
// and an error when a message could be neither handled nor abandoned.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// uncommitted, so the group redelivers it after a restart
			return fmt.Errorf("partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeOrderCommand")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.kafka.message.key", string(msg.Key)),
		attribute.Int("messaging.kafka.partition", msg.Partition),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
		attribute.String("command.type", headerValue(msg.Headers, "event_type")),
	)

	wait := c.backoff
	var err error
	for attempt := 1; attempt <= c.retries; attempt++ {
		err = c.handler.Handle(msgCtx, msg.Value)
		if err == nil {
			return nil
		}
		c.log.Warn("command handling failed",
			"key", string(msg.Key), "offset", msg.Offset, "attempt", attempt, "err", err)
		if attempt == c.retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if aerr := c.handler.Abandon(msgCtx, msg.Value, err); aerr != nil {
		c.log.Error("abandon command failed", "offset", msg.Offset, "err", aerr)
		return fmt.Errorf("abandon command: %w", aerr)
	}
	return nil
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
