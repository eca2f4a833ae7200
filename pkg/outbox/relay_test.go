package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	batch  []Event
	sent   []int64
	failed map[int64]string
}

func (f *fakeStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	b := f.batch
	f.batch = nil
	return b, nil
}

func (f *fakeStore) MarkSent(ctx context.Context, ids []int64) error {
	f.sent = append(f.sent, ids...)
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	if f.failed == nil {
		f.failed = map[int64]string{}
	}
	f.failed[id] = errMsg
	return nil
}

func (f *fakeStore) ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error {
	return nil
}

type fakeProducer struct {
	msgs   []kafka.Message
	failOn map[string]bool
}

func (f *fakeProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		if f.failOn[string(m.Value)] {
			return errors.New("broker unavailable")
		}
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestRelayTick_PublishesKeyedMessages(t *testing.T) {
	store := &fakeStore{batch: []Event{
		{ID: 1, AggregateID: "u1", Type: "CREATE_ORDER", Payload: []byte("a"), Traceparent: "00-t-s-01", Headers: map[string]string{"command_id": "c1"}},
		{ID: 2, AggregateID: "o9", Type: "UPDATE_ORDER", Payload: []byte("b")},
	}}
	producer := &fakeProducer{}
	relay := NewRelay(testLogger(), store, NewDispatcher(testLogger(), producer, "order-topic"), "r1")

	n, err := relay.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, store.sent)
	require.Len(t, producer.msgs, 2)
	assert.Equal(t, "u1", string(producer.msgs[0].Key))
	assert.Equal(t, "order-topic", producer.msgs[0].Topic)
	assert.Equal(t, "CREATE_ORDER", header(producer.msgs[0], "event_type"))
	assert.Equal(t, "00-t-s-01", header(producer.msgs[0], "traceparent"))
	assert.Equal(t, "c1", header(producer.msgs[0], "command_id"))
}

func TestRelayTick_FailureHoldsBackSameKey(t *testing.T) {
	store := &fakeStore{batch: []Event{
		{ID: 1, AggregateID: "o1", Payload: []byte("first")},
		{ID: 2, AggregateID: "o2", Payload: []byte("other")},
		{ID: 3, AggregateID: "o1", Payload: []byte("second")},
	}}
	producer := &fakeProducer{failOn: map[string]bool{"first": true}}
	relay := NewRelay(testLogger(), store, NewDispatcher(testLogger(), producer, "order-topic"), "r1")

	n, err := relay.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{2}, store.sent)
	assert.Contains(t, store.failed[1], "broker unavailable")
	assert.NotContains(t, store.failed, int64(3))
}

func TestRelayTick_EmptyBatch(t *testing.T) {
	relay := NewRelay(testLogger(), &fakeStore{}, NewDispatcher(testLogger(), &fakeProducer{}, "t"), "r1", WithBatchSize(10))

	n, err := relay.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
