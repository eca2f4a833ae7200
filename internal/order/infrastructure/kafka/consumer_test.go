package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		f.cancel()
		return kafka.Message{}, context.Canceled
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

type fakeHandler struct {
	failures   map[string]int
	calls      map[string]int
	abandoned  []string
	abandonErr error
}

func (f *fakeHandler) Handle(ctx context.Context, raw []byte) error {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[string(raw)]++
	if f.failures[string(raw)] >= f.calls[string(raw)] {
		return errors.New("db down")
	}
	return nil
}

func (f *fakeHandler) Abandon(ctx context.Context, raw []byte, cause error) error {
	if f.abandonErr != nil {
		return f.abandonErr
	}
	f.abandoned = append(f.abandoned, string(raw))
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConsumer_CommitsAfterHandling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		{Offset: 1, Value: []byte("a")},
		{Offset: 2, Value: []byte("b")},
	}}
	handler := &fakeHandler{failures: map[string]int{"b": 1}}

	c := NewConsumer(discard(), reader, handler, 3, time.Millisecond)
	require.NoError(t, c.Run(ctx))

	assert.Equal(t, []int64{1, 2}, reader.committed)
	assert.Equal(t, 2, handler.calls["b"])
	assert.Empty(t, handler.abandoned)
	assert.True(t, reader.closed)
}

func TestConsumer_AbandonsAfterRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{{Offset: 7, Value: []byte("poison")}}}
	handler := &fakeHandler{failures: map[string]int{"poison": 100}}

	c := NewConsumer(discard(), reader, handler, 2, time.Millisecond)
	require.NoError(t, c.Run(ctx))

	assert.Equal(t, 2, handler.calls["poison"])
	assert.Equal(t, []string{"poison"}, handler.abandoned)
	assert.Equal(t, []int64{7}, reader.committed)
}

func TestConsumer_LeavesOffsetWhenAbandonFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		{Offset: 3, Value: []byte("ok")},
		{Offset: 4, Value: []byte("stuck")},
		{Offset: 5, Value: []byte("later")},
	}}
	handler := &fakeHandler{failures: map[string]int{"stuck": 100}, abandonErr: errors.New("pg down")}

	c := NewConsumer(discard(), reader, handler, 2, time.Millisecond)
	err := c.Run(ctx)

	require.Error(t, err)
	assert.ErrorContains(t, err, "pg down")
	assert.ErrorContains(t, err, "offset 4")
	assert.Equal(t, []int64{3}, reader.committed)
	assert.Zero(t, handler.calls["later"])
	assert.True(t, reader.closed)
}

func TestHeaderValue(t *testing.T) {
	hs := []kafka.Header{{Key: "event_type", Value: []byte("CREATE_ORDER")}}
	assert.Equal(t, "CREATE_ORDER", headerValue(hs, "event_type"))
	assert.Empty(t, headerValue(hs, "missing"))
}
