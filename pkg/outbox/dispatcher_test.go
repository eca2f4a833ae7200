package outbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RowFieldsOverrideStoredHeaders(t *testing.T) {
	producer := &fakeProducer{}
	d := NewDispatcher(testLogger(), producer, "")

	err := d.Dispatch(context.Background(), Event{
		ID:            7,
		AggregateType: "order_command",
		AggregateID:   "order-1",
		Type:          "UPDATE_ORDER",
		Payload:       []byte(`{}`),
		Traceparent:   "00-new-span-01",
		Headers:       map[string]string{"traceparent": "00-old-span-01", "command_id": "c9"},
	})
	require.NoError(t, err)
	require.Len(t, producer.msgs, 1)

	m := producer.msgs[0]
	assert.Empty(t, m.Topic)
	assert.Equal(t, "order-1", string(m.Key))
	require.Len(t, m.Headers, 4)
	assert.Equal(t, "aggregate_type", m.Headers[0].Key)
	assert.Equal(t, "command_id", m.Headers[1].Key)
	assert.Equal(t, "UPDATE_ORDER", header(m, HeaderEventType))
	assert.Equal(t, "00-new-span-01", header(m, HeaderTraceparent))
}

func TestDispatcher_ProducerError(t *testing.T) {
	producer := &fakeProducer{failOn: map[string]bool{"x": true}}
	d := NewDispatcher(testLogger(), producer, "order-topic")

	err := d.Dispatch(context.Background(), Event{ID: 1, AggregateID: "u1", Type: "CREATE_ORDER", Payload: []byte("x")})
	assert.Error(t, err)
	assert.Empty(t, producer.msgs)
}
