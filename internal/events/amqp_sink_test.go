package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPSink_RoutesByLabel(t *testing.T) {
	ch := &fakeChannel{}
	sink := newAMQPSinkWithChannel(ch, "txsentinel.predictions")
	assert.Equal(t, "amqp", sink.Name())

	n := NewPredictionComplete(sampleTx(), "Suspicious", 0.88, fixedNow)
	require.NoError(t, sink.Publish(context.Background(), n))

	assert.Equal(t, "txsentinel.predictions", ch.exchange)
	assert.Equal(t, "prediction.Suspicious", ch.key)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, n.ID, ch.msg.MessageId)

	var env Envelope
	require.NoError(t, json.Unmarshal(ch.msg.Body, &env))
	assert.Equal(t, EventPredictionComplete, env.Type)

	require.NoError(t, sink.Close())
	assert.True(t, ch.closed)
}

func TestAMQPSink_PublishError(t *testing.T) {
	sink := newAMQPSinkWithChannel(&fakeChannel{err: amqp.ErrClosed}, "x")
	err := sink.Publish(context.Background(), notification("tx"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, amqp.ErrClosed))
}
