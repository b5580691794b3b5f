package messaging

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type declareCall struct {
	name string
	args amqp.Table
}

type fakeChannel struct {
	declares  []declareCall
	published []amqp.Publishing
	keys      []string
	failAt    int
	closed    bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.declares = append(f.declares, declareCall{name: name, args: args})
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.failAt > 0 && len(f.published)+1 == f.failAt {
		f.closed = true
		return errors.New("channel/connection is not open")
	}
	f.published = append(f.published, msg)
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeChannel) IsClosed() bool { return f.closed }

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func newTestBroker(t *testing.T, topology Topology, channels ...*fakeChannel) (*RabbitMQ, *int) {
	t.Helper()
	opened := 0
	r := newRabbitMQ(topology, zap.NewNop(), func() (amqpChannel, error) {
		if opened >= len(channels) {
			return nil, errors.New("no more channels")
		}
		ch := channels[opened]
		opened++
		return ch, nil
	})
	return r, &opened
}

func TestTopologyQueueArgs(t *testing.T) {
	assert.Nil(t, Topology{}.queueArgs("order.created"))

	args := Topology{DeadLetter: true, DeadLetterSuffix: ".dlq"}.queueArgs("order.created")
	assert.Equal(t, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": "order.created.dlq",
	}, args)
}

func TestDeclareQueueIsIdempotent(t *testing.T) {
	ch := &fakeChannel{}
	r, _ := newTestBroker(t, Topology{DeadLetter: true, DeadLetterSuffix: ".dlq"}, ch)

	require.NoError(t, r.DeclareQueue(context.Background(), "order.created"))
	require.NoError(t, r.DeclareQueue(context.Background(), "order.created"))

	require.Len(t, ch.declares, 2)
	assert.Equal(t, "order.created.dlq", ch.declares[0].name)
	assert.Nil(t, ch.declares[0].args)
	assert.Equal(t, "order.created", ch.declares[1].name)
	assert.Equal(t, "order.created.dlq", ch.declares[1].args["x-dead-letter-routing-key"])
}

func TestDeclareQueueHonoursCancelledContext(t *testing.T) {
	ch := &fakeChannel{}
	r, _ := newTestBroker(t, Topology{}, ch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.DeclareQueue(ctx, "order.created"), context.Canceled)
	assert.Empty(t, ch.declares)
}

func TestPublishSendsEachMessage(t *testing.T) {
	ch := &fakeChannel{}
	r, _ := newTestBroker(t, Topology{}, ch)

	err := r.Publish(context.Background(), "order.status.changed",
		Message{ID: "a", Type: "order.status.changed", Body: []byte(`{}`)},
		Message{ID: "b", Type: "order.status.changed", Body: []byte(`{}`)},
	)
	require.NoError(t, err)

	require.Len(t, ch.published, 2)
	assert.Equal(t, []string{"order.status.changed", "order.status.changed"}, ch.keys)
	assert.Equal(t, "a", ch.published[0].MessageId)
	assert.Equal(t, "b", ch.published[1].MessageId)
	assert.Equal(t, "order.status.changed", ch.published[0].Type)
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Len(t, ch.declares, 1)
}

func TestPublishReportsPartialProgressAndReopens(t *testing.T) {
	first := &fakeChannel{failAt: 2}
	second := &fakeChannel{}
	r, opened := newTestBroker(t, Topology{}, first, second)

	err := r.Publish(context.Background(), "q",
		Message{ID: "1"}, Message{ID: "2"}, Message{ID: "3"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 already sent")
	assert.Len(t, first.published, 1)

	require.NoError(t, r.Publish(context.Background(), "q", Message{ID: "4"}))
	assert.Equal(t, 2, *opened)
	require.Len(t, second.published, 1)
	assert.Equal(t, "4", second.published[0].MessageId)
}

func TestPublishAfterClose(t *testing.T) {
	r, _ := newTestBroker(t, Topology{}, &fakeChannel{})
	require.NoError(t, r.Close())

	err := r.Publish(context.Background(), "q", Message{ID: "1"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublishNothing(t *testing.T) {
	r, opened := newTestBroker(t, Topology{})
	require.NoError(t, r.Publish(context.Background(), "q"))
	assert.Equal(t, 0, *opened)
}
