package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/models"
)

type fakeBroker struct {
	declared  []string
	published map[string][]messaging.Message
	err       error
}

func (f *fakeBroker) DeclareQueue(_ context.Context, name string) error {
	f.declared = append(f.declared, name)
	return nil
}

func (f *fakeBroker) Publish(_ context.Context, queue string, msgs ...messaging.Message) error {
	if f.err != nil {
		return f.err
	}
	if f.published == nil {
		f.published = make(map[string][]messaging.Message)
	}
	f.published[queue] = append(f.published[queue], msgs...)
	return nil
}

var testQueues = Queues{OrderCreated: "created", OrderStatusChanged: "status"}

func TestNewOrderPublisherDeclaresQueues(t *testing.T) {
	b := &fakeBroker{}
	_, err := NewOrderPublisher(context.Background(), b, testQueues, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"created", "status"}, b.declared)
}

func TestPublishOrderCreatedRoutesByEventType(t *testing.T) {
	b := &fakeBroker{}
	p, err := NewOrderPublisher(context.Background(), b, testQueues, zap.NewNop())
	require.NoError(t, err)

	events := []models.OrderCreatedEvent{{OrderID: 1}, {OrderID: 2}}
	require.NoError(t, p.PublishOrderCreated(context.Background(), events))

	msgs := b.published["created"]
	require.Len(t, msgs, 2)
	assert.Empty(t, b.published["status"])
	assert.Equal(t, "order.created", msgs[0].Type)
	assert.NotEmpty(t, msgs[0].ID)
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)

	ev, err := models.DecodeEvent(msgs[1].Body)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ev.(models.OrderCreatedEvent).OrderID)
}

func TestPublishOrderStatusChanged(t *testing.T) {
	b := &fakeBroker{}
	p, err := NewOrderPublisher(context.Background(), b, testQueues, zap.NewNop())
	require.NoError(t, err)

	events := []models.OrderStatusChangedEvent{
		{OrderID: 5, OldStatus: models.OrderStatusCreated, NewStatus: models.OrderStatusCancelled},
	}
	require.NoError(t, p.PublishOrderStatusChanged(context.Background(), events))

	msgs := b.published["status"]
	require.Len(t, msgs, 1)
	assert.Equal(t, "order.status.changed", msgs[0].Type)
	assert.JSONEq(t, `{"type":"order.status.changed","order_id":5,"old_status":"Created","new_status":"Cancelled"}`, string(msgs[0].Body))
}

func TestPublishEmptyIsNoop(t *testing.T) {
	b := &fakeBroker{err: errors.New("should not be called")}
	p, err := NewOrderPublisher(context.Background(), b, testQueues, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, p.PublishOrderCreated(context.Background(), nil))
}

func TestPublishWrapsBrokerError(t *testing.T) {
	boom := errors.New("boom")
	b := &fakeBroker{err: boom}
	p, err := NewOrderPublisher(context.Background(), b, testQueues, zap.NewNop())
	require.NoError(t, err)

	err = p.PublishOrderStatusChanged(context.Background(), []models.OrderStatusChangedEvent{{OrderID: 1, NewStatus: models.OrderStatusCreated}})
	assert.ErrorIs(t, err, boom)
}
