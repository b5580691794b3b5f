package publisher

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/models"
)

// Broker is the subset of messaging.RabbitMQ the publisher depends on.
type Broker interface {
	DeclareQueue(ctx context.Context, name string) error
	Publish(ctx context.Context, queue string, msgs ...messaging.Message) error
}

type Queues struct {
	OrderCreated       string
	OrderStatusChanged string
}

type OrderPublisher struct {
	broker Broker
	queues Queues
	logger *zap.Logger
	newID  func() string
}

func NewOrderPublisher(ctx context.Context, broker Broker, queues Queues, logger *zap.Logger) (*OrderPublisher, error) {
	for _, q := range []string{queues.OrderCreated, queues.OrderStatusChanged} {
		if err := broker.DeclareQueue(ctx, q); err != nil {
			return nil, err
		}
	}

	return &OrderPublisher{
		broker: broker,
		queues: queues,
		logger: logger.With(zap.String("component", "OrderPublisher")),
		newID:  func() string { return uuid.NewString() },
	}, nil
}

// PublishOrderCreated publishes one order.created message per event
func (p *OrderPublisher) PublishOrderCreated(ctx context.Context, events []models.OrderCreatedEvent) error {
	return publish(ctx, p, p.queues.OrderCreated, events)
}

// PublishOrderStatusChanged publishes one order.status.changed message per event
func (p *OrderPublisher) PublishOrderStatusChanged(ctx context.Context, events []models.OrderStatusChangedEvent) error {
	return publish(ctx, p, p.queues.OrderStatusChanged, events)
}

func publish[E models.Event](ctx context.Context, p *OrderPublisher, queue string, events []E) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]messaging.Message, 0, len(events))
	for _, e := range events {
		body, err := models.EncodeEvent(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, messaging.Message{
			ID:   p.newID(),
			Type: string(e.EventType()),
			Body: body,
		})
	}

	if err := p.broker.Publish(ctx, queue, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d events to %s: %w", len(msgs), queue, err)
	}

	p.logger.Info("Published events", zap.String("queue", queue), zap.Int("count", len(msgs)))
	return nil
}
