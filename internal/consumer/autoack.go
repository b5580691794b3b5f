package consumer

import (
	"context"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AutoAckConsumer handles one message at a time from a subscription opened
// with auto-ack: the broker forgets each message once delivered, so a
// message that fails to decode or to be handled is only logged and lost.
// Only Name, Queue and HandleTimeout of the config apply; there is no
// batching and no forced failure.
//
// Deprecated: use BatchConsumer. Kept for deployments that still rely on
// the old order.created contract.
type AutoAckConsumer[T any] struct {
	cfg     BatchConfig
	decode  Decoder[T]
	handle  BatchHandler[T]
	logger  *zap.Logger
	handled atomic.Int64
}

func NewAutoAckConsumer[T any](cfg BatchConfig, decode Decoder[T], handler BatchHandler[T], logger *zap.Logger) *AutoAckConsumer[T] {
	return &AutoAckConsumer[T]{
		cfg:    cfg,
		decode: decode,
		handle: handler,
		logger: logger.With(zap.String("consumer", cfg.Name), zap.String("queue", cfg.Queue), zap.Bool("legacy", true)),
	}
}

// HandledMessages reports how many decoded messages reached the handler.
func (c *AutoAckConsumer[T]) HandledMessages() int64 {
	return c.handled.Load()
}

// Run consumes until ctx is cancelled (returns nil) or the channel closes
// (returns ErrDeliveriesClosed).
func (c *AutoAckConsumer[T]) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	c.logger.Info("Consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Warn("Delivery channel closed")
				return ErrDeliveriesClosed
			}
			c.process(ctx, d)
		}
	}
}

func (c *AutoAckConsumer[T]) process(ctx context.Context, d amqp.Delivery) {
	events, err := c.decode(d)
	if err != nil {
		c.logger.Error("Dropping undecodable message", zap.String("message_id", d.MessageId), zap.Error(err))
		return
	}

	envelopes := make([]Envelope[T], 0, len(events))
	for _, e := range events {
		envelopes = append(envelopes, Envelope[T]{MessageID: d.MessageId, Redelivered: d.Redelivered, Event: e})
	}
	c.handled.Add(1)

	if c.cfg.HandleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.HandleTimeout)
		defer cancel()
	}
	start := time.Now()
	if err := c.handle(ctx, envelopes); err != nil {
		c.logger.Error("Message lost",
			zap.String("message_id", d.MessageId),
			zap.Int("events", len(envelopes)),
			zap.Error(err),
		)
		return
	}
	c.logger.Debug("Message handled", zap.String("message_id", d.MessageId), zap.Duration("took", time.Since(start)))
}
