package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	ErrDeliveriesClosed = errors.New("delivery channel closed")
	ErrForcedFailure    = errors.New("forced batch failure")
)

// Envelope is one decoded event plus the broker metadata a handler needs
// for idempotency.
type Envelope[T any] struct {
	MessageID   string
	Redelivered bool
	Event       T
}

// Decoder turns one delivery into zero or more events. An error marks the
// delivery as poison.
type Decoder[T any] func(d amqp.Delivery) ([]T, error)

// BatchHandler processes one batch. A non-nil error fails every delivery
// in the batch.
type BatchHandler[T any] func(ctx context.Context, batch []Envelope[T]) error

type BatchConfig struct {
	Name  string
	Queue string
	// MaxBatchSize bounds the number of deliveries per batch.
	MaxBatchSize int
	// BatchWindow is measured from the first delivery of a batch.
	BatchWindow time.Duration
	// FailEvery > 0 forces every FailEvery-th batch to fail.
	FailEvery        int
	RequeueOnFailure bool
	HandleTimeout    time.Duration
}

func (c BatchConfig) validate() error {
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("max batch size must be positive, got %d", c.MaxBatchSize)
	}
	if c.BatchWindow <= 0 {
		return fmt.Errorf("batch window must be positive, got %s", c.BatchWindow)
	}
	if c.FailEvery < 0 {
		return fmt.Errorf("fail every must not be negative, got %d", c.FailEvery)
	}
	return nil
}

type BatchConsumer[T any] struct {
	cfg     BatchConfig
	decode  Decoder[T]
	handle  BatchHandler[T]
	logger  *zap.Logger
	handled atomic.Int64
}

func NewBatchConsumer[T any](cfg BatchConfig, decode Decoder[T], handler BatchHandler[T], logger *zap.Logger) (*BatchConsumer[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("consumer %s: %w", cfg.Name, err)
	}
	return &BatchConsumer[T]{
		cfg:    cfg,
		decode: decode,
		handle: handler,
		logger: logger.With(zap.String("consumer", cfg.Name), zap.String("queue", cfg.Queue)),
	}, nil
}

// HandledBatches reports how many batches have been handed to the handler
// or failed on purpose.
func (c *BatchConsumer[T]) HandledBatches() int64 {
	return c.handled.Load()
}

type batch[T any] struct {
	deliveries []amqp.Delivery
	events     []Envelope[T]
}

func (b *batch[T]) empty() bool { return len(b.deliveries) == 0 }

func (b *batch[T]) reset() {
	b.deliveries = nil
	b.events = nil
}

// Run consumes deliveries until ctx is cancelled or the channel closes.
// Deliveries accumulate until MaxBatchSize is reached or BatchWindow has
// passed since the first one, then the batch is handled and settled.
// On cancellation the pending deliveries are requeued and Run returns nil.
func (c *BatchConsumer[T]) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	c.logger.Info("Consumer started",
		zap.Int("max_batch_size", c.cfg.MaxBatchSize),
		zap.Duration("batch_window", c.cfg.BatchWindow),
		zap.Int("fail_every", c.cfg.FailEvery),
	)

	var (
		pending batch[T]
		timer   *time.Timer
		window  <-chan time.Time
	)
	stopWindow := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, window = nil, nil
	}
	flush := func() {
		stopWindow()
		c.handleBatch(ctx, pending.deliveries, pending.events)
		pending.reset()
	}

	for {
		select {
		case <-ctx.Done():
			stopWindow()
			c.requeue(pending.deliveries)
			c.logger.Info("Consumer stopped", zap.Int("requeued", len(pending.deliveries)))
			return nil

		case d, ok := <-deliveries:
			if !ok {
				stopWindow()
				c.logger.Warn("Delivery channel closed", zap.Int("unsettled", len(pending.deliveries)))
				return ErrDeliveriesClosed
			}

			events, err := c.decode(d)
			if err != nil {
				c.reject(d, err)
				continue
			}

			if pending.empty() {
				timer = time.NewTimer(c.cfg.BatchWindow)
				window = timer.C
			}
			pending.deliveries = append(pending.deliveries, d)
			for _, e := range events {
				pending.events = append(pending.events, Envelope[T]{
					MessageID:   d.MessageId,
					Redelivered: d.Redelivered,
					Event:       e,
				})
			}

			if len(pending.deliveries) >= c.cfg.MaxBatchSize {
				flush()
			}

		case <-window:
			flush()
		}
	}
}

func (c *BatchConsumer[T]) handleBatch(ctx context.Context, deliveries []amqp.Delivery, events []Envelope[T]) {
	n := c.handled.Add(1)
	start := time.Now()

	var err error
	if c.cfg.FailEvery > 0 && n%int64(c.cfg.FailEvery) == 0 {
		err = ErrForcedFailure
	} else if len(events) > 0 {
		err = c.invoke(ctx, events)
	}

	fields := []zap.Field{
		zap.Int64("batch", n),
		zap.Int("deliveries", len(deliveries)),
		zap.Int("events", len(events)),
		zap.Duration("took", time.Since(start)),
	}

	if err != nil {
		// Shutdown interrupted the handler; the work was not rejected.
		requeue := c.cfg.RequeueOnFailure || ctx.Err() != nil
		c.logger.Error("Batch failed", append(fields, zap.Bool("requeue", requeue), zap.Error(err))...)
		for _, d := range deliveries {
			if nErr := d.Nack(false, requeue); nErr != nil {
				c.logger.Error("Failed to nack delivery", zap.Uint64("tag", d.DeliveryTag), zap.Error(nErr))
			}
		}
		return
	}

	for _, d := range deliveries {
		if aErr := d.Ack(false); aErr != nil {
			c.logger.Error("Failed to ack delivery", zap.Uint64("tag", d.DeliveryTag), zap.Error(aErr))
		}
	}
	c.logger.Info("Batch handled", fields...)
}

func (c *BatchConsumer[T]) invoke(ctx context.Context, events []Envelope[T]) error {
	if c.cfg.HandleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.HandleTimeout)
		defer cancel()
	}
	return c.handle(ctx, events)
}

// reject drops a delivery that cannot be decoded. With a dead-letter
// queue configured the broker moves it there.
func (c *BatchConsumer[T]) reject(d amqp.Delivery, cause error) {
	c.logger.Warn("Rejecting undecodable delivery",
		zap.String("message_id", d.MessageId),
		zap.String("type", d.Type),
		zap.Error(cause),
	)
	if err := d.Nack(false, false); err != nil {
		c.logger.Error("Failed to reject delivery", zap.Uint64("tag", d.DeliveryTag), zap.Error(err))
	}
}

func (c *BatchConsumer[T]) requeue(deliveries []amqp.Delivery) {
	for _, d := range deliveries {
		if err := d.Nack(false, true); err != nil {
			c.logger.Error("Failed to requeue delivery", zap.Uint64("tag", d.DeliveryTag), zap.Error(err))
		}
	}
}
