package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("broker client closed")

// Topology controls how queues are declared. Publisher and consumer
// processes must agree on it, otherwise the second declaration fails with
// PRECONDITION_FAILED.
type Topology struct {
	DeadLetter       bool
	DeadLetterSuffix string
}

// DeadLetterQueue returns the name of the queue that rejected messages
// from name are routed to.
func (t Topology) DeadLetterQueue(name string) string {
	return name + t.DeadLetterSuffix
}

func (t Topology) queueArgs(name string) amqp.Table {
	if !t.DeadLetter {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.DeadLetterQueue(name),
	}
}

// Message is one outgoing broker message.
type Message struct {
	ID   string
	Type string
	Body []byte
}

// amqpChannel is the part of *amqp.Channel the publish path needs.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// RabbitMQ holds one connection per process. Publishing goes through a
// single shared channel guarded by mu; every consumer gets its own channel.
type RabbitMQ struct {
	conn        *amqp.Connection
	topology    Topology
	logger      *zap.Logger
	openChannel func() (amqpChannel, error)

	mu       sync.Mutex
	channel  amqpChannel
	declared map[string]bool
	closed   bool
}

func NewRabbitMQ(url string, topology Topology, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	r := newRabbitMQ(topology, logger, func() (amqpChannel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	})
	r.conn = conn

	r.mu.Lock()
	_, err = r.channelLocked()
	r.mu.Unlock()
	if err != nil {
		conn.Close()
		return nil, err
	}

	r.logger.Info("Connected to RabbitMQ", zap.Bool("dead_letter", topology.DeadLetter))
	return r, nil
}

func newRabbitMQ(topology Topology, logger *zap.Logger, open func() (amqpChannel, error)) *RabbitMQ {
	return &RabbitMQ{
		topology:    topology,
		logger:      logger.With(zap.String("component", "RabbitMQ")),
		openChannel: open,
		declared:    make(map[string]bool),
	}
}

// channelLocked returns the publish channel, reopening it when the broker
// has closed it. Callers hold mu.
func (r *RabbitMQ) channelLocked() (amqpChannel, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.channel != nil && !r.channel.IsClosed() {
		return r.channel, nil
	}
	if r.channel != nil {
		r.logger.Warn("Publish channel closed by broker, reopening")
	}
	ch, err := r.openChannel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	r.channel = ch
	return ch, nil
}

func (r *RabbitMQ) declare(ch amqpChannel, name string) error {
	if r.topology.DeadLetter {
		dlq := r.topology.DeadLetterQueue(name)
		if _, err := ch.QueueDeclare(dlq, false, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead-letter queue %s: %w", dlq, err)
		}
	}
	_, err := ch.QueueDeclare(
		name,                       // queue name
		false,                      // durable
		false,                      // auto-delete
		false,                      // exclusive
		false,                      // no-wait
		r.topology.queueArgs(name), // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

// DeclareQueue creates the queue (and its dead-letter queue) if needed.
// Repeated calls for the same name are no-ops. The AMQP declare itself
// cannot be interrupted, so ctx is checked before it is sent.
func (r *RabbitMQ) DeclareQueue(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.declareLocked(name)
}

func (r *RabbitMQ) declareLocked(name string) error {
	if r.declared[name] {
		return nil
	}
	ch, err := r.channelLocked()
	if err != nil {
		return err
	}
	if err := r.declare(ch, name); err != nil {
		return err
	}
	r.declared[name] = true
	r.logger.Info("Queue declared", zap.String("queue", name))
	return nil
}

// Publish sends msgs to queue through the default exchange. The publish
// channel is held for the whole call. Messages are independent: on failure
// the ones before it have already been handed to the broker.
func (r *RabbitMQ) Publish(ctx context.Context, queue string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.declareLocked(queue); err != nil {
		return err
	}
	ch, err := r.channelLocked()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i, m := range msgs {
		err := ch.PublishWithContext(ctx,
			"",    // exchange
			queue, // routing key (queue name)
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Transient,
				MessageId:    m.ID,
				Type:         m.Type,
				Timestamp:    now,
				Body:         m.Body,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to publish message %d/%d to %s (%d already sent): %w", i+1, len(msgs), queue, i, err)
		}
	}

	r.logger.Debug("Messages published", zap.String("queue", queue), zap.Int("count", len(msgs)))
	return nil
}

// Subscription is one consumer's dedicated channel and delivery stream.
type Subscription struct {
	channel    *amqp.Channel
	tag        string
	deliveries <-chan amqp.Delivery
}

func (s *Subscription) Deliveries() <-chan amqp.Delivery {
	return s.deliveries
}

// Close cancels the consumer and closes its channel. Unacknowledged
// deliveries are returned to the queue by the broker.
func (s *Subscription) Close() error {
	if err := s.channel.Cancel(s.tag, false); err != nil && !s.channel.IsClosed() {
		s.channel.Close()
		return fmt.Errorf("failed to cancel consumer %s: %w", s.tag, err)
	}
	if s.channel.IsClosed() {
		return nil
	}
	return s.channel.Close()
}

// Consume opens a channel dedicated to one consumer, declares queue on it,
// applies prefetch and starts delivery.
func (r *RabbitMQ) Consume(ctx context.Context, queue string, prefetch int, autoAck bool) (*Subscription, error) {
	if r.conn == nil {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}

	if err := r.declare(ch, queue); err != nil {
		ch.Close()
		return nil, err
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			ch.Close()
			return nil, fmt.Errorf("failed to set prefetch on %s: %w", queue, err)
		}
	}

	tag := fmt.Sprintf("%s-%d", queue, time.Now().UnixNano())
	deliveries, err := ch.Consume(
		queue,   // queue name
		tag,     // consumer tag
		autoAck, // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	r.logger.Info("Listening on queue",
		zap.String("queue", queue),
		zap.Int("prefetch", prefetch),
		zap.Bool("auto_ack", autoAck),
	)
	return &Subscription{channel: ch, tag: tag, deliveries: deliveries}, nil
}

// Close closes the publish channel and the connection.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.channel != nil && !r.channel.IsClosed() {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
