package consumer

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/models"
)

// AuditLogger is implemented by client.AuditClient.
type AuditLogger interface {
	LogOrder(ctx context.Context, entries []models.AuditLogOrderUnit) (*models.AuditLogAck, error)
}

// DecodeOrderCreated accepts only order.created messages.
func DecodeOrderCreated(d amqp.Delivery) ([]models.OrderCreatedEvent, error) {
	ev, err := models.DecodeEvent(d.Body)
	if err != nil {
		return nil, err
	}
	created, ok := ev.(models.OrderCreatedEvent)
	if !ok {
		return nil, fmt.Errorf("%w: %s on order.created queue", models.ErrUnknownEventType, ev.EventType())
	}
	return []models.OrderCreatedEvent{created}, nil
}

// DecodeOrderStatusChanged accepts the single-order form and expands the
// multi-order form into one event per order.
func DecodeOrderStatusChanged(d amqp.Delivery) ([]models.OrderStatusChangedEvent, error) {
	ev, err := models.DecodeEvent(d.Body)
	if err != nil {
		return nil, err
	}
	switch e := ev.(type) {
	case models.OrderStatusChangedEvent:
		return []models.OrderStatusChangedEvent{e}, nil
	case models.OrderStatusChangedBatchEvent:
		return e.Expand(), nil
	default:
		return nil, fmt.Errorf("%w: %s on status queue", models.ErrUnknownEventType, ev.EventType())
	}
}

// OrderCreatedAuditHandler records one Created entry per order item.
func OrderCreatedAuditHandler(audit AuditLogger, logger *zap.Logger) BatchHandler[models.OrderCreatedEvent] {
	logger = logger.With(zap.String("component", "OrderCreatedAudit"))
	return func(ctx context.Context, batch []Envelope[models.OrderCreatedEvent]) error {
		var entries []models.AuditLogOrderUnit
		for _, env := range batch {
			ev := env.Event
			if len(ev.OrderItems) == 0 {
				entries = append(entries, models.AuditLogOrderUnit{
					EventID:    env.MessageID,
					OrderID:    ev.OrderID,
					CustomerID: ev.CustomerID,
					NewStatus:  models.OrderStatusCreated,
				})
				continue
			}
			for _, it := range ev.OrderItems {
				entries = append(entries, models.AuditLogOrderUnit{
					EventID:     env.MessageID,
					OrderID:     ev.OrderID,
					OrderItemID: it.ID,
					CustomerID:  ev.CustomerID,
					NewStatus:   models.OrderStatusCreated,
				})
			}
		}
		return forward(ctx, audit, logger, entries)
	}
}

// StatusChangedAuditHandler records one entry per status change.
func StatusChangedAuditHandler(audit AuditLogger, logger *zap.Logger) BatchHandler[models.OrderStatusChangedEvent] {
	logger = logger.With(zap.String("component", "StatusChangedAudit"))
	return func(ctx context.Context, batch []Envelope[models.OrderStatusChangedEvent]) error {
		entries := make([]models.AuditLogOrderUnit, 0, len(batch))
		for _, env := range batch {
			entry := models.AuditLogOrderUnit{
				EventID:   env.MessageID,
				OrderID:   env.Event.OrderID,
				NewStatus: env.Event.NewStatus,
			}
			if env.Event.OldStatus != "" {
				old := env.Event.OldStatus
				entry.OldStatus = &old
			}
			entries = append(entries, entry)
		}
		return forward(ctx, audit, logger, entries)
	}
}

func forward(ctx context.Context, audit AuditLogger, logger *zap.Logger, entries []models.AuditLogOrderUnit) error {
	if len(entries) == 0 {
		return nil
	}
	ack, err := audit.LogOrder(ctx, entries)
	if err != nil {
		return fmt.Errorf("failed to replicate %d audit entries: %w", len(entries), err)
	}
	logger.Info("Audit entries replicated",
		zap.Int("entries", len(entries)),
		zap.Int("logged", ack.Logged),
		zap.Int("duplicates", ack.Duplicates),
	)
	return nil
}
