package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMalformedEvent   = errors.New("malformed event")
)

// EventType is the wire discriminator; it doubles as the routing key.
type EventType string

const (
	EventOrderCreated            EventType = "order.created"
	EventOrderStatusChanged      EventType = "order.status.changed"
	EventOrderStatusChangedBatch EventType = "order.status.changed.batch"
)

// Event is implemented by every domain event published to the broker.
type Event interface {
	EventType() EventType
	Validate() error
}

// OrderCreatedEvent is published once per created order and embeds that
// order's items.
type OrderCreatedEvent struct {
	OrderID            int64       `json:"order_id"`
	CustomerID         int64       `json:"customer_id"`
	DeliveryAddress    string      `json:"delivery_address"`
	TotalPriceCents    int64       `json:"total_price_cents"`
	TotalPriceCurrency string      `json:"total_price_currency"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	OrderItems         []OrderItem `json:"order_items"`
}

func NewOrderCreatedEvent(o Order) OrderCreatedEvent {
	items := make([]OrderItem, len(o.Items))
	copy(items, o.Items)
	return OrderCreatedEvent{
		OrderID:            o.ID,
		CustomerID:         o.CustomerID,
		DeliveryAddress:    o.DeliveryAddress,
		TotalPriceCents:    o.TotalPriceCents,
		TotalPriceCurrency: o.TotalPriceCurrency,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		OrderItems:         items,
	}
}

func (OrderCreatedEvent) EventType() EventType { return EventOrderCreated }

func (e OrderCreatedEvent) Validate() error {
	if e.OrderID <= 0 {
		return fmt.Errorf("%w: order_id must be positive", ErrMalformedEvent)
	}
	for _, it := range e.OrderItems {
		if it.OrderID != e.OrderID {
			return fmt.Errorf("%w: item %d belongs to order %d", ErrMalformedEvent, it.ID, it.OrderID)
		}
	}
	return nil
}

func (e OrderCreatedEvent) MarshalJSON() ([]byte, error) {
	type alias OrderCreatedEvent
	return json.Marshal(struct {
		Type EventType `json:"type"`
		alias
	}{e.EventType(), alias(e)})
}

// OrderStatusChangedEvent is the single-order status change. OldStatus is
// empty when the publisher did not know the prior status.
type OrderStatusChangedEvent struct {
	OrderID   int64       `json:"order_id"`
	OldStatus OrderStatus `json:"old_status,omitempty"`
	NewStatus OrderStatus `json:"new_status"`
}

func (OrderStatusChangedEvent) EventType() EventType { return EventOrderStatusChanged }

func (e OrderStatusChangedEvent) Validate() error {
	if e.OrderID <= 0 {
		return fmt.Errorf("%w: order_id must be positive", ErrMalformedEvent)
	}
	if !e.NewStatus.Valid() {
		return fmt.Errorf("%w: new_status %q", ErrMalformedEvent, e.NewStatus)
	}
	if e.OldStatus != "" && !e.OldStatus.Valid() {
		return fmt.Errorf("%w: old_status %q", ErrMalformedEvent, e.OldStatus)
	}
	return nil
}

func (e OrderStatusChangedEvent) MarshalJSON() ([]byte, error) {
	type alias OrderStatusChangedEvent
	return json.Marshal(struct {
		Type EventType `json:"type"`
		alias
	}{e.EventType(), alias(e)})
}

// OrderStatusChangedBatchEvent carries one status for many orders. It is
// accepted on the status queue alongside the single-order form.
type OrderStatusChangedBatchEvent struct {
	OrderIDs  []int64     `json:"order_ids"`
	NewStatus OrderStatus `json:"new_status"`
}

func (OrderStatusChangedBatchEvent) EventType() EventType { return EventOrderStatusChangedBatch }

func (e OrderStatusChangedBatchEvent) Validate() error {
	if len(e.OrderIDs) == 0 {
		return fmt.Errorf("%w: order_ids must not be empty", ErrMalformedEvent)
	}
	for _, id := range e.OrderIDs {
		if id <= 0 {
			return fmt.Errorf("%w: order_id must be positive", ErrMalformedEvent)
		}
	}
	if !e.NewStatus.Valid() {
		return fmt.Errorf("%w: new_status %q", ErrMalformedEvent, e.NewStatus)
	}
	return nil
}

// Expand converts the batch form into single-order events.
func (e OrderStatusChangedBatchEvent) Expand() []OrderStatusChangedEvent {
	out := make([]OrderStatusChangedEvent, len(e.OrderIDs))
	for i, id := range e.OrderIDs {
		out[i] = OrderStatusChangedEvent{OrderID: id, NewStatus: e.NewStatus}
	}
	return out
}

func (e OrderStatusChangedBatchEvent) MarshalJSON() ([]byte, error) {
	type alias OrderStatusChangedBatchEvent
	return json.Marshal(struct {
		Type EventType `json:"type"`
		alias
	}{e.EventType(), alias(e)})
}

// EncodeEvent returns the wire form of e.
func EncodeEvent(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", e.EventType(), err)
	}
	return data, nil
}

// DecodeEvent reads the type discriminator and decodes into the matching
// concrete event. The returned event has passed Validate.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var (
		ev  Event
		err error
	)
	switch head.Type {
	case EventOrderCreated:
		var e OrderCreatedEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventOrderStatusChanged:
		var e OrderStatusChangedEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case EventOrderStatusChangedBatch:
		var e OrderStatusChangedBatchEvent
		err = json.Unmarshal(data, &e)
		ev = e
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}
