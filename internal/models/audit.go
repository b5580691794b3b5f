package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidAuditEntry = errors.New("invalid audit entry")

// AuditLogOrderUnit is one ledger entry as sent to the audit endpoint.
// OrderItemID and CustomerID are zero for status changes, which are
// recorded per order rather than per item.
type AuditLogOrderUnit struct {
	EventID     string       `json:"event_id,omitempty"`
	OrderID     int64        `json:"order_id"`
	OrderItemID int64        `json:"order_item_id"`
	CustomerID  int64        `json:"customer_id"`
	OldStatus   *OrderStatus `json:"old_status,omitempty"`
	NewStatus   OrderStatus  `json:"new_status"`
}

func (u AuditLogOrderUnit) Validate() error {
	if u.OrderID <= 0 {
		return fmt.Errorf("%w: order_id must be positive", ErrInvalidAuditEntry)
	}
	if u.OrderItemID < 0 || u.CustomerID < 0 {
		return fmt.Errorf("%w: negative id", ErrInvalidAuditEntry)
	}
	if !u.NewStatus.Valid() {
		return fmt.Errorf("%w: new_status %q", ErrInvalidAuditEntry, u.NewStatus)
	}
	if u.OldStatus != nil && !u.OldStatus.Valid() {
		return fmt.Errorf("%w: old_status %q", ErrInvalidAuditEntry, *u.OldStatus)
	}
	return nil
}

// AuditLogOrder is a persisted ledger row.
type AuditLogOrder struct {
	ID          int64        `json:"id"`
	EventID     string       `json:"event_id"`
	OrderID     int64        `json:"order_id"`
	OrderItemID int64        `json:"order_item_id"`
	CustomerID  int64        `json:"customer_id"`
	OldStatus   *OrderStatus `json:"old_status,omitempty"`
	NewStatus   OrderStatus  `json:"new_status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// AuditLogAck is the audit endpoint's response.
type AuditLogAck struct {
	Logged     int `json:"logged"`
	Duplicates int `json:"duplicates"`
}
