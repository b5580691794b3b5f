package models

import "time"

type Order struct {
	ID                 int64       `json:"id"`
	CustomerID         int64       `json:"customer_id"`
	DeliveryAddress    string      `json:"delivery_address"`
	TotalPriceCents    int64       `json:"total_price_cents"`
	TotalPriceCurrency string      `json:"total_price_currency"`
	Status             OrderStatus `json:"status"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	Items              []OrderItem `json:"order_items"`
}

type OrderItem struct {
	ID            int64     `json:"id"`
	OrderID       int64     `json:"order_id"`
	ProductID     int64     `json:"product_id"`
	Quantity      int       `json:"quantity"`
	ProductTitle  string    `json:"product_title"`
	ProductURL    string    `json:"product_url"`
	PriceCents    int64     `json:"price_cents"`
	PriceCurrency string    `json:"price_currency"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OrderDraft is the input for order creation; ids and timestamps are
// assigned by the store.
type OrderDraft struct {
	CustomerID         int64
	DeliveryAddress    string
	TotalPriceCents    int64
	TotalPriceCurrency string
	Items              []OrderItemDraft
}

type OrderItemDraft struct {
	ProductID     int64
	Quantity      int
	ProductTitle  string
	ProductURL    string
	PriceCents    int64
	PriceCurrency string
}

// ItemsTotalCents sums price times quantity over the draft items.
func (d OrderDraft) ItemsTotalCents() int64 {
	var total int64
	for _, it := range d.Items {
		total += it.PriceCents * int64(it.Quantity)
	}
	return total
}

type OrderFilter struct {
	IDs          []int64
	CustomerIDs  []int64
	Page         int
	PageSize     int
	IncludeItems bool
}

func (f OrderFilter) Limit() int {
	return f.PageSize
}

func (f OrderFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// StatusUpdate is one entry of a mixed-status update.
type StatusUpdate struct {
	OrderID   int64
	NewStatus OrderStatus
}

// StatusTransition is what a status update actually changed.
type StatusTransition struct {
	OrderID   int64
	OldStatus OrderStatus
	NewStatus OrderStatus
}
