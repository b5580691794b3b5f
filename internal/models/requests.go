package models

type CreateOrdersRequest struct {
	Orders []CreateOrderRequest `json:"orders" binding:"required,min=1,dive"`
}

type CreateOrderRequest struct {
	CustomerID         int64                    `json:"customer_id" binding:"required,gt=0"`
	DeliveryAddress    string                   `json:"delivery_address" binding:"required"`
	TotalPriceCents    int64                    `json:"total_price_cents" binding:"gte=0"`
	TotalPriceCurrency string                   `json:"total_price_currency" binding:"required,len=3"`
	OrderItems         []CreateOrderItemRequest `json:"order_items" binding:"required,min=1,dive"`
}

type CreateOrderItemRequest struct {
	ProductID     int64  `json:"product_id" binding:"required,gt=0"`
	Quantity      int    `json:"quantity" binding:"required,gt=0"`
	ProductTitle  string `json:"product_title"`
	ProductURL    string `json:"product_url"`
	PriceCents    int64  `json:"price_cents" binding:"gte=0"`
	PriceCurrency string `json:"price_currency" binding:"required,len=3"`
}

func (r CreateOrderRequest) Draft() OrderDraft {
	d := OrderDraft{
		CustomerID:         r.CustomerID,
		DeliveryAddress:    r.DeliveryAddress,
		TotalPriceCents:    r.TotalPriceCents,
		TotalPriceCurrency: r.TotalPriceCurrency,
		Items:              make([]OrderItemDraft, len(r.OrderItems)),
	}
	for i, it := range r.OrderItems {
		d.Items[i] = OrderItemDraft{
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			ProductTitle:  it.ProductTitle,
			ProductURL:    it.ProductURL,
			PriceCents:    it.PriceCents,
			PriceCurrency: it.PriceCurrency,
		}
	}
	return d
}

type OrdersResponse struct {
	Orders []Order `json:"orders"`
}

type QueryOrdersRequest struct {
	IDs               []int64 `json:"ids" binding:"omitempty,dive,gt=0"`
	CustomerIDs       []int64 `json:"customer_ids" binding:"omitempty,dive,gt=0"`
	Page              int     `json:"page" binding:"required,gt=0"`
	PageSize          int     `json:"page_size" binding:"required,gt=0,lte=1000"`
	IncludeOrderItems bool    `json:"include_order_items"`
}

func (r QueryOrdersRequest) Filter() OrderFilter {
	return OrderFilter{
		IDs:          r.IDs,
		CustomerIDs:  r.CustomerIDs,
		Page:         r.Page,
		PageSize:     r.PageSize,
		IncludeItems: r.IncludeOrderItems,
	}
}

type UpdateOrdersStatusRequest struct {
	OrderIDs  []int64     `json:"order_ids" binding:"required,min=1,dive,gt=0"`
	NewStatus OrderStatus `json:"new_status" binding:"required"`
}

type BatchUpdateStatusRequest struct {
	Updates []StatusUpdateRequest `json:"updates" binding:"required,min=1,dive"`
}

type StatusUpdateRequest struct {
	OrderID   int64       `json:"order_id" binding:"required,gt=0"`
	NewStatus OrderStatus `json:"new_status" binding:"required"`
}
