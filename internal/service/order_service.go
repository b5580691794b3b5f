package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/db"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/models"
)

// PublishMode decides whether events go out before or after the
// transaction commits.
type PublishMode string

const (
	// PublishBeforeCommit publishes inside the transaction. A publish
	// failure rolls the write back, but a commit failure after a successful
	// publish leaves consumers with events for rows that do not exist.
	PublishBeforeCommit PublishMode = "before-commit"
	// PublishAfterCommit commits first. A publish failure is reported to
	// the caller after the rows are already durable.
	PublishAfterCommit PublishMode = "after-commit"
)

func ParsePublishMode(s string) (PublishMode, error) {
	switch m := PublishMode(strings.ToLower(strings.TrimSpace(s))); m {
	case PublishBeforeCommit, PublishAfterCommit:
		return m, nil
	case "":
		return PublishBeforeCommit, nil
	default:
		return "", fmt.Errorf("unknown publish mode %q", s)
	}
}

const maxPageSize = 1000

type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, events []models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, events []models.OrderStatusChangedEvent) error
}

type OrderService struct {
	store     db.OrderStore
	publisher EventPublisher
	mode      PublishMode
	logger    *zap.Logger
}

func NewOrderService(store db.OrderStore, publisher EventPublisher, mode PublishMode, logger *zap.Logger) *OrderService {
	if mode == "" {
		mode = PublishBeforeCommit
	}
	return &OrderService{
		store:     store,
		publisher: publisher,
		mode:      mode,
		logger:    logger.With(zap.String("component", "OrderService")),
	}
}

func validateDraft(d *models.OrderDraft) error {
	switch {
	case d.CustomerID <= 0:
		return fmt.Errorf("%w: customer_id must be positive", ErrInvalidOrder)
	case strings.TrimSpace(d.DeliveryAddress) == "":
		return fmt.Errorf("%w: delivery_address is required", ErrInvalidOrder)
	case strings.TrimSpace(d.TotalPriceCurrency) == "":
		return fmt.Errorf("%w: total_price_currency is required", ErrInvalidOrder)
	case d.TotalPriceCents < 0:
		return fmt.Errorf("%w: total_price_cents must not be negative", ErrInvalidOrder)
	case len(d.Items) == 0:
		return fmt.Errorf("%w: order has no items", ErrInvalidOrder)
	}

	for i, it := range d.Items {
		switch {
		case it.ProductID <= 0:
			return fmt.Errorf("%w: item %d: product_id must be positive", ErrInvalidOrder, i)
		case it.Quantity <= 0:
			return fmt.Errorf("%w: item %d: quantity must be positive", ErrInvalidOrder, i)
		case it.PriceCents < 0:
			return fmt.Errorf("%w: item %d: price_cents must not be negative", ErrInvalidOrder, i)
		case strings.TrimSpace(it.PriceCurrency) == "":
			return fmt.Errorf("%w: item %d: price_currency is required", ErrInvalidOrder, i)
		}
	}

	if d.TotalPriceCents == 0 {
		d.TotalPriceCents = d.ItemsTotalCents()
	}
	return nil
}

// CreateOrders stores every draft with its items in one transaction and
// publishes one order.created event per order. Either all orders are
// created or none are.
func (s *OrderService) CreateOrders(ctx context.Context, drafts []models.OrderDraft) ([]models.Order, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: no orders given", ErrInvalidOrder)
	}
	drafts = append([]models.OrderDraft(nil), drafts...)
	for i := range drafts {
		if err := validateDraft(&drafts[i]); err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
	}

	var (
		orders []models.Order
		events []models.OrderCreatedEvent
	)
	err := s.store.WithTx(ctx, func(w db.OrderWriter) error {
		var err error
		orders, err = w.InsertOrders(ctx, drafts)
		if err != nil {
			return err
		}

		var items []models.OrderItem
		for i, d := range drafts {
			for _, it := range d.Items {
				items = append(items, models.OrderItem{
					OrderID:       orders[i].ID,
					ProductID:     it.ProductID,
					Quantity:      it.Quantity,
					ProductTitle:  it.ProductTitle,
					ProductURL:    it.ProductURL,
					PriceCents:    it.PriceCents,
					PriceCurrency: it.PriceCurrency,
				})
			}
		}
		stored, err := w.InsertItems(ctx, items)
		if err != nil {
			return err
		}

		byOrder := make(map[int64][]models.OrderItem, len(orders))
		for _, it := range stored {
			byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
		}
		events = make([]models.OrderCreatedEvent, len(orders))
		for i := range orders {
			orders[i].Items = byOrder[orders[i].ID]
			events[i] = models.NewOrderCreatedEvent(orders[i])
		}

		if s.mode == PublishBeforeCommit {
			return s.publisher.PublishOrderCreated(ctx, events)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create orders", zap.Int("count", len(drafts)), zap.Error(err))
		return nil, err
	}

	if s.mode == PublishAfterCommit {
		if err := s.publisher.PublishOrderCreated(ctx, events); err != nil {
			s.logger.Error("Orders committed but not published", zap.Int("count", len(orders)), zap.Error(err))
			return orders, fmt.Errorf("%w: %v", ErrPublishAfterCommit, err)
		}
	}

	s.logger.Info("Orders created", zap.Int("count", len(orders)))
	return orders, nil
}

// UpdateOrderStatus moves every order in ids to status.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, ids []int64, status models.OrderStatus) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no order ids given", ErrInvalidUpdate)
	}
	updates := make([]models.StatusUpdate, len(ids))
	for i, id := range ids {
		updates[i] = models.StatusUpdate{OrderID: id, NewStatus: status}
	}
	return s.BatchUpdateStatus(ctx, updates)
}

// BatchUpdateStatus applies a mix of target statuses in one transaction,
// one bulk update per distinct status, and publishes one
// order.status.changed event per affected order.
func (s *OrderService) BatchUpdateStatus(ctx context.Context, updates []models.StatusUpdate) error {
	groups, total, err := groupUpdates(updates)
	if err != nil {
		return err
	}

	var events []models.OrderStatusChangedEvent
	err = s.store.WithTx(ctx, func(w db.OrderWriter) error {
		var transitions []models.StatusTransition
		for _, status := range models.OrderStatuses {
			ids, ok := groups[status]
			if !ok {
				continue
			}
			t, err := w.UpdateStatus(ctx, ids, status)
			if err != nil {
				return err
			}
			transitions = append(transitions, t...)
		}

		if len(transitions) != total {
			return fmt.Errorf("%w: %v", ErrOrderNotFound, missingIDs(groups, transitions))
		}

		sort.Slice(transitions, func(i, j int) bool { return transitions[i].OrderID < transitions[j].OrderID })
		events = make([]models.OrderStatusChangedEvent, len(transitions))
		for i, t := range transitions {
			events[i] = models.OrderStatusChangedEvent{OrderID: t.OrderID, OldStatus: t.OldStatus, NewStatus: t.NewStatus}
		}

		if s.mode == PublishBeforeCommit {
			return s.publisher.PublishOrderStatusChanged(ctx, events)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update order status", zap.Int("count", total), zap.Error(err))
		return err
	}

	if s.mode == PublishAfterCommit {
		if err := s.publisher.PublishOrderStatusChanged(ctx, events); err != nil {
			s.logger.Error("Status committed but not published", zap.Int("count", total), zap.Error(err))
			return fmt.Errorf("%w: %v", ErrPublishAfterCommit, err)
		}
	}

	s.logger.Info("Order status updated", zap.Int("count", total), zap.Int("statuses", len(groups)))
	return nil
}

// groupUpdates validates updates, collapses repeated ids and groups the
// ids by target status. Each id list is sorted.
func groupUpdates(updates []models.StatusUpdate) (map[models.OrderStatus][]int64, int, error) {
	if len(updates) == 0 {
		return nil, 0, fmt.Errorf("%w: no updates given", ErrInvalidUpdate)
	}

	target := make(map[int64]models.OrderStatus, len(updates))
	for _, u := range updates {
		if u.OrderID <= 0 {
			return nil, 0, fmt.Errorf("%w: order id %d", ErrInvalidUpdate, u.OrderID)
		}
		if !u.NewStatus.Valid() {
			return nil, 0, fmt.Errorf("%w: %w", ErrInvalidUpdate, models.ErrInvalidStatus)
		}
		if prev, ok := target[u.OrderID]; ok && prev != u.NewStatus {
			return nil, 0, fmt.Errorf("%w: order %d to %s and %s", ErrConflictingStatus, u.OrderID, prev, u.NewStatus)
		}
		target[u.OrderID] = u.NewStatus
	}

	groups := make(map[models.OrderStatus][]int64)
	for id, st := range target {
		groups[st] = append(groups[st], id)
	}
	for _, ids := range groups {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return groups, len(target), nil
}

func missingIDs(groups map[models.OrderStatus][]int64, transitions []models.StatusTransition) []int64 {
	found := make(map[int64]bool, len(transitions))
	for _, t := range transitions {
		found[t.OrderID] = true
	}
	var missing []int64
	for _, ids := range groups {
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// QueryOrders is read-only. No match yields an empty slice.
func (s *OrderService) QueryOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	if filter.Page < 1 {
		return nil, fmt.Errorf("%w: page must be at least 1", ErrInvalidFilter)
	}
	if filter.PageSize < 1 || filter.PageSize > maxPageSize {
		return nil, fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidFilter, maxPageSize)
	}
	for _, ids := range [][]int64{filter.IDs, filter.CustomerIDs} {
		for _, id := range ids {
			if id <= 0 {
				return nil, fmt.Errorf("%w: ids must be positive", ErrInvalidFilter)
			}
		}
	}

	orders, err := s.store.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}
