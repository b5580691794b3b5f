package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/models"
)

// OrderWriter is the write side of the order store. It is only handed out
// inside a transaction.
type OrderWriter interface {
	InsertOrders(ctx context.Context, drafts []models.OrderDraft) ([]models.Order, error)
	InsertItems(ctx context.Context, items []models.OrderItem) ([]models.OrderItem, error)
	UpdateStatus(ctx context.Context, ids []int64, status models.OrderStatus) ([]models.StatusTransition, error)
}

type OrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOrderRepository(database *PostgresDB, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{
		db:     database.Conn,
		logger: logger.With(zap.String("component", "OrderRepository")),
	}
}

// WithTx runs fn with a writer bound to a single transaction.
func (r *OrderRepository) WithTx(ctx context.Context, fn func(w OrderWriter) error) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(&orderWriter{q: tx})
	})
}

type orderWriter struct {
	q Querier
}

// InsertOrders inserts one row per draft with status Created and returns
// the stored orders in draft order.
func (w *orderWriter) InsertOrders(ctx context.Context, drafts []models.OrderDraft) ([]models.Order, error) {
	stmt, err := w.q.PrepareContext(ctx, `
		INSERT INTO orders (customer_id, delivery_address, total_price_cents, total_price_currency, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, status, created_at, updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare order insert: %w", err)
	}
	defer stmt.Close()

	orders := make([]models.Order, len(drafts))
	for i, d := range drafts {
		o := models.Order{
			CustomerID:         d.CustomerID,
			DeliveryAddress:    d.DeliveryAddress,
			TotalPriceCents:    d.TotalPriceCents,
			TotalPriceCurrency: d.TotalPriceCurrency,
		}
		err := stmt.QueryRowContext(ctx,
			d.CustomerID, d.DeliveryAddress, d.TotalPriceCents, d.TotalPriceCurrency, models.OrderStatusCreated,
		).Scan(&o.ID, &o.Status, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert order: %w", err)
		}
		orders[i] = o
	}
	return orders, nil
}

// InsertItems stores items whose OrderID is already set and returns them
// with ids and timestamps filled in.
func (w *orderWriter) InsertItems(ctx context.Context, items []models.OrderItem) ([]models.OrderItem, error) {
	stmt, err := w.q.PrepareContext(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, product_title, product_url, price_cents, price_currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare order item insert: %w", err)
	}
	defer stmt.Close()

	out := make([]models.OrderItem, len(items))
	for i, it := range items {
		err := stmt.QueryRowContext(ctx,
			it.OrderID, it.ProductID, it.Quantity, it.ProductTitle, it.ProductURL, it.PriceCents, it.PriceCurrency,
		).Scan(&it.ID, &it.CreatedAt, &it.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert order item for order %d: %w", it.OrderID, err)
		}
		out[i] = it
	}
	return out, nil
}

// UpdateStatus sets status on every existing order in ids and returns one
// transition per updated row, carrying the status the row had before.
// Ids that do not exist are simply absent from the result.
func (w *orderWriter) UpdateStatus(ctx context.Context, ids []int64, status models.OrderStatus) ([]models.StatusTransition, error) {
	query := `
		UPDATE orders o
		SET status = $1, updated_at = NOW()
		FROM (SELECT id, status FROM orders WHERE id = ANY($2) FOR UPDATE) prev
		WHERE o.id = prev.id
		RETURNING o.id, prev.status
	`
	rows, err := w.q.QueryContext(ctx, query, status, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	defer rows.Close()

	var transitions []models.StatusTransition
	for rows.Next() {
		t := models.StatusTransition{NewStatus: status}
		if err := rows.Scan(&t.OrderID, &t.OldStatus); err != nil {
			return nil, fmt.Errorf("failed to scan status transition: %w", err)
		}
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read status transitions: %w", err)
	}

	sort.Slice(transitions, func(i, j int) bool { return transitions[i].OrderID < transitions[j].OrderID })
	return transitions, nil
}

// Query returns one page of orders matching filter, ordered by id. The
// result is never nil.
func (r *OrderRepository) Query(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	query := `
		SELECT id, customer_id, delivery_address, total_price_cents, total_price_currency, status, created_at, updated_at
		FROM orders
		WHERE (COALESCE(cardinality($1::bigint[]), 0) = 0 OR id = ANY($1))
		  AND (COALESCE(cardinality($2::bigint[]), 0) = 0 OR customer_id = ANY($2))
		ORDER BY id
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, query,
		pq.Array(filter.IDs), pq.Array(filter.CustomerIDs), filter.Limit(), filter.Offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var o models.Order
		err := rows.Scan(&o.ID, &o.CustomerID, &o.DeliveryAddress, &o.TotalPriceCents,
			&o.TotalPriceCurrency, &o.Status, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}

	if !filter.IncludeItems || len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := queryItems(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []models.OrderItem{}
		}
	}
	return orders, nil
}

func queryItems(ctx context.Context, q Querier, orderIDs []int64) (map[int64][]models.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, quantity, product_title, product_url, price_cents, price_currency, created_at, updated_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`
	rows, err := q.QueryContext(ctx, query, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[int64][]models.OrderItem, len(orderIDs))
	for rows.Next() {
		var it models.OrderItem
		err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.ProductTitle,
			&it.ProductURL, &it.PriceCents, &it.PriceCurrency, &it.CreatedAt, &it.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items[it.OrderID] = append(items[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}
	return items, nil
}
