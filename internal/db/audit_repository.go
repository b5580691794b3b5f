package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/models"
)

type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewAuditRepository(database *PostgresDB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     database.Conn,
		logger: logger.With(zap.String("component", "AuditRepository")),
	}
}

// BulkInsert writes one ledger row per entry in a single transaction.
// Entries whose (event_id, order_id, order_item_id, new_status) already
// exist are skipped and counted as duplicates. Entries without an event id
// are always inserted.
func (r *AuditRepository) BulkInsert(ctx context.Context, entries []models.AuditLogOrderUnit) (models.AuditLogAck, error) {
	var ack models.AuditLogAck
	if len(entries) == 0 {
		return ack, nil
	}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO audit_log_order (event_id, order_id, order_item_id, customer_id, old_status, new_status)
			VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6)
			ON CONFLICT (event_id, order_id, order_item_id, new_status) DO NOTHING
			RETURNING id
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare audit insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			var id int64
			err := stmt.QueryRowContext(ctx,
				e.EventID, e.OrderID, e.OrderItemID, e.CustomerID, e.OldStatus, e.NewStatus,
			).Scan(&id)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				ack.Duplicates++
			case err != nil:
				return fmt.Errorf("failed to insert audit entry for order %d: %w", e.OrderID, err)
			default:
				ack.Logged++
			}
		}
		return nil
	})
	if err != nil {
		return models.AuditLogAck{}, err
	}

	r.logger.Debug("Audit entries stored", zap.Int("logged", ack.Logged), zap.Int("duplicates", ack.Duplicates))
	return ack, nil
}

// ListByOrder returns the ledger for one order, oldest first.
func (r *AuditRepository) ListByOrder(ctx context.Context, orderID int64) ([]models.AuditLogOrder, error) {
	query := `
		SELECT id, COALESCE(event_id, ''), order_id, order_item_id, customer_id, old_status, new_status, created_at
		FROM audit_log_order
		WHERE order_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := []models.AuditLogOrder{}
	for rows.Next() {
		var (
			e   models.AuditLogOrder
			old sql.NullString
		)
		err := rows.Scan(&e.ID, &e.EventID, &e.OrderID, &e.OrderItemID, &e.CustomerID, &old, &e.NewStatus, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if old.Valid {
			st, err := models.ParseOrderStatus(old.String)
			if err != nil {
				return nil, err
			}
			e.OldStatus = &st
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return entries, nil
}
