package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/models"
)

type memAuditStore struct {
	seen    map[string]bool
	entries []models.AuditLogOrderUnit
	err     error
}

func (m *memAuditStore) BulkInsert(_ context.Context, entries []models.AuditLogOrderUnit) (models.AuditLogAck, error) {
	if m.err != nil {
		return models.AuditLogAck{}, m.err
	}
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	var ack models.AuditLogAck
	for _, e := range entries {
		key := e.EventID + "/" + string(e.NewStatus)
		if e.EventID != "" && m.seen[key] {
			ack.Duplicates++
			continue
		}
		m.seen[key] = true
		m.entries = append(m.entries, e)
		ack.Logged++
	}
	return ack, nil
}

func (m *memAuditStore) ListByOrder(_ context.Context, orderID int64) ([]models.AuditLogOrder, error) {
	out := []models.AuditLogOrder{}
	for _, e := range m.entries {
		if e.OrderID == orderID {
			out = append(out, models.AuditLogOrder{OrderID: e.OrderID, NewStatus: e.NewStatus})
		}
	}
	return out, nil
}

func TestAuditServiceLogOrder(t *testing.T) {
	store := &memAuditStore{}
	svc := NewAuditService(store, zap.NewNop())
	ctx := context.Background()

	entries := []models.AuditLogOrderUnit{
		{EventID: "m1", OrderID: 1, OrderItemID: 10, CustomerID: 3, NewStatus: models.OrderStatusCreated},
	}
	ack, err := svc.LogOrder(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, models.AuditLogAck{Logged: 1}, ack)

	ack, err = svc.LogOrder(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, models.AuditLogAck{Duplicates: 1}, ack)

	history, err := svc.OrderHistory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAuditServiceRejectsInvalidBatch(t *testing.T) {
	store := &memAuditStore{}
	svc := NewAuditService(store, zap.NewNop())

	_, err := svc.LogOrder(context.Background(), []models.AuditLogOrderUnit{
		{OrderID: 1, NewStatus: models.OrderStatusCreated},
		{OrderID: 0, NewStatus: models.OrderStatusCreated},
	})
	assert.ErrorIs(t, err, models.ErrInvalidAuditEntry)
	assert.Empty(t, store.entries)

	_, err = svc.OrderHistory(context.Background(), 0)
	assert.ErrorIs(t, err, models.ErrInvalidAuditEntry)
}

func TestAuditServiceStoreError(t *testing.T) {
	store := &memAuditStore{err: errors.New("db down")}
	svc := NewAuditService(store, zap.NewNop())

	_, err := svc.LogOrder(context.Background(), []models.AuditLogOrderUnit{{OrderID: 1, NewStatus: models.OrderStatusCreated}})
	assert.ErrorIs(t, err, store.err)
}
