package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/models"
)

type AuditStore interface {
	BulkInsert(ctx context.Context, entries []models.AuditLogOrderUnit) (models.AuditLogAck, error)
	ListByOrder(ctx context.Context, orderID int64) ([]models.AuditLogOrder, error)
}

// AuditService is the receiving end of audit replication.
type AuditService struct {
	store  AuditStore
	logger *zap.Logger
}

func NewAuditService(store AuditStore, logger *zap.Logger) *AuditService {
	return &AuditService{
		store:  store,
		logger: logger.With(zap.String("component", "AuditService")),
	}
}

// LogOrder validates every entry and stores the batch. A single invalid
// entry rejects the whole batch.
func (s *AuditService) LogOrder(ctx context.Context, entries []models.AuditLogOrderUnit) (models.AuditLogAck, error) {
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return models.AuditLogAck{}, fmt.Errorf("entry %d: %w", i, err)
		}
	}

	ack, err := s.store.BulkInsert(ctx, entries)
	if err != nil {
		s.logger.Error("Failed to store audit entries", zap.Int("count", len(entries)), zap.Error(err))
		return models.AuditLogAck{}, err
	}

	if ack.Duplicates > 0 {
		s.logger.Info("Audit batch contained redelivered entries",
			zap.Int("logged", ack.Logged), zap.Int("duplicates", ack.Duplicates))
	}
	return ack, nil
}

func (s *AuditService) OrderHistory(ctx context.Context, orderID int64) ([]models.AuditLogOrder, error) {
	if orderID <= 0 {
		return nil, fmt.Errorf("%w: order_id must be positive", models.ErrInvalidAuditEntry)
	}
	return s.store.ListByOrder(ctx, orderID)
}
