package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/models"
)

type AuditService interface {
	LogOrder(ctx context.Context, entries []models.AuditLogOrderUnit) (models.AuditLogAck, error)
	OrderHistory(ctx context.Context, orderID int64) ([]models.AuditLogOrder, error)
}

type AuditHandler struct {
	service AuditService
	logger  *zap.Logger
}

func NewAuditHandler(svc AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		service: svc,
		logger:  logger.With(zap.String("component", "AuditHandler")),
	}
}

// LogOrder stores a batch of audit entries
func (h *AuditHandler) LogOrder(c *gin.Context) {
	var entries []models.AuditLogOrderUnit
	if err := c.ShouldBindJSON(&entries); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ack, err := h.service.LogOrder(c.Request.Context(), entries)
	if err != nil {
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Failed to log audit entries", zap.Int("count", len(entries)), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, ack)
}

// OrderHistory returns the audit ledger of one order
func (h *AuditHandler) OrderHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
		return
	}

	entries, err := h.service.OrderHistory(c.Request.Context(), id)
	if err != nil {
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
