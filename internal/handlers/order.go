package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/models"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/service"
)

type OrderService interface {
	CreateOrders(ctx context.Context, drafts []models.OrderDraft) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, ids []int64, status models.OrderStatus) error
	BatchUpdateStatus(ctx context.Context, updates []models.StatusUpdate) error
	QueryOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
}

type OrderHandler struct {
	service OrderService
	logger  *zap.Logger
}

func NewOrderHandler(svc OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger.With(zap.String("component", "OrderHandler")),
	}
}

// BatchCreate creates every order in the request or none of them
func (h *OrderHandler) BatchCreate(c *gin.Context) {
	var req models.CreateOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	drafts := make([]models.OrderDraft, len(req.Orders))
	for i, o := range req.Orders {
		drafts[i] = o.Draft()
	}

	orders, err := h.service.CreateOrders(c.Request.Context(), drafts)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.OrdersResponse{Orders: orders})
}

// Query returns one page of orders
func (h *OrderHandler) Query(c *gin.Context) {
	var req models.QueryOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orders, err := h.service.QueryOrders(c.Request.Context(), req.Filter())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.OrdersResponse{Orders: orders})
}

// UpdateStatus moves a set of orders to one status
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req models.UpdateOrdersStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.UpdateOrderStatus(c.Request.Context(), req.OrderIDs, req.NewStatus); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{})
}

// BatchUpdateStatus applies per-order target statuses
func (h *OrderHandler) BatchUpdateStatus(c *gin.Context) {
	var req models.BatchUpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make([]models.StatusUpdate, len(req.Updates))
	for i, u := range req.Updates {
		updates[i] = models.StatusUpdate{OrderID: u.OrderID, NewStatus: u.NewStatus}
	}

	if err := h.service.BatchUpdateStatus(c.Request.Context(), updates); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{})
}

func (h *OrderHandler) writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidOrder),
		errors.Is(err, service.ErrInvalidFilter),
		errors.Is(err, service.ErrInvalidUpdate),
		errors.Is(err, service.ErrConflictingStatus),
		errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrInvalidAuditEntry):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrPublishAfterCommit):
		return http.StatusInternalServerError, service.ErrPublishAfterCommit.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
