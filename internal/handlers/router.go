package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("HTTP request", fields...)
			return
		}
		logger.Info("HTTP request", fields...)
	}
}

// HealthCheck returns server status
func HealthCheck(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": service})
	}
}

// NewRouter wires every order-service route.
func NewRouter(service string, orders *OrderHandler, audit *AuditHandler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger.With(zap.String("component", "HTTP"))))

	router.GET("/health", HealthCheck(service))

	v1 := router.Group("/api/v1")
	{
		order := v1.Group("/order")
		order.POST("/batch-create", orders.BatchCreate)
		order.POST("/query", orders.Query)
		order.PUT("/status", orders.UpdateStatus)
		order.PUT("/status/batch", orders.BatchUpdateStatus)

		a := v1.Group("/audit")
		a.POST("/log-order", audit.LogOrder)
		a.GET("/orders/:id", audit.OrderHistory)
	}

	return router
}
