package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/db"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/logger"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/publisher"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg, log)
	if err != nil {
		log.Error("Order service failed", zap.Error(err))
	}
	_ = log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func connectPostgres(ctx context.Context, cfg *config.Config, log *zap.Logger) (*db.PostgresDB, error) {
	const maxRetries = 10
	var lastErr error
	for i := 1; i <= maxRetries; i++ {
		database, err := db.NewPostgresDB(ctx, cfg.PostgresDSN(), log)
		if err == nil {
			return database, nil
		}
		lastErr = err
		log.Warn("Database not ready, retrying", zap.Int("attempt", i), zap.Int("max", maxRetries), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("database unavailable after %d attempts: %w", maxRetries, lastErr)
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Order service starting", zap.Int("port", cfg.HTTP.Port), zap.String("publish_mode", string(cfg.PublishMode)))

	// Connect to PostgreSQL
	database, err := connectPostgres(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.Postgres.Migrate {
		if err := db.Migrate(cfg.PostgresURL(), log); err != nil {
			return err
		}
	}

	// Connect to RabbitMQ
	mq, err := messaging.NewRabbitMQ(cfg.RabbitMQURL(), messaging.Topology{
		DeadLetter:       cfg.RabbitMQ.DeadLetter,
		DeadLetterSuffix: cfg.RabbitMQ.DeadLetterSuffix,
	}, log)
	if err != nil {
		return err
	}
	defer mq.Close()

	orderPublisher, err := publisher.NewOrderPublisher(ctx, mq, publisher.Queues{
		OrderCreated:       cfg.Queues.OrderCreated,
		OrderStatusChanged: cfg.Queues.OrderStatusChanged,
	}, log)
	if err != nil {
		return err
	}

	var orderStore db.OrderStore = db.NewOrderRepository(database, log)
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(ctx, fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port), cfg.Redis.TTL, log)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		orderStore = db.NewCachedOrderRepository(orderStore, redisCache, log)
	}

	orderService := service.NewOrderService(orderStore, orderPublisher, cfg.PublishMode, log)
	auditService := service.NewAuditService(db.NewAuditRepository(database, log), log)

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(cfg.ServiceName,
		handlers.NewOrderHandler(orderService, log),
		handlers.NewAuditHandler(auditService, log),
		log,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.Consul.Enabled {
		consul, err := discovery.NewConsulClient(ctx, fmt.Sprintf("%s:%d", cfg.Consul.Host, cfg.Consul.Port), log)
		if err != nil {
			return err
		}
		err = consul.Register(ctx, discovery.ServiceConfig{
			Name: cfg.ServiceName,
			ID:   cfg.Consul.ServiceID,
			Port: cfg.HTTP.Port,
			Tags: []string{"api", "orders", "audit"},
		})
		if err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := consul.Deregister(dctx, cfg.Consul.ServiceID); err != nil {
				log.Warn("Failed to deregister", zap.Error(err))
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down HTTP server")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Order service stopped")
	return nil
}
