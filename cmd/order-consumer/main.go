package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/client"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/consumer"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/logger"
	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/messaging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New("order-consumer", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg, log)
	if err != nil {
		log.Error("Order consumer failed", zap.Error(err))
	}
	_ = log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func batchConfig(cfg *config.Config, name, queue string) consumer.BatchConfig {
	return consumer.BatchConfig{
		Name:             name,
		Queue:            queue,
		MaxBatchSize:     cfg.Consumer.MaxBatchSize,
		BatchWindow:      cfg.Consumer.BatchWindow,
		FailEvery:        cfg.Consumer.FailEvery,
		RequeueOnFailure: cfg.Consumer.RequeueOnFailure,
		HandleTimeout:    cfg.Consumer.HandleTimeout,
	}
}

func auditEndpoint(ctx context.Context, cfg *config.Config, log *zap.Logger) (discovery.Endpoint, error) {
	if !cfg.Consul.Enabled {
		return discovery.StaticEndpoint(cfg.Audit.BaseURL), nil
	}
	consul, err := discovery.NewConsulClient(ctx, fmt.Sprintf("%s:%d", cfg.Consul.Host, cfg.Consul.Port), log)
	if err != nil {
		return nil, err
	}
	return discovery.NewConsulEndpoint(consul, cfg.Audit.ServiceName, cfg.Audit.BaseURL, log), nil
}

// runAll runs every consumer until all have returned. The first failure
// cancels the others.
func runAll(ctx context.Context, consumers ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range consumers {
		g.Go(func() error { return c(gctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Order consumer starting",
		zap.Int("max_batch_size", cfg.Consumer.MaxBatchSize),
		zap.Duration("batch_window", cfg.Consumer.BatchWindow),
		zap.String("order_created_mode", cfg.Consumer.OrderCreatedMode),
	)

	mq, err := messaging.NewRabbitMQ(cfg.RabbitMQURL(), messaging.Topology{
		DeadLetter:       cfg.RabbitMQ.DeadLetter,
		DeadLetterSuffix: cfg.RabbitMQ.DeadLetterSuffix,
	}, log)
	if err != nil {
		return err
	}
	defer mq.Close()

	endpoint, err := auditEndpoint(ctx, cfg, log)
	if err != nil {
		return err
	}
	audit := client.NewAuditClient(endpoint, cfg.Audit.Timeout, log)

	// Status changes always use manual acknowledgement.
	statusSub, err := mq.Consume(ctx, cfg.Queues.OrderStatusChanged, cfg.Consumer.MaxBatchSize, false)
	if err != nil {
		return err
	}
	defer statusSub.Close()
	statusConsumer, err := consumer.NewBatchConsumer(
		batchConfig(cfg, "status-audit", cfg.Queues.OrderStatusChanged),
		consumer.DecodeOrderStatusChanged,
		consumer.StatusChangedAuditHandler(audit, log),
		log,
	)
	if err != nil {
		return err
	}

	createdCfg := batchConfig(cfg, "created-audit", cfg.Queues.OrderCreated)
	createdHandler := consumer.OrderCreatedAuditHandler(audit, log)
	legacy := cfg.Consumer.OrderCreatedMode == "legacy"

	var runCreated func(context.Context, <-chan amqp.Delivery) error
	if legacy {
		runCreated = consumer.NewAutoAckConsumer(createdCfg, consumer.DecodeOrderCreated, createdHandler, log).Run
	} else {
		c, err := consumer.NewBatchConsumer(createdCfg, consumer.DecodeOrderCreated, createdHandler, log)
		if err != nil {
			return err
		}
		runCreated = c.Run
	}

	createdSub, err := mq.Consume(ctx, cfg.Queues.OrderCreated, cfg.Consumer.MaxBatchSize, legacy)
	if err != nil {
		return err
	}
	defer createdSub.Close()

	// Nothing below can fail before both consumers are running.
	err = runAll(ctx,
		func(ctx context.Context) error { return statusConsumer.Run(ctx, statusSub.Deliveries()) },
		func(ctx context.Context) error { return runCreated(ctx, createdSub.Deliveries()) },
	)
	if err != nil {
		return err
	}
	log.Info("Order consumer stopped")
	return nil
}
