package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/prudhivi99/Distributed-Systems/oms-go/internal/service"
)

type Config struct {
	ServiceName string
	LogLevel    string

	HTTP     HTTPConfig
	Postgres PostgresConfig
	RabbitMQ RabbitMQConfig
	Queues   QueueConfig
	Redis    RedisConfig
	Consul   ConsulConfig
	Consumer ConsumerConfig
	Audit    AuditConfig

	PublishMode service.PublishMode
}

type HTTPConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Migrate  bool
}

type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// DeadLetter enables a "<queue><DeadLetterSuffix>" queue for rejected messages.
	DeadLetter       bool
	DeadLetterSuffix string
}

type QueueConfig struct {
	OrderCreated       string
	OrderStatusChanged string
}

type RedisConfig struct {
	Enabled bool
	Host    string
	Port    int
	TTL     time.Duration
}

type ConsulConfig struct {
	Enabled   bool
	Host      string
	Port      int
	ServiceID string
}

type ConsumerConfig struct {
	MaxBatchSize     int
	BatchWindow      time.Duration
	FailEvery        int
	RequeueOnFailure bool
	HandleTimeout    time.Duration
	// OrderCreatedMode is "batch" or "legacy".
	OrderCreatedMode string
}

type AuditConfig struct {
	ServiceName string
	BaseURL     string
	Timeout     time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "order-service"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.PublishMode, err = service.ParsePublishMode(getEnv("ORDER_PUBLISH_MODE", "")); err != nil {
		return nil, fmt.Errorf("invalid ORDER_PUBLISH_MODE: %w", err)
	}
	if cfg.HTTP.Port, err = getEnvInt("HTTP_PORT", 8082); err != nil {
		return nil, err
	}
	if cfg.HTTP.ShutdownTimeout, err = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.Postgres.Host = getEnv("POSTGRES_HOST", "localhost")
	if cfg.Postgres.Port, err = getEnvInt("POSTGRES_PORT", 5432); err != nil {
		return nil, err
	}
	cfg.Postgres.User = getEnv("POSTGRES_USER", "oms")
	cfg.Postgres.Password = getEnv("POSTGRES_PASSWORD", "oms")
	cfg.Postgres.DBName = getEnv("POSTGRES_DB", "oms")
	cfg.Postgres.SSLMode = getEnv("POSTGRES_SSLMODE", "disable")
	if cfg.Postgres.Migrate, err = getEnvBool("POSTGRES_MIGRATE", true); err != nil {
		return nil, err
	}

	cfg.RabbitMQ.Host = getEnv("RABBITMQ_HOST", "localhost")
	if cfg.RabbitMQ.Port, err = getEnvInt("RABBITMQ_PORT", 5672); err != nil {
		return nil, err
	}
	cfg.RabbitMQ.User = getEnv("RABBITMQ_USER", "guest")
	cfg.RabbitMQ.Password = getEnv("RABBITMQ_PASSWORD", "guest")
	if cfg.RabbitMQ.DeadLetter, err = getEnvBool("RABBITMQ_DEAD_LETTER", true); err != nil {
		return nil, err
	}
	cfg.RabbitMQ.DeadLetterSuffix = getEnv("RABBITMQ_DEAD_LETTER_SUFFIX", ".dlq")

	cfg.Queues.OrderCreated = getEnv("ORDER_CREATED_QUEUE", "order.created")
	cfg.Queues.OrderStatusChanged = getEnv("ORDER_STATUS_CHANGED_QUEUE", "order.status.changed")

	if cfg.Redis.Enabled, err = getEnvBool("REDIS_ENABLED", false); err != nil {
		return nil, err
	}
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	if cfg.Redis.Port, err = getEnvInt("REDIS_PORT", 6379); err != nil {
		return nil, err
	}
	if cfg.Redis.TTL, err = getEnvDuration("REDIS_TTL", 5*time.Minute); err != nil {
		return nil, err
	}

	if cfg.Consul.Enabled, err = getEnvBool("CONSUL_ENABLED", false); err != nil {
		return nil, err
	}
	cfg.Consul.Host = getEnv("CONSUL_HOST", "localhost")
	if cfg.Consul.Port, err = getEnvInt("CONSUL_PORT", 8500); err != nil {
		return nil, err
	}
	cfg.Consul.ServiceID = getEnv("CONSUL_SERVICE_ID", cfg.ServiceName+"-1")

	if cfg.Consumer.MaxBatchSize, err = getEnvInt("CONSUMER_MAX_BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.Consumer.BatchWindow, err = getEnvDuration("CONSUMER_BATCH_WINDOW", time.Second); err != nil {
		return nil, err
	}
	if cfg.Consumer.FailEvery, err = getEnvInt("CONSUMER_FAIL_EVERY", 0); err != nil {
		return nil, err
	}
	if cfg.Consumer.RequeueOnFailure, err = getEnvBool("CONSUMER_REQUEUE_ON_FAILURE", false); err != nil {
		return nil, err
	}
	if cfg.Consumer.HandleTimeout, err = getEnvDuration("CONSUMER_HANDLE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	cfg.Consumer.OrderCreatedMode = getEnv("ORDER_CREATED_CONSUMER_MODE", "batch")

	cfg.Audit.ServiceName = getEnv("AUDIT_SERVICE_NAME", "order-service")
	cfg.Audit.BaseURL = getEnv("AUDIT_BASE_URL", "http://localhost:8082")
	if cfg.Audit.Timeout, err = getEnvDuration("AUDIT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Consumer.OrderCreatedMode {
	case "batch", "legacy":
	default:
		return fmt.Errorf("invalid ORDER_CREATED_CONSUMER_MODE %q", c.Consumer.OrderCreatedMode)
	}
	if c.Consumer.MaxBatchSize <= 0 {
		return fmt.Errorf("CONSUMER_MAX_BATCH_SIZE must be positive, got %d", c.Consumer.MaxBatchSize)
	}
	if c.Consumer.BatchWindow <= 0 {
		return fmt.Errorf("CONSUMER_BATCH_WINDOW must be positive, got %s", c.Consumer.BatchWindow)
	}
	if c.Consumer.FailEvery < 0 {
		return fmt.Errorf("CONSUMER_FAIL_EVERY must not be negative, got %d", c.Consumer.FailEvery)
	}
	if c.Queues.OrderCreated == "" || c.Queues.OrderStatusChanged == "" {
		return fmt.Errorf("queue names must not be empty")
	}
	return nil
}

// PostgresDSN returns a lib/pq keyword/value connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Postgres.Host, c.Postgres.Port, c.Postgres.User, c.Postgres.Password, c.Postgres.DBName, c.Postgres.SSLMode,
	)
}

// PostgresURL returns the same connection as a postgres:// URL, the form
// golang-migrate expects.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     fmt.Sprintf("%s:%d", c.Postgres.Host, c.Postgres.Port),
		Path:     "/" + c.Postgres.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.Postgres.SSLMode),
	}
	return u.String()
}

func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
