package app

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Режимы хранения состояния саг и outbox.
const (
	StorageModeMemory   = "memory"
	StorageModePostgres = "postgres"
)

// Config описывает настройки запуска сервиса. Значения читаются из
// переменных окружения с префиксом FULFILLMENT_.
type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	StorageMode string `envconfig:"STORAGE_MODE" default:"memory"`
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	// RedisAddr переключает хранилище идемпотентности на Redis.
	// Пустое значение — идемпотентность живёт в основном хранилище.
	RedisAddr string `envconfig:"REDIS_ADDR"`

	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS"`
	ConsumerGroup      string   `envconfig:"CONSUMER_GROUP" default:"fulfillment-core"`
	ConsumerMaxRetries int      `envconfig:"CONSUMER_MAX_RETRIES" default:"3"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxRetryCeiling int           `envconfig:"OUTBOX_RETRY_CEILING" default:"5"`

	IdempotencyTTL             time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	IdempotencyCleanupInterval time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL" default:"10m"`
}

// LoadConfig читает конфигурацию из окружения и валидирует её.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("fulfillment", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageMode {
	case StorageModeMemory:
	case StorageModePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres storage mode requires FULFILLMENT_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown storage mode %q", c.StorageMode)
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("outbox batch size must be positive, got %d", c.OutboxBatchSize)
	}
	if c.OutboxRetryCeiling <= 0 {
		return fmt.Errorf("outbox retry ceiling must be positive, got %d", c.OutboxRetryCeiling)
	}
	if c.ConsumerMaxRetries < 0 {
		return fmt.Errorf("consumer max retries must be non-negative, got %d", c.ConsumerMaxRetries)
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("idempotency ttl must be positive, got %s", c.IdempotencyTTL)
	}
	return nil
}
