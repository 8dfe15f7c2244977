package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	// StorageDriverMemory — встроенное in-memory хранилище для разработки и тестов.
	StorageDriverMemory StorageDriver = "memory"
	// StorageDriverPostgres — PostgreSQL через database/sql + pgx stdlib драйвер.
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска консьюмера заказов.
type Config struct {
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers — список брокеров через запятую. Пустое значение
	// отключает Kafka: приложение поднимает только воркеры и метрики.
	KafkaBrokers       string
	KafkaGroupID       string
	ConsumerMaxRetries int

	LedgerTTL              time.Duration
	LedgerCleanupInterval  time.Duration
	LedgerCleanupBatchSize int

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	// HighValueThresholdMinor — сумма, выше которой заказ уходит
	// на ручную проверку.
	HighValueThresholdMinor int64
	FraudThresholdMinor     int64
	FraudProbability        float64
	PaymentDeclineRate      float64
	PaymentErrorRate        float64

	CorporateCreditLimitMinor     int64
	CorporateReviewThresholdMinor int64
}

// DefaultConfig возвращает настройки по умолчанию для локального запуска.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaGroupID:       "ofs-order-consumer",
		ConsumerMaxRetries: 3,

		LedgerTTL:              24 * time.Hour,
		LedgerCleanupInterval:  time.Hour,
		LedgerCleanupBatchSize: 500,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  5,
		OutboxRetryDelay:   2 * time.Second,

		HighValueThresholdMinor: 1_000_000,
		FraudThresholdMinor:     2_000_000,
		FraudProbability:        0.3,
		PaymentDeclineRate:      0.05,
		PaymentErrorRate:        0.02,

		CorporateCreditLimitMinor:     10_000_000,
		CorporateReviewThresholdMinor: 5_000_000,
	}
}

// ConfigFromEnv строит конфигурацию из переменных окружения OFS_*,
// начиная с дефолтов DefaultConfig.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.MetricsAddr = envString("OFS_METRICS_ADDR", cfg.MetricsAddr)
	if v := envString("OFS_STORAGE_DRIVER", string(cfg.StorageDriver)); v != "" {
		cfg.StorageDriver = StorageDriver(strings.ToLower(v))
	}
	cfg.PostgresDSN = envString("OFS_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresAutoMigrate = envBool("OFS_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)

	cfg.KafkaBrokers = envString("OFS_KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaGroupID = envString("OFS_KAFKA_GROUP_ID", cfg.KafkaGroupID)
	cfg.ConsumerMaxRetries = envInt("OFS_CONSUMER_MAX_RETRIES", cfg.ConsumerMaxRetries)

	cfg.LedgerTTL = envDuration("OFS_LEDGER_TTL", cfg.LedgerTTL)
	cfg.LedgerCleanupInterval = envDuration("OFS_LEDGER_CLEANUP_INTERVAL", cfg.LedgerCleanupInterval)
	cfg.LedgerCleanupBatchSize = envInt("OFS_LEDGER_CLEANUP_BATCH_SIZE", cfg.LedgerCleanupBatchSize)

	cfg.OutboxPollInterval = envDuration("OFS_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = envInt("OFS_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = envInt("OFS_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.OutboxRetryDelay = envDuration("OFS_OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay)

	cfg.HighValueThresholdMinor = envInt64("OFS_HIGH_VALUE_THRESHOLD_MINOR", cfg.HighValueThresholdMinor)
	cfg.FraudThresholdMinor = envInt64("OFS_FRAUD_THRESHOLD_MINOR", cfg.FraudThresholdMinor)
	cfg.FraudProbability = envFloat("OFS_FRAUD_PROBABILITY", cfg.FraudProbability)
	cfg.PaymentDeclineRate = envFloat("OFS_PAYMENT_DECLINE_RATE", cfg.PaymentDeclineRate)
	cfg.PaymentErrorRate = envFloat("OFS_PAYMENT_ERROR_RATE", cfg.PaymentErrorRate)

	cfg.CorporateCreditLimitMinor = envInt64("OFS_CORPORATE_CREDIT_LIMIT_MINOR", cfg.CorporateCreditLimitMinor)
	cfg.CorporateReviewThresholdMinor = envInt64("OFS_CORPORATE_REVIEW_THRESHOLD_MINOR", cfg.CorporateReviewThresholdMinor)

	return cfg
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
