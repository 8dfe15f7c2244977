package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/metrics"
	"github.com/vladislavdragonenkov/ofs/internal/pipeline"
	"github.com/vladislavdragonenkov/ofs/internal/service/delivery"
	"github.com/vladislavdragonenkov/ofs/internal/service/email"
	"github.com/vladislavdragonenkov/ofs/internal/service/fraud"
	"github.com/vladislavdragonenkov/ofs/internal/service/payment"
	"github.com/vladislavdragonenkov/ofs/internal/storage/memory"
	"github.com/vladislavdragonenkov/ofs/internal/storage/postgres"
)

// storageBackend объединяет транзакционный запуск и autocommit-доступ
// к репозиториям; его реализуют memory.Store и postgres.Store.
type storageBackend interface {
	domain.TxRunner
	Orders() domain.OrderRepository
	Products() domain.ProductRepository
	Ledger() domain.LedgerRepository
	Outbox() domain.OutboxRepository
	Timeline() domain.TimelineRepository
}

var (
	_ storageBackend = (*memory.Store)(nil)
	_ storageBackend = (*postgres.Store)(nil)
)

// runtimeDependencies — зависимости, которые собираются по конфигурации
// до запуска консьюмера и воркеров.
type runtimeDependencies struct {
	storage      storageBackend
	closeStorage func() error
	pingStorage  func(ctx context.Context) error
}

// initRuntimeDependencies выбирает хранилище по конфигурации.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		logger.Info("используем in-memory хранилище")
		return &runtimeDependencies{storage: memory.NewStore()}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires OFS_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		logger.Info("используем postgres хранилище")
		return &runtimeDependencies{
			storage:      store,
			closeStorage: store.Close,
			pingStorage:  store.Ping,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}

// buildPipeline собирает реестр категорийных хендлеров и глобальные
// проверки заказа согласно конфигурации.
func buildPipeline(cfg Config, logger *log.Entry, m *metrics.PipelineMetrics) (*pipeline.Pipeline, error) {
	deliveryCalc := delivery.NewCalculator()
	emailSender := email.NewLogSender()

	registry, err := pipeline.NewRegistry(
		pipeline.NewPhysicalHandler(deliveryCalc, logger, m),
		pipeline.NewDigitalHandler(emailSender, logger),
		pipeline.NewSubscriptionHandler(logger),
		pipeline.NewPreorderHandler(deliveryCalc, logger),
		pipeline.NewCorporateHandler(pipeline.CorporateConfig{
			CreditLimitMinor:     cfg.CorporateCreditLimitMinor,
			ReviewThresholdMinor: cfg.CorporateReviewThresholdMinor,
		}, logger),
	)
	if err != nil {
		return nil, fmt.Errorf("build handler registry: %w", err)
	}

	fraudChecker := fraud.NewPolicy(cfg.FraudThresholdMinor, cfg.FraudProbability)
	gateway := payment.NewBreakerGateway(
		payment.NewSimulatedGateway(cfg.PaymentDeclineRate, cfg.PaymentErrorRate),
	)
	globals := pipeline.DefaultGlobalHandlers(cfg.HighValueThresholdMinor, fraudChecker, gateway, logger)

	return pipeline.New(registry, globals, logger, m), nil
}
