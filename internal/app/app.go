package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/ofs/internal/health"
	"github.com/vladislavdragonenkov/ofs/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ofs/internal/metrics"
	"github.com/vladislavdragonenkov/ofs/internal/service/ledger"
	"github.com/vladislavdragonenkov/ofs/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/ofs/internal/service/outbox"
	"github.com/vladislavdragonenkov/ofs/internal/version"
)

// Run собирает зависимости и запускает консьюмер заказов вместе с
// outbox-воркером, очисткой ledger и HTTP-сервером метрик. Блокируется
// до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if deps.closeStorage == nil {
			return
		}
		if err := deps.closeStorage(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	pipelineMetrics := metrics.NewPipelineMetrics()
	lifecycleMetrics := metrics.NewLifecycleMetrics()

	pipe, err := buildPipeline(cfg, logger, pipelineMetrics)
	if err != nil {
		return err
	}
	svc := lifecycle.NewService(deps.storage, pipe, lifecycleMetrics, cfg.LedgerTTL)

	// Kafka опционален: без брокеров работают только воркеры и метрики,
	// что удобно для локальной разработки.
	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Warn("продолжаем без kafka")
		producer = nil
	}

	var consumer *kafka.Consumer
	if producer != nil {
		consumer, err = initOrderConsumer(cfg, svc.HandleMessage, producer)
		if err != nil {
			closeKafka(producer, logger)
			return err
		}
		if err := consumer.Start(ctx); err != nil {
			closeKafka(producer, logger)
			return err
		}
	} else {
		logger.Warn("kafka не настроен, консьюмер заказов не запущен")
	}

	var wg sync.WaitGroup

	if producer != nil {
		publisher := kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents)
		dlqPublisher := kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
		outboxWorker := outbox.NewWorker(
			deps.storage.Outbox(),
			publisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			outboxWorker.Run(ctx)
		}()
	}

	cleanupWorker := ledger.NewCleanupWorker(
		deps.storage.Ledger(),
		ledger.WithLogger(logger.WithField("component", "ledger-cleanup")),
		ledger.WithInterval(cfg.LedgerCleanupInterval),
		ledger.WithBatchSize(cfg.LedgerCleanupBatchSize),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanupWorker.Run(ctx)
	}()

	healthHandler := healthcheck.NewHandler(version.String())
	if deps.pingStorage != nil {
		ping := deps.pingStorage
		healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return ping(checkCtx)
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	logger.Info("сервис обработки заказов запущен")
	<-ctx.Done()
	logger.Info("получен сигнал остановки, завершаем работу")

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
	wg.Wait()
	shutdownHTTP(metricsSrv, logger)
	closeKafka(producer, logger)

	return ctx.Err()
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.Handle("/readyz", healthHandler)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
