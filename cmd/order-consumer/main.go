package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/app"
)

const (
	envLogLevel  = "OFS_LOG_LEVEL"
	envLogFormat = "OFS_LOG_FORMAT"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
// Некорректные значения переменных окружения не валят процесс,
// а откатываются к текстовому формату и уровню info.
func setupLogger() {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envLogFormat))) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level := log.InfoLevel
	if raw := strings.TrimSpace(os.Getenv(envLogLevel)); raw != "" {
		parsed, err := log.ParseLevel(raw)
		if err != nil {
			log.WithField("value", raw).Warn("неизвестный уровень логирования, используем info")
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
}

func main() {
	// .env необязателен: в контейнере конфигурация приходит через окружение.
	_ = godotenv.Load()

	setupLogger()
	cfg := app.ConfigFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_brokers":  cfg.KafkaBrokers,
	}).Info("запускаем order consumer")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("order consumer остановлен")
}
