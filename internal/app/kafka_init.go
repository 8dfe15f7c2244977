package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/messaging/kafka"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	if brokers == "" {
		return nil, nil
	}

	brokerList := splitBrokers(brokers)
	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// initOrderConsumer создаёт consumer group над топиком входящих заказов.
// DLQ-producer используется для сообщений, исчерпавших retry-бюджет.
func initOrderConsumer(cfg Config, handler kafka.MessageHandler, dlqProducer *kafka.Producer) (*kafka.Consumer, error) {
	brokerList := splitBrokers(cfg.KafkaBrokers)
	topics := []string{kafka.TopicOrderCreated}

	if dlqProducer != nil {
		return kafka.NewConsumerWithDLQ(brokerList, cfg.KafkaGroupID, topics, handler, dlqProducer, cfg.ConsumerMaxRetries)
	}
	return kafka.NewConsumer(brokerList, cfg.KafkaGroupID, topics, handler)
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

func splitBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
