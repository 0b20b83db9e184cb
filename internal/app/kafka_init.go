package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
)

// consumerTopics — все topic'и, которые слушает процесс: триггеры и
// outcome-события для оркестраторов плюс командные topic'и участников.
var consumerTopics = []string{
	kafka.TopicSagaTriggers,
	kafka.TopicSagaEvents,
	kafka.TopicInventoryCommands,
	kafka.TopicPaymentCommands,
	kafka.TopicOrderCommands,
	kafka.TopicCartCommands,
	kafka.TopicReturnsCommands,
}

// initKafkaProducer инициализирует Kafka producer, если brokers заданы.
// Возвращает nil, nil при пустом списке brokers.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// closeKafkaProducer закрывает producer, если он был создан.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// initKafkaConsumer создаёт consumer group с DLQ-продьюсером для
// отравленных сообщений.
func initKafkaConsumer(cfg Config, router *kafka.Router, dlqProducer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	consumer, err := kafka.NewConsumerWithDLQ(
		cfg.KafkaBrokers,
		cfg.ConsumerGroup,
		consumerTopics,
		router.HandleMessage,
		dlqProducer,
		cfg.ConsumerMaxRetries,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer")
		return nil, err
	}

	logger.WithField("group", cfg.ConsumerGroup).Info("kafka consumer initialized")
	return consumer, nil
}
