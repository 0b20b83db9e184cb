package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
)

// MessageHandler обрабатывает сообщение из Kafka.
// Возврат ошибки означает, что сообщение будет доставлено повторно
// (или уйдёт в DLQ после maxRetries).
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer — Kafka consumer group с retry и dead letter queue.
type Consumer struct {
	consumer   sarama.ConsumerGroup
	topics     []string
	handler    MessageHandler
	logger     *log.Entry
	wg         sync.WaitGroup
	producer   *Producer
	maxRetries int
}

// NewConsumer создаёт consumer без DLQ: необработанное сообщение
// остаётся незакоммиченным и будет доставлено снова.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler) (*Consumer, error) {
	return NewConsumerWithDLQ(brokers, groupID, topics, handler, nil, 3)
}

// NewConsumerWithDLQ создаёт consumer с retry через перевыпуск: неудачно
// обработанное сообщение публикуется producer'ом обратно в свой topic
// с инкрементом x-retry-count, а после maxRetries попыток уходит в DLQ.
func NewConsumerWithDLQ(brokers []string, groupID string, topics []string, handler MessageHandler, producer *Producer, maxRetries int) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return &Consumer{
		consumer:   consumer,
		topics:     topics,
		handler:    handler,
		logger:     log.WithField("component", "kafka-consumer"),
		producer:   producer,
		maxRetries: maxRetries,
	}, nil
}

// Start запускает consumer loop.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume завершается при rebalance, поэтому вызывается в цикле
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop останавливает consumer и дожидается завершения goroutine.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте consumer session.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении consumer session.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения из partition.
// Offset двигается только когда сообщение обработано, перевыпущено
// с инкрементом счётчика ретраев или отправлено в DLQ. При ошибке
// claim завершается: MarkMessage более поздних сообщений не должен
// закоммитить offset поверх необработанного.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}).Debug("received message")

			if err := c.handleWithRetry(session.Context(), message); err != nil {
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Error("message processing failed, restarting claim from last committed offset")
				return err
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// handleWithRetry вызывает handler. Неудачная обработка ниже лимита
// перевыпускает сообщение в исходный topic с инкрементом x-retry-count;
// на лимите сообщение уходит в DLQ. В обоих случаях возвращается nil
// и offset исходного сообщения можно двигать. Без producer'а ошибка
// поднимается наверх, и сообщение будет доставлено снова.
func (c *Consumer) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	err := c.handler(ctx, message)
	if err == nil {
		return nil
	}

	retryCount := c.retryCount(message)
	if c.producer == nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"topic":       message.Topic,
			"retry_count": retryCount,
		}).Warn("message processing failed, will retry")
		return err
	}

	if retryCount < c.maxRetries {
		if pubErr := c.republishForRetry(message, retryCount+1); pubErr != nil {
			c.logger.WithError(pubErr).Error("failed to republish message for retry")
			return fmt.Errorf("republish for retry: %w", pubErr)
		}
		c.logger.WithError(err).WithFields(log.Fields{
			"topic":       message.Topic,
			"retry_count": retryCount + 1,
			"max_retries": c.maxRetries,
		}).Warn("message processing failed, republished for retry")
		return nil
	}

	if dlqErr := c.sendToDLQ(message, err); dlqErr != nil {
		c.logger.WithError(dlqErr).Error("failed to send message to DLQ")
		return fmt.Errorf("send to dlq: %w", dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":       message.Topic,
		"retry_count": retryCount,
	}).Info("message sent to DLQ after max retries")
	return nil
}

// republishForRetry кладёт копию сообщения в его же topic, заменив
// заголовок x-retry-count на nextRetry.
func (c *Consumer) republishForRetry(message *sarama.ConsumerMessage, nextRetry int) error {
	headers := make([]sarama.RecordHeader, 0, len(message.Headers)+1)
	for _, header := range message.Headers {
		if string(header.Key) == HeaderRetryCount {
			continue
		}
		headers = append(headers, *header)
	}
	headers = append(headers, sarama.RecordHeader{
		Key:   []byte(HeaderRetryCount),
		Value: []byte(strconv.Itoa(nextRetry)),
	})
	return c.producer.PublishRaw(message.Topic, string(message.Key), message.Value, headers)
}

func (c *Consumer) retryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if string(header.Key) == HeaderRetryCount {
			if count, err := strconv.Atoi(string(header.Value)); err == nil {
				return count
			}
		}
	}
	return 0
}

func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, processingErr error) error {
	dlqMessage := map[string]any{
		"original_topic":     message.Topic,
		"original_partition": message.Partition,
		"original_offset":    message.Offset,
		"original_key":       string(message.Key),
		"original_value":     string(message.Value),
		"error_message":      processingErr.Error(),
		"failed_at":          time.Now().UTC().Format(time.RFC3339),
		"retry_count":        c.retryCount(message),
	}
	return c.producer.Publish(TopicDeadLetterQueue, string(message.Key), dlqMessage)
}

// ParseEnvelope разбирает тело сообщения в транспортный конверт.
func ParseEnvelope(message *sarama.ConsumerMessage) (contracts.Envelope, error) {
	var envelope contracts.Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return contracts.Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return envelope, nil
}
