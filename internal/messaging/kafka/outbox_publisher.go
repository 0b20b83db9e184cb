package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// OutboxKafkaPublisher превращает outbox-строку обратно в envelope и
// публикует её в topic, определяемый kind'ом события.
type OutboxKafkaPublisher struct {
	producer *Producer
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer) *OutboxKafkaPublisher {
	return &OutboxKafkaPublisher{producer: producer}
}

func (p *OutboxKafkaPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	envelope := contracts.Envelope{
		ID:            msg.ID,
		Kind:          contracts.Kind(msg.EventType),
		CorrelationID: msg.AggregateID,
		OccurredAt:    msg.OccurredAt,
		Payload:       json.RawMessage(msg.Payload),
	}
	return p.producer.PublishEnvelope(envelope)
}

// DLQKafkaPublisher публикует сообщения в dead letter queue как есть,
// без маршрутизации по kind: payload уже обёрнут диагностическим
// конвертом воркера.
type DLQKafkaPublisher struct {
	producer *Producer
}

// NewDLQPublisher создаёт паблишер для dead letter queue.
func NewDLQPublisher(producer *Producer) *DLQKafkaPublisher {
	return &DLQKafkaPublisher{producer: producer}
}

func (p *DLQKafkaPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}
	return p.producer.Publish(TopicDeadLetterQueue, key, json.RawMessage(msg.Payload))
}

var (
	_ domain.OutboxPublisher = (*OutboxKafkaPublisher)(nil)
	_ domain.OutboxPublisher = (*DLQKafkaPublisher)(nil)
)
