package domain

import "time"

// OutboxMessage — строка transactional outbox.
//
// Запись создаётся вместе с изменением бизнес-состояния, которое она
// анонсирует. ProcessedAt остаётся nil до успешной публикации; неуспех
// увеличивает RetryCount и записывает LastError. Строки, превысившие
// retry ceiling, исключаются из polling, но никогда не удаляются —
// их возвращает в оборот ручной requeue.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	EventVersion  int32
	Payload       []byte
	OccurredAt    time.Time
	ProcessedAt   *time.Time
	RetryCount    int
	LastError     string
}

// Processed сообщает, была ли строка успешно опубликована.
func (m OutboxMessage) Processed() bool {
	return m.ProcessedAt != nil
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	ParkedCount     int
	OldestPendingAt time.Time
}
