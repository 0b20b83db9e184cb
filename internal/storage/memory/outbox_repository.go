package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// outboxRepositoryInMemory — in-memory реализация transactional outbox.
// Порядок вставки сохраняется в отдельном slice, чтобы PullPending
// возвращал сообщения так же, как Postgres-реализация (ORDER BY occurred_at, id).
type outboxRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.OutboxMessage
	order []string
}

// NewOutboxRepository создаёт in-memory реализацию OutboxRepository.
func NewOutboxRepository() *outboxRepositoryInMemory {
	return &outboxRepositoryInMemory{items: make(map[string]domain.OutboxMessage)}
}

func (r *outboxRepositoryInMemory) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.enqueueLocked(msg), nil
}

// enqueueAll добавляет пачку сообщений под одной блокировкой. Репозитории
// саг вызывают его из Create/Save: состояние и outbox-строки эффектов
// меняются как единая операция, как и в Postgres-реализации.
func (r *outboxRepositoryInMemory) enqueueAll(msgs []domain.OutboxMessage) {
	if len(msgs) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, msg := range msgs {
		r.enqueueLocked(msg)
	}
}

func (r *outboxRepositoryInMemory) enqueueLocked(msg domain.OutboxMessage) domain.OutboxMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}
	msg.ProcessedAt = nil
	msg.RetryCount = 0
	msg.LastError = ""

	r.items[msg.ID] = msg
	r.order = append(r.order, msg.ID)
	return msg
}

func (r *outboxRepositoryInMemory) PullPending(limit, retryCeiling int) ([]domain.OutboxMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.OutboxMessage, 0, limit)
	for _, id := range r.order {
		if len(result) >= limit {
			break
		}
		msg := r.items[id]
		if msg.Processed() || msg.RetryCount >= retryCeiling {
			continue
		}
		result = append(result, msg)
	}
	return result, nil
}

func (r *outboxRepositoryInMemory) MarkProcessed(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.items[id]
	if !ok {
		return domain.ErrOutboxMessageNotFound
	}
	now := time.Now().UTC()
	msg.ProcessedAt = &now
	r.items[id] = msg
	return nil
}

func (r *outboxRepositoryInMemory) MarkFailed(id, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.items[id]
	if !ok {
		return domain.ErrOutboxMessageNotFound
	}
	msg.RetryCount++
	msg.LastError = lastError
	r.items[id] = msg
	return nil
}

func (r *outboxRepositoryInMemory) Requeue(minRetries int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	requeued := 0
	for id, msg := range r.items {
		if msg.Processed() || msg.RetryCount < minRetries {
			continue
		}
		msg.RetryCount = 0
		msg.LastError = ""
		r.items[id] = msg
		requeued++
	}
	return requeued, nil
}

func (r *outboxRepositoryInMemory) Stats(retryCeiling int) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, id := range r.order {
		msg := r.items[id]
		if msg.Processed() {
			continue
		}
		if msg.RetryCount >= retryCeiling {
			stats.ParkedCount++
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || msg.OccurredAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = msg.OccurredAt
		}
	}
	return stats, nil
}

// All возвращает все сообщения в порядке вставки (используется тестами).
func (r *outboxRepositoryInMemory) All() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.OutboxMessage, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.items[id])
	}
	return result
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
