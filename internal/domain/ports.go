package domain

import (
	"context"
	"time"
)

// CheckoutSagaRepository хранит состояние checkout-саг.
//
// Create и Save записывают состояние саги и outbox-сообщения её эффектов
// атомарно: либо сохраняется и то и другое, либо ничего. Без этого
// упавшая запись в outbox после успешного сохранения состояния теряла бы
// следующую команду саги навсегда — повторная доставка события упёрлась
// бы в current-state guard.
type CheckoutSagaRepository interface {
	// Create сохраняет новую сагу. Возвращает ErrSagaAlreadyExists при повторном correlation id.
	Create(state CheckoutSagaState, outbox ...OutboxMessage) error
	// Get возвращает сагу по correlation id или ErrSagaNotFound.
	Get(correlationID string) (CheckoutSagaState, error)
	// Save применяет обновление с учётом optimistic locking:
	// при несовпадении Version возвращает ErrSagaVersionConflict.
	Save(state CheckoutSagaState, outbox ...OutboxMessage) error
}

// CancellationSagaRepository хранит состояние саг отмены.
// Контракт атомарности Create/Save тот же, что у CheckoutSagaRepository.
type CancellationSagaRepository interface {
	Create(state CancellationSagaState, outbox ...OutboxMessage) error
	Get(correlationID string) (CancellationSagaState, error)
	Save(state CancellationSagaState, outbox ...OutboxMessage) error
}

// ReturnSagaRepository хранит состояние саг возврата.
// Контракт атомарности Create/Save тот же, что у CheckoutSagaRepository.
type ReturnSagaRepository interface {
	Create(state ReturnSagaState, outbox ...OutboxMessage) error
	Get(correlationID string) (ReturnSagaState, error)
	Save(state ReturnSagaState, outbox ...OutboxMessage) error
}

// OutboxRepository позволяет сохранять сообщения для последующей публикации.
type OutboxRepository interface {
	// Enqueue сохраняет сообщение со статусом pending и возвращает его с заполненным ID.
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	// PullPending возвращает до limit неопубликованных сообщений в порядке
	// возникновения, исключая строки с RetryCount >= retryCeiling.
	PullPending(limit, retryCeiling int) ([]OutboxMessage, error)
	// MarkProcessed фиксирует успешную публикацию (ставит ProcessedAt).
	MarkProcessed(id string) error
	// MarkFailed увеличивает RetryCount и записывает текст последней ошибки.
	MarkFailed(id, lastError string) error
	// Requeue сбрасывает счётчик попыток у запаркованных строк (RetryCount >= minRetries),
	// возвращая их в polling. Используется ручным инструментом reprocess.
	Requeue(minRetries int) (int, error)
	// Stats возвращает состояние backlog.
	Stats(retryCeiling int) (OutboxStats, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт сообщение наружу; должен быть идемпотентным.
	Publish(msg OutboxMessage) error
}

// IdempotencyRepository хранит результаты операций по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, result []byte) error
	MarkFailed(key string, result []byte) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// SagaMonitor — read-only проекция состояния саг для операционной видимости.
type SagaMonitor interface {
	ListSummaries(filter SagaFilter) ([]SagaSummary, error)
	ListByOrder(orderID string) ([]SagaSummary, error)
	StateCounts() ([]SagaStateCount, error)
}

// InventoryProvider описывает взаимодействие с сервисом складских резервов.
type InventoryProvider interface {
	// Reserve резервирует позиции под заказ и возвращает идентификатор резерва
	// вместе с его сроком действия (резерв живёт независимо от состояния саги).
	Reserve(ctx context.Context, orderID string, items []CheckoutItem) (reservationID string, expiresAt time.Time, err error)
	// Release снимает резерв (компенсация).
	Release(ctx context.Context, orderID, reservationID string) error
	// ReleaseForOrder снимает все резервы заказа при отмене.
	ReleaseForOrder(ctx context.Context, orderID string) error
	// Restock возвращает принятые позиции на склад.
	Restock(ctx context.Context, orderID string, items []ReturnItem) error
}

// PaymentProvider описывает взаимодействие с платёжным провайдером.
type PaymentProvider interface {
	// Authorize авторизует платёж по заказу.
	Authorize(ctx context.Context, orderID string, amountMinor int64, currency string) (paymentID, transactionID string, err error)
	// Refund возвращает средства по ранее проведённому платежу.
	Refund(ctx context.Context, paymentID string, amountMinor int64, currency string) (refundID string, err error)
}

// OrderProvider описывает локальные шаги сервиса заказов.
type OrderProvider interface {
	Confirm(ctx context.Context, orderID string) error
	Cancel(ctx context.Context, orderID, reason string) error
	FinalizeCancellation(ctx context.Context, orderID string) error
	FinalizeReturn(ctx context.Context, orderID, correlationID string) error
}

// CartProvider описывает взаимодействие с сервисом корзин.
type CartProvider interface {
	Deactivate(ctx context.Context, cartID string) error
}

// ReturnValidation — решение по заявке на возврат.
type ReturnValidation struct {
	Approved bool
	Reason   string
}

// ReturnsProvider принимает решение по заявке на возврат.
type ReturnsProvider interface {
	Validate(ctx context.Context, orderID string, returnType ReturnType, items []ReturnItem) (ReturnValidation, error)
}
