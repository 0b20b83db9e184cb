package domain

import "errors"

var (
	// ErrSagaNotFound возвращается, если сага с таким correlation id не найдена.
	ErrSagaNotFound = errors.New("saga not found")
	// ErrSagaAlreadyExists возвращается при повторном создании саги с тем же correlation id.
	ErrSagaAlreadyExists = errors.New("saga already exists")
	// ErrSagaVersionConflict сигнализирует о конфликте версий при сохранении состояния саги.
	// Проигравшая доставка должна вернуться в шину и быть передоставлена.
	ErrSagaVersionConflict = errors.New("saga version conflict")
	// ErrCorrelationIDRequired — у входящего события/команды отсутствует correlation id.
	ErrCorrelationIDRequired = errors.New("correlation_id is required")
	// ErrOrderIDRequired — отсутствует идентификатор заказа в контексте саги.
	ErrOrderIDRequired = errors.New("order_id is required")

	// ErrOutboxMessageNotFound — запись outbox не найдена при смене статуса.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хеш содержимого запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — запись по ключу уже создана (повторная доставка).
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим содержимым запроса.
	// Это конфликт, а не повтор: операция не должна выполняться второй раз молча.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request payload")
	// ErrIdempotencyInProgress — операция с тем же ключом ещё выполняется.
	ErrIdempotencyInProgress = errors.New("operation with the same idempotency key is in progress")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий саги.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrSagaVersionConflict)
}
