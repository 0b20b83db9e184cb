package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// checkoutSagaRepositoryInMemory — in-memory хранилище checkout-саг.
// Optimistic locking повторяет контракт Postgres-реализации: Save
// сравнивает Version и инкрементирует его при успехе. Outbox-строки
// эффектов попадают в outbox вместе с изменением состояния под той же
// блокировкой, что первая: частично сохранённый переход невозможен.
type checkoutSagaRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.CheckoutSagaState
	outbox *outboxRepositoryInMemory
}

// NewCheckoutSagaRepository создаёт in-memory реализацию CheckoutSagaRepository.
// Эффекты переходов, переданные в Create/Save, складываются в outbox.
func NewCheckoutSagaRepository(outbox *outboxRepositoryInMemory) *checkoutSagaRepositoryInMemory {
	return &checkoutSagaRepositoryInMemory{
		items:  make(map[string]domain.CheckoutSagaState),
		outbox: outbox,
	}
}

func (r *checkoutSagaRepositoryInMemory) Create(state domain.CheckoutSagaState, outbox ...domain.OutboxMessage) error {
	if state.CorrelationID == "" {
		return domain.ErrCorrelationIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[state.CorrelationID]; ok {
		return domain.ErrSagaAlreadyExists
	}
	r.items[state.CorrelationID] = cloneCheckoutState(state)
	r.outbox.enqueueAll(outbox)
	return nil
}

func (r *checkoutSagaRepositoryInMemory) Get(correlationID string) (domain.CheckoutSagaState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.items[correlationID]
	if !ok {
		return domain.CheckoutSagaState{}, domain.ErrSagaNotFound
	}
	return cloneCheckoutState(state), nil
}

func (r *checkoutSagaRepositoryInMemory) Save(state domain.CheckoutSagaState, outbox ...domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[state.CorrelationID]
	if !ok {
		return domain.ErrSagaNotFound
	}
	if existing.Version != state.Version {
		return domain.ErrSagaVersionConflict
	}

	state.Version++
	r.items[state.CorrelationID] = cloneCheckoutState(state)
	r.outbox.enqueueAll(outbox)
	return nil
}

// All возвращает копию всех саг (используется монитором и тестами).
func (r *checkoutSagaRepositoryInMemory) All() []domain.CheckoutSagaState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.CheckoutSagaState, 0, len(r.items))
	for _, state := range r.items {
		result = append(result, cloneCheckoutState(state))
	}
	return result
}

// cancellationSagaRepositoryInMemory — in-memory хранилище саг отмены.
type cancellationSagaRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.CancellationSagaState
	outbox *outboxRepositoryInMemory
}

// NewCancellationSagaRepository создаёт in-memory реализацию CancellationSagaRepository.
func NewCancellationSagaRepository(outbox *outboxRepositoryInMemory) *cancellationSagaRepositoryInMemory {
	return &cancellationSagaRepositoryInMemory{
		items:  make(map[string]domain.CancellationSagaState),
		outbox: outbox,
	}
}

func (r *cancellationSagaRepositoryInMemory) Create(state domain.CancellationSagaState, outbox ...domain.OutboxMessage) error {
	if state.CorrelationID == "" {
		return domain.ErrCorrelationIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[state.CorrelationID]; ok {
		return domain.ErrSagaAlreadyExists
	}
	r.items[state.CorrelationID] = cloneCancellationState(state)
	r.outbox.enqueueAll(outbox)
	return nil
}

func (r *cancellationSagaRepositoryInMemory) Get(correlationID string) (domain.CancellationSagaState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.items[correlationID]
	if !ok {
		return domain.CancellationSagaState{}, domain.ErrSagaNotFound
	}
	return cloneCancellationState(state), nil
}

func (r *cancellationSagaRepositoryInMemory) Save(state domain.CancellationSagaState, outbox ...domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[state.CorrelationID]
	if !ok {
		return domain.ErrSagaNotFound
	}
	if existing.Version != state.Version {
		return domain.ErrSagaVersionConflict
	}

	state.Version++
	r.items[state.CorrelationID] = cloneCancellationState(state)
	r.outbox.enqueueAll(outbox)
	return nil
}

// All возвращает копию всех саг отмены.
func (r *cancellationSagaRepositoryInMemory) All() []domain.CancellationSagaState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.CancellationSagaState, 0, len(r.items))
	for _, state := range r.items {
		result = append(result, cloneCancellationState(state))
	}
	return result
}

// returnSagaRepositoryInMemory — in-memory хранилище саг возврата.
type returnSagaRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.ReturnSagaState
	outbox *outboxRepositoryInMemory
}

// NewReturnSagaRepository создаёт in-memory реализацию ReturnSagaRepository.
func NewReturnSagaRepository(outbox *outboxRepositoryInMemory) *returnSagaRepositoryInMemory {
	return &returnSagaRepositoryInMemory{
		items:  make(map[string]domain.ReturnSagaState),
		outbox: outbox,
	}
}

func (r *returnSagaRepositoryInMemory) Create(state domain.ReturnSagaState, outbox ...domain.OutboxMessage) error {
	if state.CorrelationID == "" {
		return domain.ErrCorrelationIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[state.CorrelationID]; ok {
		return domain.ErrSagaAlreadyExists
	}
	r.items[state.CorrelationID] = cloneReturnState(state)
	r.outbox.enqueueAll(outbox)
	return nil
}

func (r *returnSagaRepositoryInMemory) Get(correlationID string) (domain.ReturnSagaState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.items[correlationID]
	if !ok {
		return domain.ReturnSagaState{}, domain.ErrSagaNotFound
	}
	return cloneReturnState(state), nil
}

func (r *returnSagaRepositoryInMemory) Save(state domain.ReturnSagaState, outbox ...domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[state.CorrelationID]
	if !ok {
		return domain.ErrSagaNotFound
	}
	if existing.Version != state.Version {
		return domain.ErrSagaVersionConflict
	}

	state.Version++
	r.items[state.CorrelationID] = cloneReturnState(state)
	r.outbox.enqueueAll(outbox)
	return nil
}

// All возвращает копию всех саг возврата.
func (r *returnSagaRepositoryInMemory) All() []domain.ReturnSagaState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ReturnSagaState, 0, len(r.items))
	for _, state := range r.items {
		result = append(result, cloneReturnState(state))
	}
	return result
}

func cloneCheckoutState(src domain.CheckoutSagaState) domain.CheckoutSagaState {
	dst := src
	dst.Items = append([]domain.CheckoutItem(nil), src.Items...)
	dst.InventoryReservedAt = cloneTime(src.InventoryReservedAt)
	dst.PaymentAuthorizedAt = cloneTime(src.PaymentAuthorizedAt)
	dst.ConfirmedAt = cloneTime(src.ConfirmedAt)
	dst.CartDeactivatedAt = cloneTime(src.CartDeactivatedAt)
	dst.CompletedAt = cloneTime(src.CompletedAt)
	return dst
}

func cloneCancellationState(src domain.CancellationSagaState) domain.CancellationSagaState {
	dst := src
	dst.StockReleasedAt = cloneTime(src.StockReleasedAt)
	dst.RefundProcessedAt = cloneTime(src.RefundProcessedAt)
	dst.CompletedAt = cloneTime(src.CompletedAt)
	return dst
}

func cloneReturnState(src domain.ReturnSagaState) domain.ReturnSagaState {
	dst := src
	dst.Items = append([]domain.ReturnItem(nil), src.Items...)
	dst.ValidatedAt = cloneTime(src.ValidatedAt)
	dst.RestockedAt = cloneTime(src.RestockedAt)
	dst.RefundProcessedAt = cloneTime(src.RefundProcessedAt)
	dst.FinalizedAt = cloneTime(src.FinalizedAt)
	dst.CompletedAt = cloneTime(src.CompletedAt)
	return dst
}

func cloneTime(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	ts := *src
	return &ts
}

var (
	_ domain.CheckoutSagaRepository     = (*checkoutSagaRepositoryInMemory)(nil)
	_ domain.CancellationSagaRepository = (*cancellationSagaRepositoryInMemory)(nil)
	_ domain.ReturnSagaRepository       = (*returnSagaRepositoryInMemory)(nil)
)
