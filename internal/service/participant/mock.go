package participant

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Мок-провайдеры для локального запуска и тестов. Поведение настраивается
// полями Err/результатами, по умолчанию каждый вызов успешен.

// MockInventoryProvider — настраиваемый складской провайдер.
type MockInventoryProvider struct {
	mu sync.Mutex

	ReserveErr  error
	ReleaseErr  error
	RestockErr  error
	ReserveTTL  time.Duration
	ReserveCall int
	ReleaseCall int
	RestockCall int
}

// NewMockInventoryProvider возвращает провайдер, резервирующий на 30 минут.
func NewMockInventoryProvider() *MockInventoryProvider {
	return &MockInventoryProvider{ReserveTTL: 30 * time.Minute}
}

func (m *MockInventoryProvider) Reserve(_ context.Context, _ string, _ []domain.CheckoutItem) (string, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReserveCall++
	if m.ReserveErr != nil {
		return "", time.Time{}, m.ReserveErr
	}
	return "res-" + uuid.NewString(), time.Now().UTC().Add(m.ReserveTTL), nil
}

func (m *MockInventoryProvider) Release(_ context.Context, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCall++
	return m.ReleaseErr
}

func (m *MockInventoryProvider) ReleaseForOrder(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleaseCall++
	return m.ReleaseErr
}

func (m *MockInventoryProvider) Restock(_ context.Context, _ string, _ []domain.ReturnItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RestockCall++
	return m.RestockErr
}

// MockPaymentProvider — настраиваемый платёжный провайдер.
type MockPaymentProvider struct {
	mu sync.Mutex

	AuthorizeErr  error
	RefundErr     error
	AuthorizeCall int
	RefundCall    int
}

// NewMockPaymentProvider возвращает провайдер, одобряющий все операции.
func NewMockPaymentProvider() *MockPaymentProvider {
	return &MockPaymentProvider{}
}

func (m *MockPaymentProvider) Authorize(_ context.Context, _ string, _ int64, _ string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthorizeCall++
	if m.AuthorizeErr != nil {
		return "", "", m.AuthorizeErr
	}
	return "pay-" + uuid.NewString(), "txn-" + uuid.NewString(), nil
}

func (m *MockPaymentProvider) Refund(_ context.Context, _ string, _ int64, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefundCall++
	if m.RefundErr != nil {
		return "", m.RefundErr
	}
	return "ref-" + uuid.NewString(), nil
}

// MockOrderProvider — настраиваемый провайдер сервиса заказов.
type MockOrderProvider struct {
	mu sync.Mutex

	ConfirmErr         error
	CancelErr          error
	FinalizeErr        error
	ConfirmCall        int
	CancelCall         int
	FinalizeCancelCall int
	FinalizeReturnCall int
}

// NewMockOrderProvider возвращает провайдер, выполняющий все операции успешно.
func NewMockOrderProvider() *MockOrderProvider {
	return &MockOrderProvider{}
}

func (m *MockOrderProvider) Confirm(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfirmCall++
	return m.ConfirmErr
}

func (m *MockOrderProvider) Cancel(_ context.Context, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelCall++
	return m.CancelErr
}

func (m *MockOrderProvider) FinalizeCancellation(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FinalizeCancelCall++
	return m.FinalizeErr
}

func (m *MockOrderProvider) FinalizeReturn(_ context.Context, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FinalizeReturnCall++
	return m.FinalizeErr
}

// MockCartProvider — настраиваемый провайдер корзины.
type MockCartProvider struct {
	mu sync.Mutex

	DeactivateErr  error
	DeactivateCall int
}

// NewMockCartProvider возвращает провайдер, деактивирующий корзину успешно.
func NewMockCartProvider() *MockCartProvider {
	return &MockCartProvider{}
}

func (m *MockCartProvider) Deactivate(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeactivateCall++
	return m.DeactivateErr
}

// MockReturnsProvider — настраиваемый провайдер валидации возвратов.
type MockReturnsProvider struct {
	mu sync.Mutex

	Verdict      domain.ReturnValidation
	ValidateErr  error
	ValidateCall int
}

// NewMockReturnsProvider возвращает провайдер, одобряющий все заявки.
func NewMockReturnsProvider() *MockReturnsProvider {
	return &MockReturnsProvider{Verdict: domain.ReturnValidation{Approved: true}}
}

func (m *MockReturnsProvider) Validate(_ context.Context, _ string, _ domain.ReturnType, _ []domain.ReturnItem) (domain.ReturnValidation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ValidateCall++
	if m.ValidateErr != nil {
		return domain.ReturnValidation{}, m.ValidateErr
	}
	return m.Verdict, nil
}

var (
	_ domain.InventoryProvider = (*MockInventoryProvider)(nil)
	_ domain.PaymentProvider   = (*MockPaymentProvider)(nil)
	_ domain.OrderProvider     = (*MockOrderProvider)(nil)
	_ domain.CartProvider      = (*MockCartProvider)(nil)
	_ domain.ReturnsProvider   = (*MockReturnsProvider)(nil)
)
