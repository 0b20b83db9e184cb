package domain

import "time"

// CheckoutState описывает состояние конечного автомата checkout-саги.
// Переходы образуют строго прямой путь: сага никогда не возвращается
// в более раннее состояние.
type CheckoutState string

const (
	// CheckoutAwaitingInventory — отправлена команда резервирования, ждём склад.
	CheckoutAwaitingInventory CheckoutState = "AwaitingInventory"
	// CheckoutAwaitingPayment — резерв получен, ждём авторизацию платежа.
	CheckoutAwaitingPayment CheckoutState = "AwaitingPayment"
	// CheckoutAwaitingConfirmation — платёж авторизован, ждём подтверждение заказа.
	CheckoutAwaitingConfirmation CheckoutState = "AwaitingConfirmation"
	// CheckoutAwaitingCartDeactivation — заказ подтверждён, деактивируем корзину.
	CheckoutAwaitingCartDeactivation CheckoutState = "AwaitingCartDeactivation"
	// CheckoutCompleted — терминальное успешное состояние.
	CheckoutCompleted CheckoutState = "Completed"
	// CheckoutCompensatingInventory — компенсация: снимаем резерв со склада.
	CheckoutCompensatingInventory CheckoutState = "CompensatingInventory"
	// CheckoutCompensatingOrder — компенсация: отменяем заказ.
	CheckoutCompensatingOrder CheckoutState = "CompensatingOrder"
	// CheckoutFailed — терминальное состояние после компенсации.
	CheckoutFailed CheckoutState = "Failed"
)

// Terminal сообщает, достигла ли сага конечного состояния.
func (s CheckoutState) Terminal() bool {
	return s == CheckoutCompleted || s == CheckoutFailed
}

// Valid проверяет, что состояние относится к поддерживаемым значениям.
func (s CheckoutState) Valid() bool {
	switch s {
	case CheckoutAwaitingInventory, CheckoutAwaitingPayment, CheckoutAwaitingConfirmation,
		CheckoutAwaitingCartDeactivation, CheckoutCompleted,
		CheckoutCompensatingInventory, CheckoutCompensatingOrder, CheckoutFailed:
		return true
	default:
		return false
	}
}

// CheckoutItem — позиция заказа в контексте checkout-саги.
type CheckoutItem struct {
	SKU        string `json:"sku"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

// CheckoutSagaState — durable-состояние checkout-саги.
//
// Бизнес-контекст (order/customer/amount) фиксируется один раз при старте
// и далее не меняется. Progress-отметки ставятся ровно один раз и не
// сбрасываются. Version — токен optimistic locking: две конкурирующие
// доставки событий одной саги не могут выиграть обе.
type CheckoutSagaState struct {
	CorrelationID string
	CurrentState  CheckoutState

	OrderID       string
	OrderNumber   string
	CustomerID    string
	CustomerEmail string
	CartID        string
	AmountMinor   int64
	Currency      string
	Items         []CheckoutItem

	ReservationID string
	PaymentID     string
	TransactionID string

	InventoryReservedAt *time.Time
	PaymentAuthorizedAt *time.Time
	ConfirmedAt         *time.Time
	CartDeactivatedAt   *time.Time
	CompletedAt         *time.Time

	FailureReason string
	FailedStep    SagaStep

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Completed сообщает, зафиксировано ли завершение саги.
// После установки CompletedAt любые дальнейшие события — no-op.
func (s CheckoutSagaState) Completed() bool {
	return s.CompletedAt != nil
}
