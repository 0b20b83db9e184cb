package contracts

import (
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Входные триггеры. Correlation id выбирается триггером и далее
// идентифицирует сагу; сага его никогда не генерирует сама.

// CheckoutStarted запускает checkout-сагу.
type CheckoutStarted struct {
	CorrelationID string                `json:"correlation_id"`
	OrderID       string                `json:"order_id"`
	OrderNumber   string                `json:"order_number"`
	CustomerID    string                `json:"customer_id"`
	CustomerEmail string                `json:"customer_email,omitempty"`
	CartID        string                `json:"cart_id,omitempty"`
	AmountMinor   int64                 `json:"amount_minor"`
	Currency      string                `json:"currency"`
	Items         []domain.CheckoutItem `json:"items"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

// CancellationRequested запускает сагу отмены заказа.
// PaymentID пустой и AmountMinor нулевой, если платежа не было —
// тогда шаг refund пропускается.
type CancellationRequested struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	CustomerID    string    `json:"customer_id"`
	PaymentID     string    `json:"payment_id,omitempty"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReturnRequested запускает сагу возврата.
type ReturnRequested struct {
	CorrelationID     string              `json:"correlation_id"`
	OrderID           string              `json:"order_id"`
	CustomerID        string              `json:"customer_id"`
	PaymentID         string              `json:"payment_id,omitempty"`
	ReturnType        domain.ReturnType   `json:"return_type"`
	Items             []domain.ReturnItem `json:"items"`
	RefundAmountMinor int64               `json:"refund_amount_minor"`
	Currency          string              `json:"currency"`
	OccurredAt        time.Time           `json:"occurred_at"`
}

// Outcome-события участников checkout-саги.

// InventoryReservedForCheckout — резерв создан.
type InventoryReservedForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	ReservationID string    `json:"reservation_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// InventoryReservationFailedForCheckout — резерв не создан.
type InventoryReservationFailedForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PaymentAuthorizedForCheckout — платёж авторизован.
type PaymentAuthorizedForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	PaymentID     string    `json:"payment_id"`
	TransactionID string    `json:"transaction_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PaymentAuthorizationFailedForCheckout — авторизация отклонена.
type PaymentAuthorizationFailedForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// OrderConfirmedForCheckout — заказ подтверждён.
type OrderConfirmedForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// OrderConfirmationFailedForCheckout — подтвердить заказ не удалось.
type OrderConfirmationFailedForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// CartDeactivatedForCheckout — корзина деактивирована.
// Шаг определён как неблокирующий: участник всегда публикует completion.
type CartDeactivatedForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	CartID        string    `json:"cart_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// InventoryReleasedForCheckout — резерв снят (компенсация, всегда completion).
type InventoryReleasedForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	ReservationID string    `json:"reservation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// OrderCanceledForCheckout — заказ отменён (компенсация, всегда completion).
type OrderCanceledForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Outcome-события саги отмены.

// InventoryReleasedForCancellation — резервы заказа сняты.
type InventoryReleasedForCancellation struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// RefundProcessedForCancellation — возврат средств проведён.
type RefundProcessedForCancellation struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	RefundID      string    `json:"refund_id"`
	AmountMinor   int64     `json:"amount_minor"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// RefundFailedForCancellation — возврат средств не прошёл.
// Единственный путь в Failed для саги отмены: дальше нужен ручной разбор.
type RefundFailedForCancellation struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// OrderCancellationFinalized — отмена заказа финализирована.
type OrderCancellationFinalized struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Outcome-события саги возврата.

// ReturnRequestValidated — валидация выполнена; Approved=false означает
// отклонение заявки (это не инфраструктурная ошибка валидации).
type ReturnRequestValidated struct {
	CorrelationID      string    `json:"correlation_id"`
	OrderID            string    `json:"order_id"`
	Approved           bool      `json:"approved"`
	RequiresInspection bool      `json:"requires_inspection"`
	Reason             string    `json:"reason,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// ReturnValidationFailed — шаг валидации упал.
type ReturnValidationFailed struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReturnedItemsRestocked — позиции возвращены на склад.
type ReturnedItemsRestocked struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReturnRestockFailed — вернуть позиции на склад не удалось.
type ReturnRestockFailed struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReturnRefundProcessed — возврат средств по заявке проведён.
type ReturnRefundProcessed struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	RefundID      string    `json:"refund_id"`
	AmountMinor   int64     `json:"amount_minor"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReturnRefundFailed — возврат средств по заявке не прошёл.
type ReturnRefundFailed struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReturnFinalized — возврат финализирован.
type ReturnFinalized struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Терминальные события саг.

// CheckoutCompleted — checkout завершён успешно.
type CheckoutCompleted struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerID    string    `json:"customer_id"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// CheckoutFailed — checkout завершён компенсацией.
type CheckoutFailed struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	FailureReason string    `json:"failure_reason"`
	FailedStep    string    `json:"failed_step"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// CancellationCompleted — отмена заказа завершена.
type CancellationCompleted struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Refunded      bool      `json:"refunded"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// CancellationFailed — отмена упала на refund; требуется ручной разбор.
type CancellationFailed struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	FailureReason string    `json:"failure_reason"`
	FailedStep    string    `json:"failed_step"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReturnRefundCompleted — возврат завершён.
type ReturnRefundCompleted struct {
	CorrelationID      string    `json:"correlation_id"`
	OrderID            string    `json:"order_id"`
	RefundID           string    `json:"refund_id,omitempty"`
	RequiresInspection bool      `json:"requires_inspection"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// ReturnRefundSagaFailed — сага возврата завершилась неуспехом.
type ReturnRefundSagaFailed struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	FailureReason string    `json:"failure_reason"`
	FailedStep    string    `json:"failed_step"`
	OccurredAt    time.Time `json:"occurred_at"`
}
