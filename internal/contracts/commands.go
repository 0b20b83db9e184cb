package contracts

import (
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Команды несут correlation id и минимум бизнес-данных для одного шага.

// ReserveInventoryForCheckout — зарезервировать позиции заказа на складе.
type ReserveInventoryForCheckout struct {
	CorrelationID string                `json:"correlation_id"`
	OrderID       string                `json:"order_id"`
	Items         []domain.CheckoutItem `json:"items"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

// ReleaseInventoryForCheckout — снять резерв (компенсация checkout-саги).
type ReleaseInventoryForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	ReservationID string    `json:"reservation_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// AuthorizePaymentForCheckout — авторизовать платёж по заказу.
type AuthorizePaymentForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	CustomerID    string    `json:"customer_id"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ConfirmOrderForCheckout — подтвердить заказ после оплаты.
type ConfirmOrderForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// CancelOrderForCheckout — отменить заказ (компенсация checkout-саги).
type CancelOrderForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// DeactivateCartForCheckout — деактивировать корзину после подтверждения заказа.
type DeactivateCartForCheckout struct {
	CorrelationID string    `json:"correlation_id"`
	CartID        string    `json:"cart_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ReleaseInventoryForCancellation — снять резервы заказа при отмене.
type ReleaseInventoryForCancellation struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ProcessRefundForCancellation — вернуть средства при отмене заказа.
type ProcessRefundForCancellation struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	PaymentID     string    `json:"payment_id"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// FinalizeOrderCancellation — финализировать отмену заказа.
type FinalizeOrderCancellation struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ValidateReturnRequest — проверить заявку на возврат.
type ValidateReturnRequest struct {
	CorrelationID string              `json:"correlation_id"`
	OrderID       string              `json:"order_id"`
	ReturnType    domain.ReturnType   `json:"return_type"`
	Items         []domain.ReturnItem `json:"items"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// RestockReturnedItems — вернуть принятые позиции на склад.
type RestockReturnedItems struct {
	CorrelationID string              `json:"correlation_id"`
	OrderID       string              `json:"order_id"`
	Items         []domain.ReturnItem `json:"items"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// ProcessReturnRefund — вернуть средства по принятому возврату.
type ProcessReturnRefund struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	PaymentID     string    `json:"payment_id"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// FinalizeReturn — финализировать возврат.
type FinalizeReturn struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       string    `json:"order_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}
