package domain

import "time"

// ReturnState описывает состояние саги возврата/refund.
type ReturnState string

const (
	// ReturnValidating — проверяем заявку на возврат.
	ReturnValidating ReturnState = "Validating"
	// ReturnRestockingInventory — возвращаем позиции на склад.
	ReturnRestockingInventory ReturnState = "RestockingInventory"
	// ReturnProcessingRefund — выполняется возврат средств (опциональный шаг).
	ReturnProcessingRefund ReturnState = "ProcessingRefund"
	// ReturnFinalizing — финализируем возврат.
	ReturnFinalizing ReturnState = "Finalizing"
	// ReturnCompleted — терминальное успешное состояние.
	ReturnCompleted ReturnState = "Completed"
	// ReturnFailed — терминальное состояние; достижимо из валидации, restock и refund.
	ReturnFailed ReturnState = "Failed"
)

// Terminal сообщает, достигла ли сага конечного состояния.
func (s ReturnState) Terminal() bool {
	return s == ReturnCompleted || s == ReturnFailed
}

// Valid проверяет, что состояние относится к поддерживаемым значениям.
func (s ReturnState) Valid() bool {
	switch s {
	case ReturnValidating, ReturnRestockingInventory, ReturnProcessingRefund,
		ReturnFinalizing, ReturnCompleted, ReturnFailed:
		return true
	default:
		return false
	}
}

// ReturnType — тип заявки на возврат.
type ReturnType string

const (
	ReturnTypeStandard ReturnType = "Standard"
	ReturnTypeExchange ReturnType = "Exchange"
)

// ItemCondition — заявленное состояние возвращаемой позиции.
type ItemCondition string

const (
	ItemConditionGood      ItemCondition = "Good"
	ItemConditionDamaged   ItemCondition = "Damaged"
	ItemConditionDefective ItemCondition = "Defective"
)

// ReturnItem — позиция в заявке на возврат.
type ReturnItem struct {
	SKU       string        `json:"sku"`
	Qty       int32         `json:"qty"`
	Condition ItemCondition `json:"condition"`
}

// ReturnSagaState — durable-состояние саги возврата.
//
// RequiresInspection проставляется на шаге валидации (exchange либо
// damaged/defective позиция) и переносится через состояние, но сам
// по себе не ветвит сагу — флаг нужен операторским workflow снаружи.
type ReturnSagaState struct {
	CorrelationID string
	CurrentState  ReturnState

	OrderID           string
	CustomerID        string
	PaymentID         string
	ReturnType        ReturnType
	Items             []ReturnItem
	RefundAmountMinor int64
	Currency          string

	RefundID           string
	RequiresInspection bool

	ValidatedAt       *time.Time
	RestockedAt       *time.Time
	RefundProcessedAt *time.Time
	FinalizedAt       *time.Time
	CompletedAt       *time.Time

	FailureReason string
	FailedStep    SagaStep

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Completed сообщает, зафиксировано ли завершение саги.
func (s ReturnSagaState) Completed() bool {
	return s.CompletedAt != nil
}

// RefundRequired определяет, нужен ли шаг возврата средств.
func (s ReturnSagaState) RefundRequired() bool {
	return s.RefundAmountMinor > 0
}
