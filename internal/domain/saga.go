package domain

import "time"

// SagaType определяет вид саги для мониторинга и маршрутизации.
type SagaType string

const (
	SagaTypeCheckout     SagaType = "checkout"
	SagaTypeCancellation SagaType = "cancellation"
	SagaTypeReturnRefund SagaType = "return_refund"
)

// SagaStep идентифицирует шаг, на котором сага потерпела неудачу.
// Значение сохраняется в FailedStep и попадает в терминальные события.
type SagaStep string

const (
	StepInventoryReservation SagaStep = "InventoryReservation"
	StepPaymentAuthorization SagaStep = "PaymentAuthorization"
	StepOrderConfirmation    SagaStep = "OrderConfirmation"
	StepCartDeactivation     SagaStep = "CartDeactivation"
	StepStockRelease         SagaStep = "StockRelease"
	StepRefund               SagaStep = "Refund"
	StepOrderFinalization    SagaStep = "OrderFinalization"
	StepReturnValidation     SagaStep = "ReturnValidation"
	StepRestocking           SagaStep = "Restocking"
	StepReturnFinalization   SagaStep = "ReturnFinalization"
)

// SagaSummary — проекция состояния саги для мониторингового read API.
type SagaSummary struct {
	SagaType      SagaType
	CorrelationID string
	OrderID       string
	CurrentState  string
	FailureReason string
	FailedStep    string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// SagaFilter задаёт критерии выборки саг в мониторинге.
// Пустые поля означают отсутствие фильтра.
type SagaFilter struct {
	SagaType     SagaType
	CurrentState string
	StartedFrom  time.Time
	StartedTo    time.Time
	Limit        int
}

// SagaStateCount — количество саг одного типа в одном состоянии.
type SagaStateCount struct {
	SagaType     SagaType
	CurrentState string
	Count        int
}
