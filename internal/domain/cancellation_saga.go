package domain

import "time"

// CancellationState описывает состояние саги отмены заказа.
type CancellationState string

const (
	// CancellationReleasingStock — отправлена команда снятия резерва.
	CancellationReleasingStock CancellationState = "ReleasingStock"
	// CancellationRefundingPayment — выполняется возврат средств (опциональный шаг).
	CancellationRefundingPayment CancellationState = "RefundingPayment"
	// CancellationFinalizingOrder — финализируем отмену заказа.
	CancellationFinalizingOrder CancellationState = "FinalizingOrder"
	// CancellationCompleted — терминальное успешное состояние.
	CancellationCompleted CancellationState = "Completed"
	// CancellationFailed — терминальное состояние; достижимо только из неудачного refund.
	CancellationFailed CancellationState = "Failed"
)

// Terminal сообщает, достигла ли сага конечного состояния.
func (s CancellationState) Terminal() bool {
	return s == CancellationCompleted || s == CancellationFailed
}

// Valid проверяет, что состояние относится к поддерживаемым значениям.
func (s CancellationState) Valid() bool {
	switch s {
	case CancellationReleasingStock, CancellationRefundingPayment,
		CancellationFinalizingOrder, CancellationCompleted, CancellationFailed:
		return true
	default:
		return false
	}
}

// CancellationSagaState — durable-состояние саги отмены.
//
// PaymentID и RefundAmountMinor фиксируются при старте: если платежа нет
// или сумма нулевая, шаг refund пропускается целиком.
type CancellationSagaState struct {
	CorrelationID string
	CurrentState  CancellationState

	OrderID           string
	CustomerID        string
	PaymentID         string
	RefundAmountMinor int64
	Currency          string
	Reason            string

	RefundID string

	StockReleasedAt   *time.Time
	RefundProcessedAt *time.Time
	CompletedAt       *time.Time

	FailureReason string
	FailedStep    SagaStep

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Completed сообщает, зафиксировано ли завершение саги.
func (s CancellationSagaState) Completed() bool {
	return s.CompletedAt != nil
}

// RefundRequired определяет, нужен ли шаг возврата средств.
func (s CancellationSagaState) RefundRequired() bool {
	return s.PaymentID != "" && s.RefundAmountMinor > 0
}
