// Package monitoring предоставляет read-only проекцию состояния саг
// для операционной видимости. Пишущего API здесь нет: все изменения
// состояния проходят через оркестраторы.
package monitoring

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Service агрегирует мониторинговые запросы поверх SagaMonitor
// и репозиториев саг.
type Service struct {
	monitor       domain.SagaMonitor
	checkouts     domain.CheckoutSagaRepository
	cancellations domain.CancellationSagaRepository
	returns       domain.ReturnSagaRepository
}

// NewService создаёт мониторинговый сервис.
func NewService(
	monitor domain.SagaMonitor,
	checkouts domain.CheckoutSagaRepository,
	cancellations domain.CancellationSagaRepository,
	returns domain.ReturnSagaRepository,
) *Service {
	return &Service{
		monitor:       monitor,
		checkouts:     checkouts,
		cancellations: cancellations,
		returns:       returns,
	}
}

// SagaDetails — развёрнутое представление одной саги.
// Тип-специфичные поля сведены в общие словари references/milestones.
type SagaDetails struct {
	SagaType      domain.SagaType      `json:"saga_type"`
	CorrelationID string               `json:"correlation_id"`
	CurrentState  string               `json:"current_state"`
	OrderID       string               `json:"order_id"`
	CustomerID    string               `json:"customer_id,omitempty"`
	AmountMinor   int64                `json:"amount_minor,omitempty"`
	Currency      string               `json:"currency,omitempty"`
	References    map[string]string    `json:"references,omitempty"`
	Milestones    map[string]time.Time `json:"milestones,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
	FailedStep    string               `json:"failed_step,omitempty"`
	Version       int64                `json:"version"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
}

// TypeStats — сводка по одному типу саг для /stats.
type TypeStats struct {
	SagaType       domain.SagaType `json:"saga_type"`
	Total          int             `json:"total"`
	Completed      int             `json:"completed"`
	Failed         int             `json:"failed"`
	Active         int             `json:"active"`
	CompletionRate float64         `json:"completion_rate"`
	States         map[string]int  `json:"states"`
}

// ListSummaries возвращает сводки саг по фильтру.
// Limit ограничивается сверху, нулевое значение заменяется дефолтом.
func (s *Service) ListSummaries(filter domain.SagaFilter) ([]domain.SagaSummary, error) {
	if filter.SagaType != "" {
		switch filter.SagaType {
		case domain.SagaTypeCheckout, domain.SagaTypeCancellation, domain.SagaTypeReturnRefund:
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownSagaType, filter.SagaType)
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.monitor.ListSummaries(filter)
}

// ListByOrder возвращает все саги, затронувшие заказ.
func (s *Service) ListByOrder(orderID string) ([]domain.SagaSummary, error) {
	return s.monitor.ListByOrder(strings.TrimSpace(orderID))
}

// Details возвращает развёрнутое состояние саги по correlation id.
// Тип саги заранее неизвестен, поэтому репозитории опрашиваются по очереди.
func (s *Service) Details(correlationID string) (SagaDetails, error) {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return SagaDetails{}, domain.ErrCorrelationIDRequired
	}

	if state, err := s.checkouts.Get(correlationID); err == nil {
		return checkoutDetails(state), nil
	} else if !errors.Is(err, domain.ErrSagaNotFound) {
		return SagaDetails{}, err
	}

	if state, err := s.cancellations.Get(correlationID); err == nil {
		return cancellationDetails(state), nil
	} else if !errors.Is(err, domain.ErrSagaNotFound) {
		return SagaDetails{}, err
	}

	if state, err := s.returns.Get(correlationID); err == nil {
		return returnDetails(state), nil
	} else if !errors.Is(err, domain.ErrSagaNotFound) {
		return SagaDetails{}, err
	}

	return SagaDetails{}, domain.ErrSagaNotFound
}

// Stats возвращает распределение саг по состояниям и долю успешных
// завершений по каждому типу.
func (s *Service) Stats() ([]TypeStats, error) {
	counts, err := s.monitor.StateCounts()
	if err != nil {
		return nil, err
	}

	byType := make(map[domain.SagaType]*TypeStats)
	order := make([]domain.SagaType, 0, 3)
	for _, c := range counts {
		stats, ok := byType[c.SagaType]
		if !ok {
			stats = &TypeStats{SagaType: c.SagaType, States: make(map[string]int)}
			byType[c.SagaType] = stats
			order = append(order, c.SagaType)
		}
		stats.States[c.CurrentState] += c.Count
		stats.Total += c.Count
		switch c.CurrentState {
		case completedStateName:
			stats.Completed += c.Count
		case failedStateName:
			stats.Failed += c.Count
		default:
			stats.Active += c.Count
		}
	}

	result := make([]TypeStats, 0, len(order))
	for _, sagaType := range order {
		stats := byType[sagaType]
		if terminal := stats.Completed + stats.Failed; terminal > 0 {
			stats.CompletionRate = float64(stats.Completed) / float64(terminal)
		}
		result = append(result, *stats)
	}
	return result, nil
}

// Терминальные состояния называются одинаково во всех трёх машинах.
const (
	completedStateName = "Completed"
	failedStateName    = "Failed"
)

// ErrUnknownSagaType — фильтр содержит неизвестный тип саги.
var ErrUnknownSagaType = errors.New("unknown saga type")

func checkoutDetails(state domain.CheckoutSagaState) SagaDetails {
	details := SagaDetails{
		SagaType:      domain.SagaTypeCheckout,
		CorrelationID: state.CorrelationID,
		CurrentState:  string(state.CurrentState),
		OrderID:       state.OrderID,
		CustomerID:    state.CustomerID,
		AmountMinor:   state.AmountMinor,
		Currency:      state.Currency,
		References:    map[string]string{},
		Milestones:    map[string]time.Time{},
		FailureReason: state.FailureReason,
		FailedStep:    string(state.FailedStep),
		Version:       state.Version,
		CreatedAt:     state.CreatedAt,
		UpdatedAt:     state.UpdatedAt,
		CompletedAt:   state.CompletedAt,
	}
	putReference(details.References, "reservation_id", state.ReservationID)
	putReference(details.References, "payment_id", state.PaymentID)
	putReference(details.References, "transaction_id", state.TransactionID)
	putMilestone(details.Milestones, "inventory_reserved_at", state.InventoryReservedAt)
	putMilestone(details.Milestones, "payment_authorized_at", state.PaymentAuthorizedAt)
	putMilestone(details.Milestones, "confirmed_at", state.ConfirmedAt)
	putMilestone(details.Milestones, "cart_deactivated_at", state.CartDeactivatedAt)
	return details
}

func cancellationDetails(state domain.CancellationSagaState) SagaDetails {
	details := SagaDetails{
		SagaType:      domain.SagaTypeCancellation,
		CorrelationID: state.CorrelationID,
		CurrentState:  string(state.CurrentState),
		OrderID:       state.OrderID,
		CustomerID:    state.CustomerID,
		AmountMinor:   state.RefundAmountMinor,
		Currency:      state.Currency,
		References:    map[string]string{},
		Milestones:    map[string]time.Time{},
		FailureReason: state.FailureReason,
		FailedStep:    string(state.FailedStep),
		Version:       state.Version,
		CreatedAt:     state.CreatedAt,
		UpdatedAt:     state.UpdatedAt,
		CompletedAt:   state.CompletedAt,
	}
	putReference(details.References, "payment_id", state.PaymentID)
	putReference(details.References, "refund_id", state.RefundID)
	putMilestone(details.Milestones, "stock_released_at", state.StockReleasedAt)
	putMilestone(details.Milestones, "refund_processed_at", state.RefundProcessedAt)
	return details
}

func returnDetails(state domain.ReturnSagaState) SagaDetails {
	details := SagaDetails{
		SagaType:      domain.SagaTypeReturnRefund,
		CorrelationID: state.CorrelationID,
		CurrentState:  string(state.CurrentState),
		OrderID:       state.OrderID,
		CustomerID:    state.CustomerID,
		AmountMinor:   state.RefundAmountMinor,
		Currency:      state.Currency,
		References:    map[string]string{},
		Milestones:    map[string]time.Time{},
		FailureReason: state.FailureReason,
		FailedStep:    string(state.FailedStep),
		Version:       state.Version,
		CreatedAt:     state.CreatedAt,
		UpdatedAt:     state.UpdatedAt,
		CompletedAt:   state.CompletedAt,
	}
	putReference(details.References, "payment_id", state.PaymentID)
	putReference(details.References, "refund_id", state.RefundID)
	putMilestone(details.Milestones, "validated_at", state.ValidatedAt)
	putMilestone(details.Milestones, "restocked_at", state.RestockedAt)
	putMilestone(details.Milestones, "refund_processed_at", state.RefundProcessedAt)
	putMilestone(details.Milestones, "finalized_at", state.FinalizedAt)
	return details
}

func putReference(refs map[string]string, name, value string) {
	if value != "" {
		refs[name] = value
	}
}

func putMilestone(milestones map[string]time.Time, name string, at *time.Time) {
	if at != nil {
		milestones[name] = *at
	}
}
