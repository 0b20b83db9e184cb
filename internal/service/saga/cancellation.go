package saga

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

const cancellationAggregate = "cancellation_saga"

// Cancellation — конечный автомат саги отмены заказа:
// ReleasingStock → RefundingPayment(опц.) → FinalizingOrder → Completed.
// Failed достижим только из неудачного refund: дальше никакая компенсация
// не предпринимается, случай уходит на ручной разбор.
type Cancellation struct {
	states  domain.CancellationSagaRepository
	logger  *log.Entry
	metrics *metrics.SagaMetrics
}

// NewCancellation создаёт автомат отмены.
func NewCancellation(
	states domain.CancellationSagaRepository,
	sagaMetrics *metrics.SagaMetrics,
	logger *log.Entry,
) *Cancellation {
	if logger == nil {
		logger = log.WithField("component", "cancellation-saga")
	}
	return &Cancellation{
		states:  states,
		metrics: sagaMetrics,
		logger:  logger,
	}
}

// Handle применяет входящее сообщение к саге.
func (c *Cancellation) Handle(msg any) error {
	if requested, ok := msg.(*contracts.CancellationRequested); ok {
		return c.start(requested)
	}

	correlationID, ok := cancellationCorrelationID(msg)
	if !ok {
		return fmt.Errorf("cancellation saga: unexpected message type %T", msg)
	}
	if correlationID == "" {
		return domain.ErrCorrelationIDRequired
	}

	st, err := c.states.Get(correlationID)
	if err != nil {
		if errors.Is(err, domain.ErrSagaNotFound) {
			c.logger.WithField("correlation_id", correlationID).Warn("cancellation event for unknown saga, dropping")
			return nil
		}
		return fmt.Errorf("load cancellation saga: %w", err)
	}
	if st.Completed() {
		c.logger.WithField("correlation_id", correlationID).Debug("cancellation saga already completed, event is a no-op")
		c.metrics.RecordEventIgnored(string(domain.SagaTypeCancellation))
		return nil
	}

	now := time.Now().UTC()
	next, effects, err := transitionCancellation(st, msg, now)
	if err != nil {
		if errors.Is(err, errEventIgnored) {
			c.logger.WithFields(log.Fields{
				"correlation_id": correlationID,
				"current_state":  st.CurrentState,
			}).Debug("cancellation event ignored for current state")
			c.metrics.RecordEventIgnored(string(domain.SagaTypeCancellation))
			return nil
		}
		return err
	}

	rows, err := outboxMessages(cancellationAggregate, correlationID, effects)
	if err != nil {
		return err
	}

	next.UpdatedAt = now
	if err := c.states.Save(next, rows...); err != nil {
		if domain.IsVersionConflict(err) {
			c.logger.WithField("correlation_id", correlationID).Warn("cancellation saga version conflict, leaving redelivery to the bus")
			c.metrics.RecordVersionConflict(string(domain.SagaTypeCancellation))
		}
		return err
	}

	c.recordTerminal(next, now)
	for range effects {
		c.metrics.RecordOutboxEffect()
	}
	return nil
}

func (c *Cancellation) start(ev *contracts.CancellationRequested) error {
	if ev.CorrelationID == "" {
		return domain.ErrCorrelationIDRequired
	}
	if ev.OrderID == "" {
		return domain.ErrOrderIDRequired
	}

	now := time.Now().UTC()
	st := domain.CancellationSagaState{
		CorrelationID:     ev.CorrelationID,
		CurrentState:      domain.CancellationReleasingStock,
		OrderID:           ev.OrderID,
		CustomerID:        ev.CustomerID,
		PaymentID:         ev.PaymentID,
		RefundAmountMinor: ev.AmountMinor,
		Currency:          ev.Currency,
		Reason:            ev.Reason,
		Version:           0,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	rows, err := outboxMessages(cancellationAggregate, ev.CorrelationID, []effect{
		command(contracts.KindReleaseInventoryForCancellation, contracts.ReleaseInventoryForCancellation{
			CorrelationID: ev.CorrelationID,
			OrderID:       ev.OrderID,
			OccurredAt:    now,
		}),
	})
	if err != nil {
		return err
	}

	if err := c.states.Create(st, rows...); err != nil {
		if errors.Is(err, domain.ErrSagaAlreadyExists) {
			c.logger.WithField("correlation_id", ev.CorrelationID).Debug("cancellation saga already started, trigger is a no-op")
			return nil
		}
		return fmt.Errorf("create cancellation saga: %w", err)
	}

	c.metrics.RecordSagaStarted(string(domain.SagaTypeCancellation))
	c.metrics.RecordOutboxEffect()
	c.logger.WithFields(log.Fields{
		"correlation_id": ev.CorrelationID,
		"order_id":       ev.OrderID,
	}).Info("cancellation saga started")

	return nil
}

func (c *Cancellation) recordTerminal(st domain.CancellationSagaState, now time.Time) {
	if st.CompletedAt == nil {
		return
	}
	switch st.CurrentState {
	case domain.CancellationCompleted:
		c.metrics.RecordSagaCompleted(string(domain.SagaTypeCancellation), now.Sub(st.CreatedAt))
		c.logger.WithField("correlation_id", st.CorrelationID).Info("cancellation saga completed")
	case domain.CancellationFailed:
		c.metrics.RecordSagaFailed(string(domain.SagaTypeCancellation), now.Sub(st.CreatedAt))
		c.logger.WithFields(log.Fields{
			"correlation_id": st.CorrelationID,
			"failure_reason": st.FailureReason,
		}).Warn("cancellation saga failed, manual review required")
	}
}

// transitionCancellation — чистая функция перехода саги отмены.
func transitionCancellation(st domain.CancellationSagaState, msg any, now time.Time) (domain.CancellationSagaState, []effect, error) {
	switch ev := msg.(type) {
	case *contracts.InventoryReleasedForCancellation:
		if st.CurrentState != domain.CancellationReleasingStock {
			return st, nil, errEventIgnored
		}
		setOnce(&st.StockReleasedAt, now)
		if st.RefundRequired() {
			st.CurrentState = domain.CancellationRefundingPayment
			return st, []effect{
				command(contracts.KindProcessRefundForCancellation, contracts.ProcessRefundForCancellation{
					CorrelationID: st.CorrelationID,
					OrderID:       st.OrderID,
					PaymentID:     st.PaymentID,
					AmountMinor:   st.RefundAmountMinor,
					Currency:      st.Currency,
					OccurredAt:    now,
				}),
			}, nil
		}
		// Платежа не было — refund пропускается целиком.
		return finalizeCancellationOrder(st, now)

	case *contracts.RefundProcessedForCancellation:
		if st.CurrentState != domain.CancellationRefundingPayment {
			return st, nil, errEventIgnored
		}
		st.RefundID = ev.RefundID
		setOnce(&st.RefundProcessedAt, now)
		return finalizeCancellationOrder(st, now)

	case *contracts.RefundFailedForCancellation:
		if st.CurrentState != domain.CancellationRefundingPayment {
			return st, nil, errEventIgnored
		}
		st.FailureReason = ev.Reason
		st.FailedStep = domain.StepRefund
		st.CurrentState = domain.CancellationFailed
		setOnce(&st.CompletedAt, now)
		return st, []effect{
			publish(contracts.KindCancellationFailed, contracts.CancellationFailed{
				CorrelationID: st.CorrelationID,
				OrderID:       st.OrderID,
				FailureReason: st.FailureReason,
				FailedStep:    string(st.FailedStep),
				OccurredAt:    now,
			}),
		}, nil

	case *contracts.OrderCancellationFinalized:
		if st.CurrentState != domain.CancellationFinalizingOrder {
			return st, nil, errEventIgnored
		}
		st.CurrentState = domain.CancellationCompleted
		setOnce(&st.CompletedAt, now)
		return st, []effect{
			publish(contracts.KindCancellationCompleted, contracts.CancellationCompleted{
				CorrelationID: st.CorrelationID,
				OrderID:       st.OrderID,
				Refunded:      st.RefundID != "",
				OccurredAt:    now,
			}),
		}, nil

	default:
		return st, nil, fmt.Errorf("cancellation saga: unexpected message type %T", msg)
	}
}

func finalizeCancellationOrder(st domain.CancellationSagaState, now time.Time) (domain.CancellationSagaState, []effect, error) {
	st.CurrentState = domain.CancellationFinalizingOrder
	return st, []effect{
		command(contracts.KindFinalizeOrderCancellation, contracts.FinalizeOrderCancellation{
			CorrelationID: st.CorrelationID,
			OrderID:       st.OrderID,
			OccurredAt:    now,
		}),
	}, nil
}

func cancellationCorrelationID(msg any) (string, bool) {
	switch ev := msg.(type) {
	case *contracts.InventoryReleasedForCancellation:
		return ev.CorrelationID, true
	case *contracts.RefundProcessedForCancellation:
		return ev.CorrelationID, true
	case *contracts.RefundFailedForCancellation:
		return ev.CorrelationID, true
	case *contracts.OrderCancellationFinalized:
		return ev.CorrelationID, true
	default:
		return "", false
	}
}
