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

const returnAggregate = "return_saga"

// ReturnRefund — конечный автомат саги возврата:
// Validating → RestockingInventory → ProcessingRefund(опц.) → Finalizing →
// Completed; Failed достижим из валидации, restock и refund.
type ReturnRefund struct {
	states  domain.ReturnSagaRepository
	logger  *log.Entry
	metrics *metrics.SagaMetrics
}

// NewReturnRefund создаёт автомат возврата.
func NewReturnRefund(
	states domain.ReturnSagaRepository,
	sagaMetrics *metrics.SagaMetrics,
	logger *log.Entry,
) *ReturnRefund {
	if logger == nil {
		logger = log.WithField("component", "return-saga")
	}
	return &ReturnRefund{
		states:  states,
		metrics: sagaMetrics,
		logger:  logger,
	}
}

// Handle применяет входящее сообщение к саге.
func (r *ReturnRefund) Handle(msg any) error {
	if requested, ok := msg.(*contracts.ReturnRequested); ok {
		return r.start(requested)
	}

	correlationID, ok := returnCorrelationID(msg)
	if !ok {
		return fmt.Errorf("return saga: unexpected message type %T", msg)
	}
	if correlationID == "" {
		return domain.ErrCorrelationIDRequired
	}

	st, err := r.states.Get(correlationID)
	if err != nil {
		if errors.Is(err, domain.ErrSagaNotFound) {
			r.logger.WithField("correlation_id", correlationID).Warn("return event for unknown saga, dropping")
			return nil
		}
		return fmt.Errorf("load return saga: %w", err)
	}
	if st.Completed() {
		r.logger.WithField("correlation_id", correlationID).Debug("return saga already completed, event is a no-op")
		r.metrics.RecordEventIgnored(string(domain.SagaTypeReturnRefund))
		return nil
	}

	now := time.Now().UTC()
	next, effects, err := transitionReturn(st, msg, now)
	if err != nil {
		if errors.Is(err, errEventIgnored) {
			r.logger.WithFields(log.Fields{
				"correlation_id": correlationID,
				"current_state":  st.CurrentState,
			}).Debug("return event ignored for current state")
			r.metrics.RecordEventIgnored(string(domain.SagaTypeReturnRefund))
			return nil
		}
		return err
	}

	rows, err := outboxMessages(returnAggregate, correlationID, effects)
	if err != nil {
		return err
	}

	next.UpdatedAt = now
	if err := r.states.Save(next, rows...); err != nil {
		if domain.IsVersionConflict(err) {
			r.logger.WithField("correlation_id", correlationID).Warn("return saga version conflict, leaving redelivery to the bus")
			r.metrics.RecordVersionConflict(string(domain.SagaTypeReturnRefund))
		}
		return err
	}

	r.recordTerminal(next, now)
	for range effects {
		r.metrics.RecordOutboxEffect()
	}
	return nil
}

func (r *ReturnRefund) start(ev *contracts.ReturnRequested) error {
	if ev.CorrelationID == "" {
		return domain.ErrCorrelationIDRequired
	}
	if ev.OrderID == "" {
		return domain.ErrOrderIDRequired
	}

	now := time.Now().UTC()
	st := domain.ReturnSagaState{
		CorrelationID:     ev.CorrelationID,
		CurrentState:      domain.ReturnValidating,
		OrderID:           ev.OrderID,
		CustomerID:        ev.CustomerID,
		PaymentID:         ev.PaymentID,
		ReturnType:        ev.ReturnType,
		Items:             ev.Items,
		RefundAmountMinor: ev.RefundAmountMinor,
		Currency:          ev.Currency,
		Version:           0,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	rows, err := outboxMessages(returnAggregate, ev.CorrelationID, []effect{
		command(contracts.KindValidateReturnRequest, contracts.ValidateReturnRequest{
			CorrelationID: ev.CorrelationID,
			OrderID:       ev.OrderID,
			ReturnType:    ev.ReturnType,
			Items:         ev.Items,
			OccurredAt:    now,
		}),
	})
	if err != nil {
		return err
	}

	if err := r.states.Create(st, rows...); err != nil {
		if errors.Is(err, domain.ErrSagaAlreadyExists) {
			r.logger.WithField("correlation_id", ev.CorrelationID).Debug("return saga already started, trigger is a no-op")
			return nil
		}
		return fmt.Errorf("create return saga: %w", err)
	}

	r.metrics.RecordSagaStarted(string(domain.SagaTypeReturnRefund))
	r.metrics.RecordOutboxEffect()
	r.logger.WithFields(log.Fields{
		"correlation_id": ev.CorrelationID,
		"order_id":       ev.OrderID,
	}).Info("return saga started")

	return nil
}

func (r *ReturnRefund) recordTerminal(st domain.ReturnSagaState, now time.Time) {
	if st.CompletedAt == nil {
		return
	}
	switch st.CurrentState {
	case domain.ReturnCompleted:
		r.metrics.RecordSagaCompleted(string(domain.SagaTypeReturnRefund), now.Sub(st.CreatedAt))
		r.logger.WithField("correlation_id", st.CorrelationID).Info("return saga completed")
	case domain.ReturnFailed:
		r.metrics.RecordSagaFailed(string(domain.SagaTypeReturnRefund), now.Sub(st.CreatedAt))
		r.logger.WithFields(log.Fields{
			"correlation_id": st.CorrelationID,
			"failed_step":    st.FailedStep,
			"failure_reason": st.FailureReason,
		}).Warn("return saga failed")
	}
}

// transitionReturn — чистая функция перехода саги возврата.
func transitionReturn(st domain.ReturnSagaState, msg any, now time.Time) (domain.ReturnSagaState, []effect, error) {
	switch ev := msg.(type) {
	case *contracts.ReturnRequestValidated:
		if st.CurrentState != domain.ReturnValidating {
			return st, nil, errEventIgnored
		}
		setOnce(&st.ValidatedAt, now)
		// Флаг переносится через состояние, но не ветвит переходы.
		st.RequiresInspection = ev.RequiresInspection
		if !ev.Approved {
			reason := ev.Reason
			if reason == "" {
				reason = "return request rejected"
			}
			return failReturn(st, reason, domain.StepReturnValidation, now)
		}
		st.CurrentState = domain.ReturnRestockingInventory
		return st, []effect{
			command(contracts.KindRestockReturnedItems, contracts.RestockReturnedItems{
				CorrelationID: st.CorrelationID,
				OrderID:       st.OrderID,
				Items:         st.Items,
				OccurredAt:    now,
			}),
		}, nil

	case *contracts.ReturnValidationFailed:
		if st.CurrentState != domain.ReturnValidating {
			return st, nil, errEventIgnored
		}
		setOnce(&st.ValidatedAt, now)
		return failReturn(st, ev.Reason, domain.StepReturnValidation, now)

	case *contracts.ReturnedItemsRestocked:
		if st.CurrentState != domain.ReturnRestockingInventory {
			return st, nil, errEventIgnored
		}
		setOnce(&st.RestockedAt, now)
		if st.RefundRequired() {
			st.CurrentState = domain.ReturnProcessingRefund
			return st, []effect{
				command(contracts.KindProcessReturnRefund, contracts.ProcessReturnRefund{
					CorrelationID: st.CorrelationID,
					OrderID:       st.OrderID,
					PaymentID:     st.PaymentID,
					AmountMinor:   st.RefundAmountMinor,
					Currency:      st.Currency,
					OccurredAt:    now,
				}),
			}, nil
		}
		return finalizeReturn(st, now)

	case *contracts.ReturnRestockFailed:
		if st.CurrentState != domain.ReturnRestockingInventory {
			return st, nil, errEventIgnored
		}
		return failReturn(st, ev.Reason, domain.StepRestocking, now)

	case *contracts.ReturnRefundProcessed:
		if st.CurrentState != domain.ReturnProcessingRefund {
			return st, nil, errEventIgnored
		}
		st.RefundID = ev.RefundID
		setOnce(&st.RefundProcessedAt, now)
		return finalizeReturn(st, now)

	case *contracts.ReturnRefundFailed:
		if st.CurrentState != domain.ReturnProcessingRefund {
			return st, nil, errEventIgnored
		}
		return failReturn(st, ev.Reason, domain.StepRefund, now)

	case *contracts.ReturnFinalized:
		if st.CurrentState != domain.ReturnFinalizing {
			return st, nil, errEventIgnored
		}
		setOnce(&st.FinalizedAt, now)
		st.CurrentState = domain.ReturnCompleted
		setOnce(&st.CompletedAt, now)
		return st, []effect{
			publish(contracts.KindReturnRefundCompleted, contracts.ReturnRefundCompleted{
				CorrelationID:      st.CorrelationID,
				OrderID:            st.OrderID,
				RefundID:           st.RefundID,
				RequiresInspection: st.RequiresInspection,
				OccurredAt:         now,
			}),
		}, nil

	default:
		return st, nil, fmt.Errorf("return saga: unexpected message type %T", msg)
	}
}

func finalizeReturn(st domain.ReturnSagaState, now time.Time) (domain.ReturnSagaState, []effect, error) {
	st.CurrentState = domain.ReturnFinalizing
	return st, []effect{
		command(contracts.KindFinalizeReturn, contracts.FinalizeReturn{
			CorrelationID: st.CorrelationID,
			OrderID:       st.OrderID,
			OccurredAt:    now,
		}),
	}, nil
}

func failReturn(st domain.ReturnSagaState, reason string, step domain.SagaStep, now time.Time) (domain.ReturnSagaState, []effect, error) {
	st.FailureReason = reason
	st.FailedStep = step
	st.CurrentState = domain.ReturnFailed
	setOnce(&st.CompletedAt, now)
	return st, []effect{
		publish(contracts.KindReturnRefundSagaFailed, contracts.ReturnRefundSagaFailed{
			CorrelationID: st.CorrelationID,
			OrderID:       st.OrderID,
			FailureReason: reason,
			FailedStep:    string(step),
			OccurredAt:    now,
		}),
	}, nil
}

func returnCorrelationID(msg any) (string, bool) {
	switch ev := msg.(type) {
	case *contracts.ReturnRequestValidated:
		return ev.CorrelationID, true
	case *contracts.ReturnValidationFailed:
		return ev.CorrelationID, true
	case *contracts.ReturnedItemsRestocked:
		return ev.CorrelationID, true
	case *contracts.ReturnRestockFailed:
		return ev.CorrelationID, true
	case *contracts.ReturnRefundProcessed:
		return ev.CorrelationID, true
	case *contracts.ReturnRefundFailed:
		return ev.CorrelationID, true
	case *contracts.ReturnFinalized:
		return ev.CorrelationID, true
	default:
		return "", false
	}
}
