package participant

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

const orderAggregate = "order_participant"

// Order обрабатывает команды сервиса заказов: подтверждение, отмену
// и финализацию. Отмена и обе финализации не падают никогда.
type Order struct {
	provider domain.OrderProvider
	outbox   domain.OutboxRepository
	logger   *log.Entry
	metrics  *metrics.SagaMetrics
}

// NewOrder создаёт участника сервиса заказов.
func NewOrder(
	provider domain.OrderProvider,
	outbox domain.OutboxRepository,
	sagaMetrics *metrics.SagaMetrics,
	logger *log.Entry,
) *Order {
	if logger == nil {
		logger = log.WithField("component", "order-participant")
	}
	return &Order{
		provider: provider,
		outbox:   outbox,
		metrics:  sagaMetrics,
		logger:   logger,
	}
}

// Handle выполняет команду заказа и публикует ровно одно outcome-событие.
func (p *Order) Handle(ctx context.Context, msg any) error {
	switch cmd := msg.(type) {
	case *contracts.ConfirmOrderForCheckout:
		return p.confirm(ctx, cmd)
	case *contracts.CancelOrderForCheckout:
		return p.cancel(ctx, cmd)
	case *contracts.FinalizeOrderCancellation:
		return p.finalizeCancellation(ctx, cmd)
	case *contracts.FinalizeReturn:
		return p.finalizeReturn(ctx, cmd)
	default:
		return fmt.Errorf("order participant: unexpected message type %T", msg)
	}
}

func (p *Order) confirm(ctx context.Context, cmd *contracts.ConfirmOrderForCheckout) error {
	now := time.Now().UTC()

	if err := p.provider.Confirm(ctx, cmd.OrderID); err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": cmd.CorrelationID,
			"order_id":       cmd.OrderID,
		}).Warn("order confirmation failed")
		return emitOutcome(p.outbox, p.logger, orderAggregate, cmd.CorrelationID,
			contracts.KindOrderConfirmationFailedForCheckout, contracts.OrderConfirmationFailedForCheckout{
				CorrelationID: cmd.CorrelationID,
				OrderID:       cmd.OrderID,
				Reason:        err.Error(),
				OccurredAt:    now,
			})
	}

	return emitOutcome(p.outbox, p.logger, orderAggregate, cmd.CorrelationID,
		contracts.KindOrderConfirmedForCheckout, contracts.OrderConfirmedForCheckout{
			CorrelationID: cmd.CorrelationID,
			OrderID:       cmd.OrderID,
			OccurredAt:    now,
		})
}

// cancel — компенсация: completion публикуется даже при ошибке провайдера.
func (p *Order) cancel(ctx context.Context, cmd *contracts.CancelOrderForCheckout) error {
	if err := p.provider.Cancel(ctx, cmd.OrderID, cmd.Reason); err != nil {
		p.metrics.RecordCompensationError(string(domain.StepOrderConfirmation))
		p.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": cmd.CorrelationID,
			"order_id":       cmd.OrderID,
		}).Error("order cancel failed, completing compensation anyway")
	}

	return emitOutcome(p.outbox, p.logger, orderAggregate, cmd.CorrelationID,
		contracts.KindOrderCanceledForCheckout, contracts.OrderCanceledForCheckout{
			CorrelationID: cmd.CorrelationID,
			OrderID:       cmd.OrderID,
			OccurredAt:    time.Now().UTC(),
		})
}

func (p *Order) finalizeCancellation(ctx context.Context, cmd *contracts.FinalizeOrderCancellation) error {
	if err := p.provider.FinalizeCancellation(ctx, cmd.OrderID); err != nil {
		p.metrics.RecordCompensationError(string(domain.StepOrderFinalization))
		p.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": cmd.CorrelationID,
			"order_id":       cmd.OrderID,
		}).Error("order cancellation finalize failed, completing anyway")
	}

	return emitOutcome(p.outbox, p.logger, orderAggregate, cmd.CorrelationID,
		contracts.KindOrderCancellationFinalized, contracts.OrderCancellationFinalized{
			CorrelationID: cmd.CorrelationID,
			OrderID:       cmd.OrderID,
			OccurredAt:    time.Now().UTC(),
		})
}

func (p *Order) finalizeReturn(ctx context.Context, cmd *contracts.FinalizeReturn) error {
	if err := p.provider.FinalizeReturn(ctx, cmd.OrderID, cmd.CorrelationID); err != nil {
		p.metrics.RecordCompensationError(string(domain.StepReturnFinalization))
		p.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": cmd.CorrelationID,
			"order_id":       cmd.OrderID,
		}).Error("return finalize failed, completing anyway")
	}

	return emitOutcome(p.outbox, p.logger, orderAggregate, cmd.CorrelationID,
		contracts.KindReturnFinalized, contracts.ReturnFinalized{
			CorrelationID: cmd.CorrelationID,
			OrderID:       cmd.OrderID,
			OccurredAt:    time.Now().UTC(),
		})
}
