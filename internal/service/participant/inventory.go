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

const inventoryAggregate = "inventory_participant"

// Inventory обрабатывает складские команды саг: резерв, снятие резерва
// и возврат позиций на склад.
type Inventory struct {
	provider domain.InventoryProvider
	outbox   domain.OutboxRepository
	logger   *log.Entry
	metrics  *metrics.SagaMetrics
}

// NewInventory создаёт складского участника.
func NewInventory(
	provider domain.InventoryProvider,
	outbox domain.OutboxRepository,
	sagaMetrics *metrics.SagaMetrics,
	logger *log.Entry,
) *Inventory {
	if logger == nil {
		logger = log.WithField("component", "inventory-participant")
	}
	return &Inventory{
		provider: provider,
		outbox:   outbox,
		metrics:  sagaMetrics,
		logger:   logger,
	}
}

// Handle выполняет складскую команду и публикует ровно одно outcome-событие.
func (p *Inventory) Handle(ctx context.Context, msg any) error {
	switch cmd := msg.(type) {
	case *contracts.ReserveInventoryForCheckout:
		return p.reserve(ctx, cmd)
	case *contracts.ReleaseInventoryForCheckout:
		return p.release(ctx, cmd)
	case *contracts.ReleaseInventoryForCancellation:
		return p.releaseForOrder(ctx, cmd)
	case *contracts.RestockReturnedItems:
		return p.restock(ctx, cmd)
	default:
		return fmt.Errorf("inventory participant: unexpected message type %T", msg)
	}
}

func (p *Inventory) reserve(ctx context.Context, cmd *contracts.ReserveInventoryForCheckout) error {
	now := time.Now().UTC()

	reservationID, expiresAt, err := p.provider.Reserve(ctx, cmd.OrderID, cmd.Items)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": cmd.CorrelationID,
			"order_id":       cmd.OrderID,
		}).Warn("inventory reservation failed")
		return emitOutcome(p.outbox, p.logger, inventoryAggregate, cmd.CorrelationID,
			contracts.KindInventoryReservationFailedForCheckout, contracts.InventoryReservationFailedForCheckout{
				CorrelationID: cmd.CorrelationID,
				OrderID:       cmd.OrderID,
				Reason:        err.Error(),
				OccurredAt:    now,
			})
	}

	return emitOutcome(p.outbox, p.logger, inventoryAggregate, cmd.CorrelationID,
		contracts.KindInventoryReservedForCheckout, contracts.InventoryReservedForCheckout{
			CorrelationID: cmd.CorrelationID,
			OrderID:       cmd.OrderID,
			ReservationID: reservationID,
			ExpiresAt:     expiresAt,
			OccurredAt:    now,
		})
}

// release — компенсация: completion публикуется даже при ошибке провайдера.
func (p *Inventory) release(ctx context.Context, cmd *contracts.ReleaseInventoryForCheckout) error {
	if err := p.provider.Release(ctx, cmd.OrderID, cmd.ReservationID); err != nil {
		p.metrics.RecordCompensationError(string(domain.StepStockRelease))
		p.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": cmd.CorrelationID,
			"order_id":       cmd.OrderID,
			"reservation_id": cmd.ReservationID,
		}).Error("inventory release failed, completing compensation anyway")
	}

	return emitOutcome(p.outbox, p.logger, inventoryAggregate, cmd.CorrelationID,
		contracts.KindInventoryReleasedForCheckout, contracts.InventoryReleasedForCheckout{
			CorrelationID: cmd.CorrelationID,
			OrderID:       cmd.OrderID,
			ReservationID: cmd.ReservationID,
			OccurredAt:    time.Now().UTC(),
		})
}

// releaseForOrder — шаг саги отмены; как и компенсации, не падает никогда.
func (p *Inventory) releaseForOrder(ctx context.Context, cmd *contracts.ReleaseInventoryForCancellation) error {
	if err := p.provider.ReleaseForOrder(ctx, cmd.OrderID); err != nil {
		p.metrics.RecordCompensationError(string(domain.StepStockRelease))
		p.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": cmd.CorrelationID,
			"order_id":       cmd.OrderID,
		}).Error("inventory release for cancellation failed, completing anyway")
	}

	return emitOutcome(p.outbox, p.logger, inventoryAggregate, cmd.CorrelationID,
		contracts.KindInventoryReleasedForCancellation, contracts.InventoryReleasedForCancellation{
			CorrelationID: cmd.CorrelationID,
			OrderID:       cmd.OrderID,
			OccurredAt:    time.Now().UTC(),
		})
}

func (p *Inventory) restock(ctx context.Context, cmd *contracts.RestockReturnedItems) error {
	now := time.Now().UTC()

	if err := p.provider.Restock(ctx, cmd.OrderID, cmd.Items); err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": cmd.CorrelationID,
			"order_id":       cmd.OrderID,
		}).Warn("restock failed")
		return emitOutcome(p.outbox, p.logger, inventoryAggregate, cmd.CorrelationID,
			contracts.KindReturnRestockFailed, contracts.ReturnRestockFailed{
				CorrelationID: cmd.CorrelationID,
				OrderID:       cmd.OrderID,
				Reason:        err.Error(),
				OccurredAt:    now,
			})
	}

	return emitOutcome(p.outbox, p.logger, inventoryAggregate, cmd.CorrelationID,
		contracts.KindReturnedItemsRestocked, contracts.ReturnedItemsRestocked{
			CorrelationID: cmd.CorrelationID,
			OrderID:       cmd.OrderID,
			OccurredAt:    now,
		})
}
