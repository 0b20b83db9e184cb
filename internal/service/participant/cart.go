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

const cartAggregate = "cart_participant"

// Cart деактивирует корзину после подтверждения заказа. Шаг неблокирующий:
// completion публикуется даже при ошибке провайдера.
type Cart struct {
	provider domain.CartProvider
	outbox   domain.OutboxRepository
	logger   *log.Entry
	metrics  *metrics.SagaMetrics
}

// NewCart создаёт корзинного участника.
func NewCart(
	provider domain.CartProvider,
	outbox domain.OutboxRepository,
	sagaMetrics *metrics.SagaMetrics,
	logger *log.Entry,
) *Cart {
	if logger == nil {
		logger = log.WithField("component", "cart-participant")
	}
	return &Cart{
		provider: provider,
		outbox:   outbox,
		metrics:  sagaMetrics,
		logger:   logger,
	}
}

// Handle выполняет команду корзины и публикует ровно одно outcome-событие.
func (p *Cart) Handle(ctx context.Context, msg any) error {
	cmd, ok := msg.(*contracts.DeactivateCartForCheckout)
	if !ok {
		return fmt.Errorf("cart participant: unexpected message type %T", msg)
	}
	return p.deactivate(ctx, cmd)
}

func (p *Cart) deactivate(ctx context.Context, cmd *contracts.DeactivateCartForCheckout) error {
	if err := p.provider.Deactivate(ctx, cmd.CartID); err != nil {
		p.metrics.RecordCompensationError(string(domain.StepCartDeactivation))
		p.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": cmd.CorrelationID,
			"cart_id":        cmd.CartID,
		}).Error("cart deactivation failed, completing anyway")
	}

	return emitOutcome(p.outbox, p.logger, cartAggregate, cmd.CorrelationID,
		contracts.KindCartDeactivatedForCheckout, contracts.CartDeactivatedForCheckout{
			CorrelationID: cmd.CorrelationID,
			CartID:        cmd.CartID,
			OccurredAt:    time.Now().UTC(),
		})
}
