package participant

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const returnsAggregate = "returns_participant"

// Returns валидирует заявки на возврат. Отклонение заявки — бизнес-решение
// (Approved=false в успешном событии), инфраструктурная ошибка провайдера —
// отдельное failure-событие.
type Returns struct {
	provider domain.ReturnsProvider
	outbox   domain.OutboxRepository
	logger   *log.Entry
}

// NewReturns создаёт участника валидации возвратов.
func NewReturns(provider domain.ReturnsProvider, outbox domain.OutboxRepository, logger *log.Entry) *Returns {
	if logger == nil {
		logger = log.WithField("component", "returns-participant")
	}
	return &Returns{
		provider: provider,
		outbox:   outbox,
		logger:   logger,
	}
}

// Handle выполняет команду валидации и публикует ровно одно outcome-событие.
func (p *Returns) Handle(ctx context.Context, msg any) error {
	cmd, ok := msg.(*contracts.ValidateReturnRequest)
	if !ok {
		return fmt.Errorf("returns participant: unexpected message type %T", msg)
	}
	return p.validate(ctx, cmd)
}

func (p *Returns) validate(ctx context.Context, cmd *contracts.ValidateReturnRequest) error {
	now := time.Now().UTC()

	verdict, err := p.provider.Validate(ctx, cmd.OrderID, cmd.ReturnType, cmd.Items)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": cmd.CorrelationID,
			"order_id":       cmd.OrderID,
		}).Warn("return validation failed")
		return emitOutcome(p.outbox, p.logger, returnsAggregate, cmd.CorrelationID,
			contracts.KindReturnValidationFailed, contracts.ReturnValidationFailed{
				CorrelationID: cmd.CorrelationID,
				OrderID:       cmd.OrderID,
				Reason:        err.Error(),
				OccurredAt:    now,
			})
	}

	return emitOutcome(p.outbox, p.logger, returnsAggregate, cmd.CorrelationID,
		contracts.KindReturnRequestValidated, contracts.ReturnRequestValidated{
			CorrelationID:      cmd.CorrelationID,
			OrderID:            cmd.OrderID,
			Approved:           verdict.Approved,
			RequiresInspection: requiresInspection(cmd.ReturnType, cmd.Items),
			Reason:             verdict.Reason,
			OccurredAt:         now,
		})
}

// requiresInspection: обмен всегда осматривается, обычный возврат — только
// если хотя бы одна позиция заявлена повреждённой или бракованной.
func requiresInspection(returnType domain.ReturnType, items []domain.ReturnItem) bool {
	if returnType == domain.ReturnTypeExchange {
		return true
	}
	for _, item := range items {
		if item.Condition == domain.ItemConditionDamaged || item.Condition == domain.ItemConditionDefective {
			return true
		}
	}
	return false
}
