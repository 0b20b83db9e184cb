// Package participant реализует обработчики саговых команд: каждый
// участник выполняет свой локальный шаг и публикует ровно одно
// outcome-событие через transactional outbox.
//
// Forward-команды имеют пару успех/неуспех; компенсационные команды
// не падают никогда — ошибка провайдера логируется и учитывается в
// метриках, но completion-событие публикуется в любом случае, иначе
// сага зависнет в компенсации.
package participant

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// emitOutcome кладёт outcome-событие участника в outbox.
func emitOutcome(
	outbox domain.OutboxRepository,
	logger *log.Entry,
	aggregateType string,
	correlationID string,
	kind contracts.Kind,
	payload any,
) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s outcome: %w", kind, err)
	}

	msg := domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   correlationID,
		EventType:     string(kind),
		EventVersion:  1,
		Payload:       data,
		OccurredAt:    time.Now().UTC(),
	}
	if _, err := outbox.Enqueue(msg); err != nil {
		logger.WithError(err).WithFields(log.Fields{
			"correlation_id": correlationID,
			"kind":           kind,
		}).Error("enqueue participant outcome failed")
		return fmt.Errorf("enqueue %s outcome: %w", kind, err)
	}
	return nil
}
