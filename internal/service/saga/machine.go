// Package saga реализует три конечных автомата оркестрации:
// checkout, отмена заказа и возврат/refund.
//
// Каждый автомат устроен одинаково: чистая функция перехода
// (состояние, событие) -> (новое состояние, эффекты) плюс runner,
// который загружает состояние по correlation id, применяет переход и
// сохраняет результат под optimistic locking. Эффекты (исходящие команды
// и события) передаются репозиторию вместе с состоянием и записываются
// в transactional outbox той же транзакцией.
package saga

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// errEventIgnored возвращается функцией перехода, когда событие не
// применимо к текущему состоянию: повторная или запоздавшая доставка.
// Runner трактует это как no-op, а не как ошибку.
var errEventIgnored = errors.New("event ignored for current state")

// effect — исходящее сообщение, порождённое переходом.
// Эффекты не публикуются напрямую: они попадают в outbox и доставляются
// диспетчером at-least-once.
type effect struct {
	kind    contracts.Kind
	payload any
}

func command(kind contracts.Kind, payload any) effect {
	return effect{kind: kind, payload: payload}
}

func publish(kind contracts.Kind, payload any) effect {
	return effect{kind: kind, payload: payload}
}

// outboxMessages сериализует эффекты перехода в outbox-строки.
// Вызывается ДО сохранения состояния: ошибка маршалинга не оставляет
// сагу продвинутой без записанных команд.
func outboxMessages(aggregateType, correlationID string, effects []effect) ([]domain.OutboxMessage, error) {
	if len(effects) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	msgs := make([]domain.OutboxMessage, 0, len(effects))
	for _, eff := range effects {
		payload, err := json.Marshal(eff.payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s effect: %w", eff.kind, err)
		}
		msgs = append(msgs, domain.OutboxMessage{
			AggregateType: aggregateType,
			AggregateID:   correlationID,
			EventType:     string(eff.kind),
			EventVersion:  1,
			Payload:       payload,
			OccurredAt:    now,
		})
	}
	return msgs, nil
}

func setOnce(dst **time.Time, now time.Time) {
	if *dst == nil {
		ts := now
		*dst = &ts
	}
}
