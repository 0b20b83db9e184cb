package contracts

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope — транспортный конверт сообщения в Kafka.
// Payload разбирается через Decode по полю Kind.
type Envelope struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	CorrelationID string          `json:"correlation_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Open разбирает конверт и его payload в typed-сообщение.
func (e Envelope) Open() (any, error) {
	if e.CorrelationID == "" {
		return nil, fmt.Errorf("envelope %s: correlation_id is empty", e.ID)
	}
	return Decode(e.Kind, e.Payload)
}

// Seal упаковывает typed-сообщение в конверт.
func Seal(id string, kind Kind, correlationID string, occurredAt time.Time, msg any) (Envelope, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("seal %s payload: %w", kind, err)
	}
	return Envelope{
		ID:            id,
		Kind:          kind,
		CorrelationID: correlationID,
		OccurredAt:    occurredAt,
		Payload:       payload,
	}, nil
}
