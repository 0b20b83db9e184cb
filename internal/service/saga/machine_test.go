package saga

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// outboxLog читает накопленные outbox-сообщения; реализуется
// in-memory outbox-репозиторием, в который пишут репозитории саг.
type outboxLog interface {
	All() []domain.OutboxMessage
}

// expectOutboxKinds проверяет, что outbox содержит ровно эти kind'ы
// в этом порядке.
func expectOutboxKinds(t *testing.T, outbox outboxLog, kinds ...contracts.Kind) {
	t.Helper()

	messages := outbox.All()
	if len(messages) != len(kinds) {
		t.Fatalf("expected %d outbox messages, got %d: %s", len(kinds), len(messages), formatKinds(messages))
	}
	for i, kind := range kinds {
		if messages[i].EventType != string(kind) {
			t.Fatalf("outbox message %d: got %s, want %s", i, messages[i].EventType, kind)
		}
	}
}

func formatKinds(messages []domain.OutboxMessage) string {
	out := ""
	for i, msg := range messages {
		if i > 0 {
			out += ", "
		}
		out += msg.EventType
	}
	return out
}

func TestSetOnce(t *testing.T) {
	first := time.Now().UTC()
	later := first.Add(time.Minute)

	var ts *time.Time
	setOnce(&ts, first)
	if ts == nil || !ts.Equal(first) {
		t.Fatalf("expected first timestamp to stick, got %v", ts)
	}

	setOnce(&ts, later)
	if !ts.Equal(first) {
		t.Fatalf("timestamp overwritten: %v", ts)
	}
}
