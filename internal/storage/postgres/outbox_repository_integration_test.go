package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	msgWithoutID := domain.OutboxMessage{
		AggregateType: "checkout_saga",
		AggregateID:   "co-1",
		EventType:     "fulfillment.checkout.started",
		Payload:       []byte(`{"correlation_id":"co-1"}`),
	}
	stored1, err := repo.Enqueue(msgWithoutID)
	if err != nil {
		t.Fatalf("enqueue msg without id: %v", err)
	}
	if stored1.ID == "" {
		t.Fatal("expected generated id for outbox message")
	}

	time.Sleep(5 * time.Millisecond)

	msgWithID := domain.OutboxMessage{
		ID:            "outbox-fixed-id",
		AggregateType: "checkout_saga",
		AggregateID:   "co-2",
		EventType:     "fulfillment.checkout.started",
		Payload:       []byte(`{"correlation_id":"co-2"}`),
	}
	stored2, err := repo.Enqueue(msgWithID)
	if err != nil {
		t.Fatalf("enqueue msg with id: %v", err)
	}
	if stored2.ID != msgWithID.ID {
		t.Fatalf("expected fixed id %q, got %q", msgWithID.ID, stored2.ID)
	}

	pending, err := repo.PullPending(0, 0) // default limit and ceiling
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if pending[0].ID != stored1.ID {
		t.Fatalf("expected occurred_at ordering, got first id %q", pending[0].ID)
	}

	stats, err := repo.Stats(0)
	if err != nil {
		t.Fatalf("stats before marks: %v", err)
	}
	if stats.PendingCount != 2 {
		t.Fatalf("expected pending=2 before marks, got %d", stats.PendingCount)
	}
	if stats.OldestPendingAt.IsZero() {
		t.Fatal("expected oldest pending timestamp")
	}

	if err := repo.MarkProcessed(stored1.ID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := repo.MarkFailed(stored2.ID, "broker unavailable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	after, err := repo.PullPending(10, 0)
	if err != nil {
		t.Fatalf("pull pending after marks: %v", err)
	}
	if len(after) != 1 {
		t.Fatalf("expected 1 pending after marks, got %d", len(after))
	}
	if after[0].RetryCount != 1 {
		t.Fatalf("expected retry_count=1 after failure, got %d", after[0].RetryCount)
	}
	if after[0].LastError != "broker unavailable" {
		t.Fatalf("expected last error to persist, got %q", after[0].LastError)
	}
}

func TestOutboxRepository_PostgresRetryCeilingAndRequeue(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	stored, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "cancellation_saga",
		AggregateID:   "cn-1",
		EventType:     "fulfillment.cancellation.requested",
		Payload:       []byte(`{"correlation_id":"cn-1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	const ceiling = 2
	for i := 0; i < ceiling; i++ {
		if err := repo.MarkFailed(stored.ID, "still failing"); err != nil {
			t.Fatalf("mark failed #%d: %v", i+1, err)
		}
	}

	// Достигла потолка — из polling исключена.
	pending, err := repo.PullPending(10, ceiling)
	if err != nil {
		t.Fatalf("pull pending at ceiling: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected parked message to be excluded, got %d pending", len(pending))
	}

	stats, err := repo.Stats(ceiling)
	if err != nil {
		t.Fatalf("stats at ceiling: %v", err)
	}
	if stats.ParkedCount != 1 || stats.PendingCount != 0 {
		t.Fatalf("expected parked=1 pending=0, got parked=%d pending=%d", stats.ParkedCount, stats.PendingCount)
	}

	requeued, err := repo.Requeue(ceiling)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if requeued != 1 {
		t.Fatalf("expected 1 requeued message, got %d", requeued)
	}

	back, err := repo.PullPending(10, ceiling)
	if err != nil {
		t.Fatalf("pull pending after requeue: %v", err)
	}
	if len(back) != 1 {
		t.Fatalf("expected message back in polling, got %d", len(back))
	}
	if back[0].RetryCount != 0 || back[0].LastError != "" {
		t.Fatalf("expected retry state reset, got retry=%d lastError=%q", back[0].RetryCount, back[0].LastError)
	}
}

func TestOutboxRepository_PostgresMissingRows(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	if err := repo.MarkProcessed("missing-outbox"); !errors.Is(err, domain.ErrOutboxMessageNotFound) {
		t.Fatalf("expected ErrOutboxMessageNotFound on mark processed, got %v", err)
	}
	if err := repo.MarkFailed("missing-outbox", "boom"); !errors.Is(err, domain.ErrOutboxMessageNotFound) {
		t.Fatalf("expected ErrOutboxMessageNotFound on mark failed, got %v", err)
	}
}
