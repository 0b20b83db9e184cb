package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestIdempotencyRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	ttl := time.Now().UTC().Add(time.Hour)
	created, err := repo.CreateProcessing("payment:authorize:co-1", "hash-1", ttl)
	if err != nil {
		t.Fatalf("create processing: %v", err)
	}
	if created.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("expected processing status, got %s", created.Status)
	}

	// Повторная доставка с тем же содержимым — запись уже есть.
	existing, err := repo.CreateProcessing("payment:authorize:co-1", "hash-1", ttl)
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	if existing.RequestHash != "hash-1" {
		t.Fatalf("expected stored record on conflict, got %+v", existing)
	}

	// Тот же ключ с другим содержимым запроса.
	if _, err := repo.CreateProcessing("payment:authorize:co-1", "hash-other", ttl); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}

	result := []byte(`{"payment_id":"pay-1"}`)
	if err := repo.MarkDone("payment:authorize:co-1", result); err != nil {
		t.Fatalf("mark done: %v", err)
	}

	record, err := repo.Get("payment:authorize:co-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != domain.IdempotencyStatusDone {
		t.Fatalf("expected done status, got %s", record.Status)
	}
	if string(record.Result) != string(result) {
		t.Fatalf("result did not round-trip: %s", record.Result)
	}
}

func TestIdempotencyRepository_PostgresFailedStatus(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	ttl := time.Now().UTC().Add(time.Hour)
	if _, err := repo.CreateProcessing("payment:refund:cn-1", "hash-1", ttl); err != nil {
		t.Fatalf("create processing: %v", err)
	}
	if err := repo.MarkFailed("payment:refund:cn-1", []byte(`{"error":"insufficient funds"}`)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	record, err := repo.Get("payment:refund:cn-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != domain.IdempotencyStatusFailed {
		t.Fatalf("expected failed status, got %s", record.Status)
	}
}

func TestIdempotencyRepository_PostgresExpiredKeyIsReusable(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	expired := time.Now().UTC().Add(-time.Minute)
	if _, err := repo.CreateProcessing("payment:authorize:co-old", "hash-old", expired); err != nil {
		t.Fatalf("create expired record: %v", err)
	}

	// Протухшая запись скрыта из чтения.
	if _, err := repo.Get("payment:authorize:co-old"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound for expired record, got %v", err)
	}

	// И не мешает занять ключ заново.
	fresh, err := repo.CreateProcessing("payment:authorize:co-old", "hash-new", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("reuse expired key: %v", err)
	}
	if fresh.RequestHash != "hash-new" {
		t.Fatalf("expected fresh hash, got %q", fresh.RequestHash)
	}
}

func TestIdempotencyRepository_PostgresDeleteExpired(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	expired := time.Now().UTC().Add(-time.Minute)
	for _, key := range []string{"expired-1", "expired-2", "expired-3"} {
		if _, err := repo.CreateProcessing(key, "hash", expired); err != nil {
			t.Fatalf("create expired %s: %v", key, err)
		}
	}
	if _, err := repo.CreateProcessing("alive-1", "hash", time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("create alive record: %v", err)
	}

	deleted, err := repo.DeleteExpired(time.Now().UTC(), 2)
	if err != nil {
		t.Fatalf("delete expired with limit: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}

	deleted, err = repo.DeleteExpired(time.Now().UTC(), 0)
	if err != nil {
		t.Fatalf("delete remaining expired: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	if _, err := repo.Get("alive-1"); err != nil {
		t.Fatalf("alive record must survive cleanup: %v", err)
	}
}

func TestIdempotencyRepository_PostgresValidation(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)

	if _, err := repo.CreateProcessing("", "hash", time.Time{}); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := repo.CreateProcessing("key", "", time.Time{}); !errors.Is(err, domain.ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected ErrIdempotencyRequestHashRequired, got %v", err)
	}
	if err := repo.MarkDone("missing-key", nil); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound on mark done, got %v", err)
	}
}
