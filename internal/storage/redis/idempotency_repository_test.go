package redis

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func newRedisRepositoryForTest(t *testing.T) (domain.IdempotencyRepository, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "start miniredis")
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return NewIdempotencyRepository(client), mr
}

func TestIdempotencyRepository_RedisFlow(t *testing.T) {
	repo, _ := newRedisRepositoryForTest(t)

	ttl := time.Now().UTC().Add(time.Hour)
	created, err := repo.CreateProcessing("payment:authorize:co-1", "hash-1", ttl)
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	existing, err := repo.CreateProcessing("payment:authorize:co-1", "hash-1", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	assert.Equal(t, "hash-1", existing.RequestHash, "conflict should return the stored record")

	_, err = repo.CreateProcessing("payment:authorize:co-1", "hash-other", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	result := []byte(`{"payment_id":"pay-1"}`)
	require.NoError(t, repo.MarkDone("payment:authorize:co-1", result))

	record, err := repo.Get("payment:authorize:co-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, record.Status)
	assert.JSONEq(t, string(result), string(record.Result))
}

func TestIdempotencyRepository_RedisMarkFailed(t *testing.T) {
	repo, _ := newRedisRepositoryForTest(t)

	_, err := repo.CreateProcessing("payment:refund:cn-1", "hash-1", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed("payment:refund:cn-1", []byte(`{"error":"insufficient funds"}`)))

	record, err := repo.Get("payment:refund:cn-1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusFailed, record.Status)
}

func TestIdempotencyRepository_RedisTTLExpiry(t *testing.T) {
	repo, mr := newRedisRepositoryForTest(t)

	_, err := repo.CreateProcessing("payment:authorize:co-ttl", "hash-1", time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)

	_, err = repo.Get("payment:authorize:co-ttl")
	require.NoError(t, err, "key must be visible before expiry")

	mr.FastForward(2 * time.Minute)

	_, err = repo.Get("payment:authorize:co-ttl")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	// Истёкший ключ можно занять заново.
	fresh, err := repo.CreateProcessing("payment:authorize:co-ttl", "hash-new", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "hash-new", fresh.RequestHash)
}

func TestIdempotencyRepository_RedisMarkKeepsTTL(t *testing.T) {
	repo, mr := newRedisRepositoryForTest(t)

	_, err := repo.CreateProcessing("payment:authorize:co-keep", "hash-1", time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.MarkDone("payment:authorize:co-keep", []byte(`{}`)))

	assert.Positive(t, mr.TTL("idempotency:payment:authorize:co-keep"), "TTL must survive status update")
}

func TestIdempotencyRepository_RedisValidation(t *testing.T) {
	repo, _ := newRedisRepositoryForTest(t)

	_, err := repo.CreateProcessing("", "hash", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)

	_, err = repo.CreateProcessing("key", "", time.Time{})
	assert.ErrorIs(t, err, domain.ErrIdempotencyRequestHashRequired)

	assert.ErrorIs(t, repo.MarkDone("missing-key", nil), domain.ErrIdempotencyKeyNotFound)

	_, err = repo.Get("missing-key")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	n, err := repo.DeleteExpired(time.Now(), 10)
	require.NoError(t, err)
	assert.Zero(t, n, "cleanup is a no-op, redis expires keys itself")
}
