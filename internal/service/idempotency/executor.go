// Package idempotency обеспечивает at-most-once выполнение операций
// с внешними side-effect'ами: результат первого выполнения кэшируется
// под idempotency-key и воспроизводится при повторах.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	defaultTTL = 24 * time.Hour

	markDoneRetries  = 3
	markDoneInterval = 50 * time.Millisecond
)

var idempotencyOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fulfillment_idempotency_outcomes_total",
	Help: "Total number of idempotent executions grouped by outcome.",
}, []string{"outcome"})

// Executor выполняет операции под idempotency-key.
//
// Повтор с тем же ключом и тем же хешом запроса воспроизводит
// сохранённый результат; тот же ключ с другим хешом — конфликт.
type Executor struct {
	repo   domain.IdempotencyRepository
	logger *log.Entry
	ttl    time.Duration
}

// ExecutorOption настраивает Executor.
type ExecutorOption func(*Executor)

// WithTTL задаёт время жизни idempotency-записей.
func WithTTL(ttl time.Duration) ExecutorOption {
	return func(e *Executor) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithExecutorLogger задаёт logger.
func WithExecutorLogger(logger *log.Entry) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor создаёт Executor. Nil-репозиторий отключает идемпотентность:
// операции выполняются напрямую.
func NewExecutor(repo domain.IdempotencyRepository, options ...ExecutorOption) *Executor {
	e := &Executor{
		repo:   repo,
		logger: log.WithField("component", "idempotency-executor"),
		ttl:    defaultTTL,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

type failurePayload struct {
	Message string `json:"message"`
}

// Execute выполняет op не более одного раза на ключ.
//
// Повтор завершённой операции возвращает кэшированный результат, не
// вызывая op. Повтор во время выполнения оригинала даёт
// ErrIdempotencyInProgress: вызывающая сторона решает, ждать или
// передоставить. Ключ, переиспользованный с другим запросом, даёт
// ErrIdempotencyHashMismatch.
func Execute[T any](ctx context.Context, e *Executor, key string, request any, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if e == nil || e.repo == nil {
		return op(ctx)
	}
	if key == "" {
		return zero, domain.ErrIdempotencyKeyRequired
	}

	hash, err := RequestHash(request)
	if err != nil {
		return zero, fmt.Errorf("hash idempotent request: %w", err)
	}

	record, createErr := e.repo.CreateProcessing(key, hash, time.Now().UTC().Add(e.ttl))
	if createErr != nil {
		return replay[T](e, key, record, createErr)
	}

	result, runErr := op(ctx)
	if runErr != nil {
		e.cacheFailure(key, runErr)
		return result, runErr
	}

	if cacheErr := e.cacheSuccess(ctx, key, result); cacheErr != nil {
		e.logger.WithError(cacheErr).WithField("idempotency_key", key).Warn("failed to cache idempotent result")
	}
	idempotencyOutcomesTotal.WithLabelValues("executed").Inc()
	return result, nil
}

func replay[T any](e *Executor, key string, record domain.IdempotencyRecord, createErr error) (T, error) {
	var zero T

	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		idempotencyOutcomesTotal.WithLabelValues("conflict").Inc()
		e.logger.WithField("idempotency_key", key).Warn("idempotency key reused with different request payload")
		return zero, domain.ErrIdempotencyHashMismatch

	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone:
			var result T
			if len(record.Result) > 0 {
				if err := json.Unmarshal(record.Result, &result); err != nil {
					return zero, fmt.Errorf("decode cached idempotent result: %w", err)
				}
			}
			idempotencyOutcomesTotal.WithLabelValues("replayed").Inc()
			return result, nil
		case domain.IdempotencyStatusProcessing:
			idempotencyOutcomesTotal.WithLabelValues("in_progress").Inc()
			return zero, domain.ErrIdempotencyInProgress
		case domain.IdempotencyStatusFailed:
			idempotencyOutcomesTotal.WithLabelValues("replayed_failure").Inc()
			return zero, decodeCachedFailure(record)
		default:
			return zero, fmt.Errorf("unknown idempotency record status %q", record.Status)
		}

	default:
		return zero, fmt.Errorf("create idempotency record: %w", createErr)
	}
}

// cacheSuccess переводит запись в done с ретраями: запись, застрявшая в
// processing, до истечения TTL отвечает на повторы ErrIdempotencyInProgress
// вместо кэшированного результата.
func (e *Executor) cacheSuccess(ctx context.Context, key string, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = markDoneInterval
	return backoff.Retry(func() error {
		return e.repo.MarkDone(key, data)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, markDoneRetries), ctx))
}

func (e *Executor) cacheFailure(key string, runErr error) {
	payload, err := json.Marshal(failurePayload{Message: runErr.Error()})
	if err != nil {
		payload = nil
	}
	if err := e.repo.MarkFailed(key, payload); err != nil {
		e.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to cache idempotent failure")
	}
}

func decodeCachedFailure(record domain.IdempotencyRecord) error {
	var payload failurePayload
	if len(record.Result) > 0 {
		if err := json.Unmarshal(record.Result, &payload); err != nil {
			payload.Message = ""
		}
	}
	if payload.Message == "" {
		payload.Message = "previous request with the same idempotency key failed"
	}
	return errors.New(payload.Message)
}

// RequestHash строит детерминированный хеш содержимого запроса.
func RequestHash(request any) (string, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
