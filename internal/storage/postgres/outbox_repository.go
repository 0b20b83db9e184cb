package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository создаёт PostgreSQL-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

func (r *outboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	msg = prepareOutboxMessage(msg)
	if err := insertOutboxMessages(ctx, r.db, []domain.OutboxMessage{msg}); err != nil {
		return domain.OutboxMessage{}, err
	}
	return msg, nil
}

// prepareOutboxMessage выставляет значения по умолчанию для новой
// outbox-строки: генерирует ID и сбрасывает служебные поля публикации.
func prepareOutboxMessage(msg domain.OutboxMessage) domain.OutboxMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}
	if msg.EventVersion == 0 {
		msg.EventVersion = 1
	}
	msg.ProcessedAt = nil
	msg.RetryCount = 0
	msg.LastError = ""
	return msg
}

// insertOutboxMessages пишет outbox-строки через переданный executor.
// Репозитории саг передают сюда *sql.Tx: строки эффектов попадают в ту же
// транзакцию, что и изменение состояния саги.
func insertOutboxMessages(ctx context.Context, ex sqlExecutor, msgs []domain.OutboxMessage) error {
	for _, msg := range msgs {
		_, err := ex.ExecContext(ctx, `
			INSERT INTO outbox_messages (
				id, aggregate_type, aggregate_id, event_type, event_version,
				payload, occurred_at, retry_count, last_error
			) VALUES ($1,$2,$3,$4,$5,$6,$7,0,'')
		`,
			msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.EventVersion,
			msg.Payload, msg.OccurredAt,
		)
		if err != nil {
			return fmt.Errorf("enqueue outbox message: %w", err)
		}
	}
	return nil
}

// prepareOutboxMessages — пакетный вариант prepareOutboxMessage.
func prepareOutboxMessages(msgs []domain.OutboxMessage) []domain.OutboxMessage {
	prepared := make([]domain.OutboxMessage, 0, len(msgs))
	for _, msg := range msgs {
		prepared = append(prepared, prepareOutboxMessage(msg))
	}
	return prepared
}

func (r *outboxRepository) PullPending(limit, retryCeiling int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	if retryCeiling <= 0 {
		retryCeiling = 5
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, event_version,
		       payload, occurred_at, retry_count, last_error
		FROM outbox_messages
		WHERE processed_at IS NULL
		  AND retry_count < $1
		ORDER BY occurred_at, id
		LIMIT $2
	`, retryCeiling, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}
	defer rows.Close()

	result := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(
			&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.EventVersion,
			&msg.Payload, &msg.OccurredAt, &msg.RetryCount, &msg.LastError,
		); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}

	return result, nil
}

func (r *outboxRepository) MarkProcessed(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET processed_at = $1
		WHERE id = $2
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark outbox message processed: %w", err)
	}
	return checkOutboxAffected(res)
}

func (r *outboxRepository) MarkFailed(id, lastError string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET retry_count = retry_count + 1,
		    last_error = $1
		WHERE id = $2
	`, lastError, id)
	if err != nil {
		return fmt.Errorf("mark outbox message failed: %w", err)
	}
	return checkOutboxAffected(res)
}

func (r *outboxRepository) Requeue(minRetries int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if minRetries <= 0 {
		minRetries = 1
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET retry_count = 0,
		    last_error = ''
		WHERE processed_at IS NULL
		  AND retry_count >= $1
	`, minRetries)
	if err != nil {
		return 0, fmt.Errorf("requeue outbox messages: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("outbox rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *outboxRepository) Stats(retryCeiling int) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if retryCeiling <= 0 {
		retryCeiling = 5
	}

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE retry_count < $1),
			COUNT(*) FILTER (WHERE retry_count >= $1),
			MIN(occurred_at) FILTER (WHERE retry_count < $1)
		FROM outbox_messages
		WHERE processed_at IS NULL
	`, retryCeiling).Scan(&stats.PendingCount, &stats.ParkedCount, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats: %w", err)
	}

	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time
	}
	return stats, nil
}

func checkOutboxAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("outbox rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOutboxMessageNotFound
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
