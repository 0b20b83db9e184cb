package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const opTimeout = 5 * time.Second

// sqlExecutor покрывает *sql.DB и *sql.Tx: запросы репозиториев работают
// и напрямую, и внутри транзакции.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx выполняет fn в транзакции с откатом при ошибке.
// Create/Save саг пишут состояние и outbox-строки эффектов одной
// транзакцией: частично сохранённый переход невозможен.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin saga tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit saga tx: %w", err)
	}
	return nil
}

type checkoutSagaRepository struct {
	db *sql.DB
}

// NewCheckoutSagaRepository создаёт PostgreSQL-реализацию CheckoutSagaRepository.
func NewCheckoutSagaRepository(store *Store) domain.CheckoutSagaRepository {
	return &checkoutSagaRepository{db: store.DB()}
}

func (r *checkoutSagaRepository) Create(state domain.CheckoutSagaState, outbox ...domain.OutboxMessage) error {
	if strings.TrimSpace(state.CorrelationID) == "" {
		return domain.ErrCorrelationIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	items, err := json.Marshal(state.Items)
	if err != nil {
		return fmt.Errorf("marshal checkout items: %w", err)
	}

	now := time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = now
	}
	if state.Version == 0 {
		state.Version = 1
	}
	messages := prepareOutboxMessages(outbox)

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO checkout_sagas (
				correlation_id, current_state, order_id, order_number, customer_id,
				customer_email, cart_id, amount_minor, currency, items,
				reservation_id, payment_id, transaction_id,
				inventory_reserved_at, payment_authorized_at, confirmed_at,
				cart_deactivated_at, completed_at,
				failure_reason, failed_step, version, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		`,
			state.CorrelationID, string(state.CurrentState), state.OrderID, state.OrderNumber,
			state.CustomerID, state.CustomerEmail, state.CartID, state.AmountMinor, state.Currency,
			items, state.ReservationID, state.PaymentID, state.TransactionID,
			state.InventoryReservedAt, state.PaymentAuthorizedAt, state.ConfirmedAt,
			state.CartDeactivatedAt, state.CompletedAt,
			state.FailureReason, string(state.FailedStep), state.Version, state.CreatedAt, state.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrSagaAlreadyExists
			}
			return fmt.Errorf("insert checkout saga: %w", err)
		}

		return insertOutboxMessages(ctx, tx, messages)
	})
}

func (r *checkoutSagaRepository) Get(correlationID string) (domain.CheckoutSagaState, error) {
	if strings.TrimSpace(correlationID) == "" {
		return domain.CheckoutSagaState{}, domain.ErrCorrelationIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		state      domain.CheckoutSagaState
		current    string
		failedStep string
		items      []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT correlation_id, current_state, order_id, order_number, customer_id,
		       customer_email, cart_id, amount_minor, currency, items,
		       reservation_id, payment_id, transaction_id,
		       inventory_reserved_at, payment_authorized_at, confirmed_at,
		       cart_deactivated_at, completed_at,
		       failure_reason, failed_step, version, created_at, updated_at
		FROM checkout_sagas
		WHERE correlation_id = $1
	`, correlationID).Scan(
		&state.CorrelationID, &current, &state.OrderID, &state.OrderNumber, &state.CustomerID,
		&state.CustomerEmail, &state.CartID, &state.AmountMinor, &state.Currency, &items,
		&state.ReservationID, &state.PaymentID, &state.TransactionID,
		&state.InventoryReservedAt, &state.PaymentAuthorizedAt, &state.ConfirmedAt,
		&state.CartDeactivatedAt, &state.CompletedAt,
		&state.FailureReason, &failedStep, &state.Version, &state.CreatedAt, &state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CheckoutSagaState{}, domain.ErrSagaNotFound
		}
		return domain.CheckoutSagaState{}, fmt.Errorf("select checkout saga: %w", err)
	}

	state.CurrentState = domain.CheckoutState(current)
	state.FailedStep = domain.SagaStep(failedStep)
	if err := json.Unmarshal(items, &state.Items); err != nil {
		return domain.CheckoutSagaState{}, fmt.Errorf("unmarshal checkout items: %w", err)
	}

	return state, nil
}

func (r *checkoutSagaRepository) Save(state domain.CheckoutSagaState, outbox ...domain.OutboxMessage) error {
	if strings.TrimSpace(state.CorrelationID) == "" {
		return domain.ErrCorrelationIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	items, err := json.Marshal(state.Items)
	if err != nil {
		return fmt.Errorf("marshal checkout items: %w", err)
	}
	messages := prepareOutboxMessages(outbox)

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE checkout_sagas
			SET current_state = $1,
			    items = $2,
			    reservation_id = $3,
			    payment_id = $4,
			    transaction_id = $5,
			    inventory_reserved_at = $6,
			    payment_authorized_at = $7,
			    confirmed_at = $8,
			    cart_deactivated_at = $9,
			    completed_at = $10,
			    failure_reason = $11,
			    failed_step = $12,
			    version = version + 1,
			    updated_at = $13
			WHERE correlation_id = $14
			  AND version = $15
		`,
			string(state.CurrentState), items, state.ReservationID, state.PaymentID,
			state.TransactionID, state.InventoryReservedAt, state.PaymentAuthorizedAt,
			state.ConfirmedAt, state.CartDeactivatedAt, state.CompletedAt,
			state.FailureReason, string(state.FailedStep), time.Now().UTC(),
			state.CorrelationID, state.Version,
		)
		if err != nil {
			return fmt.Errorf("update checkout saga: %w", err)
		}

		if err := checkOptimisticSave(ctx, tx, res, "checkout_sagas", state.CorrelationID); err != nil {
			return err
		}

		return insertOutboxMessages(ctx, tx, messages)
	})
}

type cancellationSagaRepository struct {
	db *sql.DB
}

// NewCancellationSagaRepository создаёт PostgreSQL-реализацию CancellationSagaRepository.
func NewCancellationSagaRepository(store *Store) domain.CancellationSagaRepository {
	return &cancellationSagaRepository{db: store.DB()}
}

func (r *cancellationSagaRepository) Create(state domain.CancellationSagaState, outbox ...domain.OutboxMessage) error {
	if strings.TrimSpace(state.CorrelationID) == "" {
		return domain.ErrCorrelationIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = now
	}
	if state.Version == 0 {
		state.Version = 1
	}
	messages := prepareOutboxMessages(outbox)

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cancellation_sagas (
				correlation_id, current_state, order_id, customer_id, payment_id,
				refund_amount_minor, currency, reason, refund_id,
				stock_released_at, refund_processed_at, completed_at,
				failure_reason, failed_step, version, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		`,
			state.CorrelationID, string(state.CurrentState), state.OrderID, state.CustomerID,
			state.PaymentID, state.RefundAmountMinor, state.Currency, state.Reason, state.RefundID,
			state.StockReleasedAt, state.RefundProcessedAt, state.CompletedAt,
			state.FailureReason, string(state.FailedStep), state.Version, state.CreatedAt, state.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrSagaAlreadyExists
			}
			return fmt.Errorf("insert cancellation saga: %w", err)
		}

		return insertOutboxMessages(ctx, tx, messages)
	})
}

func (r *cancellationSagaRepository) Get(correlationID string) (domain.CancellationSagaState, error) {
	if strings.TrimSpace(correlationID) == "" {
		return domain.CancellationSagaState{}, domain.ErrCorrelationIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		state      domain.CancellationSagaState
		current    string
		failedStep string
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT correlation_id, current_state, order_id, customer_id, payment_id,
		       refund_amount_minor, currency, reason, refund_id,
		       stock_released_at, refund_processed_at, completed_at,
		       failure_reason, failed_step, version, created_at, updated_at
		FROM cancellation_sagas
		WHERE correlation_id = $1
	`, correlationID).Scan(
		&state.CorrelationID, &current, &state.OrderID, &state.CustomerID, &state.PaymentID,
		&state.RefundAmountMinor, &state.Currency, &state.Reason, &state.RefundID,
		&state.StockReleasedAt, &state.RefundProcessedAt, &state.CompletedAt,
		&state.FailureReason, &failedStep, &state.Version, &state.CreatedAt, &state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CancellationSagaState{}, domain.ErrSagaNotFound
		}
		return domain.CancellationSagaState{}, fmt.Errorf("select cancellation saga: %w", err)
	}

	state.CurrentState = domain.CancellationState(current)
	state.FailedStep = domain.SagaStep(failedStep)

	return state, nil
}

func (r *cancellationSagaRepository) Save(state domain.CancellationSagaState, outbox ...domain.OutboxMessage) error {
	if strings.TrimSpace(state.CorrelationID) == "" {
		return domain.ErrCorrelationIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	messages := prepareOutboxMessages(outbox)

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE cancellation_sagas
			SET current_state = $1,
			    refund_id = $2,
			    stock_released_at = $3,
			    refund_processed_at = $4,
			    completed_at = $5,
			    failure_reason = $6,
			    failed_step = $7,
			    version = version + 1,
			    updated_at = $8
			WHERE correlation_id = $9
			  AND version = $10
		`,
			string(state.CurrentState), state.RefundID,
			state.StockReleasedAt, state.RefundProcessedAt, state.CompletedAt,
			state.FailureReason, string(state.FailedStep), time.Now().UTC(),
			state.CorrelationID, state.Version,
		)
		if err != nil {
			return fmt.Errorf("update cancellation saga: %w", err)
		}

		if err := checkOptimisticSave(ctx, tx, res, "cancellation_sagas", state.CorrelationID); err != nil {
			return err
		}

		return insertOutboxMessages(ctx, tx, messages)
	})
}

type returnSagaRepository struct {
	db *sql.DB
}

// NewReturnSagaRepository создаёт PostgreSQL-реализацию ReturnSagaRepository.
func NewReturnSagaRepository(store *Store) domain.ReturnSagaRepository {
	return &returnSagaRepository{db: store.DB()}
}

func (r *returnSagaRepository) Create(state domain.ReturnSagaState, outbox ...domain.OutboxMessage) error {
	if strings.TrimSpace(state.CorrelationID) == "" {
		return domain.ErrCorrelationIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	items, err := json.Marshal(state.Items)
	if err != nil {
		return fmt.Errorf("marshal return items: %w", err)
	}

	now := time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = now
	}
	if state.Version == 0 {
		state.Version = 1
	}
	messages := prepareOutboxMessages(outbox)

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO return_sagas (
				correlation_id, current_state, order_id, customer_id, payment_id,
				return_type, items, refund_amount_minor, currency, refund_id,
				requires_inspection, validated_at, restocked_at, refund_processed_at,
				finalized_at, completed_at,
				failure_reason, failed_step, version, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		`,
			state.CorrelationID, string(state.CurrentState), state.OrderID, state.CustomerID,
			state.PaymentID, string(state.ReturnType), items, state.RefundAmountMinor,
			state.Currency, state.RefundID, state.RequiresInspection,
			state.ValidatedAt, state.RestockedAt, state.RefundProcessedAt,
			state.FinalizedAt, state.CompletedAt,
			state.FailureReason, string(state.FailedStep), state.Version, state.CreatedAt, state.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrSagaAlreadyExists
			}
			return fmt.Errorf("insert return saga: %w", err)
		}

		return insertOutboxMessages(ctx, tx, messages)
	})
}

func (r *returnSagaRepository) Get(correlationID string) (domain.ReturnSagaState, error) {
	if strings.TrimSpace(correlationID) == "" {
		return domain.ReturnSagaState{}, domain.ErrCorrelationIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		state      domain.ReturnSagaState
		current    string
		returnType string
		failedStep string
		items      []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT correlation_id, current_state, order_id, customer_id, payment_id,
		       return_type, items, refund_amount_minor, currency, refund_id,
		       requires_inspection, validated_at, restocked_at, refund_processed_at,
		       finalized_at, completed_at,
		       failure_reason, failed_step, version, created_at, updated_at
		FROM return_sagas
		WHERE correlation_id = $1
	`, correlationID).Scan(
		&state.CorrelationID, &current, &state.OrderID, &state.CustomerID, &state.PaymentID,
		&returnType, &items, &state.RefundAmountMinor, &state.Currency, &state.RefundID,
		&state.RequiresInspection, &state.ValidatedAt, &state.RestockedAt, &state.RefundProcessedAt,
		&state.FinalizedAt, &state.CompletedAt,
		&state.FailureReason, &failedStep, &state.Version, &state.CreatedAt, &state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReturnSagaState{}, domain.ErrSagaNotFound
		}
		return domain.ReturnSagaState{}, fmt.Errorf("select return saga: %w", err)
	}

	state.CurrentState = domain.ReturnState(current)
	state.ReturnType = domain.ReturnType(returnType)
	state.FailedStep = domain.SagaStep(failedStep)
	if err := json.Unmarshal(items, &state.Items); err != nil {
		return domain.ReturnSagaState{}, fmt.Errorf("unmarshal return items: %w", err)
	}

	return state, nil
}

func (r *returnSagaRepository) Save(state domain.ReturnSagaState, outbox ...domain.OutboxMessage) error {
	if strings.TrimSpace(state.CorrelationID) == "" {
		return domain.ErrCorrelationIDRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	messages := prepareOutboxMessages(outbox)

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE return_sagas
			SET current_state = $1,
			    refund_id = $2,
			    requires_inspection = $3,
			    validated_at = $4,
			    restocked_at = $5,
			    refund_processed_at = $6,
			    finalized_at = $7,
			    completed_at = $8,
			    failure_reason = $9,
			    failed_step = $10,
			    version = version + 1,
			    updated_at = $11
			WHERE correlation_id = $12
			  AND version = $13
		`,
			string(state.CurrentState), state.RefundID, state.RequiresInspection,
			state.ValidatedAt, state.RestockedAt, state.RefundProcessedAt,
			state.FinalizedAt, state.CompletedAt,
			state.FailureReason, string(state.FailedStep), time.Now().UTC(),
			state.CorrelationID, state.Version,
		)
		if err != nil {
			return fmt.Errorf("update return saga: %w", err)
		}

		if err := checkOptimisticSave(ctx, tx, res, "return_sagas", state.CorrelationID); err != nil {
			return err
		}

		return insertOutboxMessages(ctx, tx, messages)
	})
}

// checkOptimisticSave различает проигранную optimistic-lock гонку и
// отсутствующую сагу по результату UPDATE с условием на version.
func checkOptimisticSave(ctx context.Context, ex sqlExecutor, res sql.Result, table, correlationID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var id string
	err = ex.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT correlation_id FROM %s WHERE correlation_id = $1`, table),
		correlationID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrSagaNotFound
	}
	if err != nil {
		return fmt.Errorf("check saga exists: %w", err)
	}
	return domain.ErrSagaVersionConflict
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var (
	_ domain.CheckoutSagaRepository     = (*checkoutSagaRepository)(nil)
	_ domain.CancellationSagaRepository = (*cancellationSagaRepository)(nil)
	_ domain.ReturnSagaRepository       = (*returnSagaRepository)(nil)
)
