package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// sagaSummariesQuery собирает единую проекцию по трём таблицам саг.
// Колонки приведены к общему виду SagaSummary.
const sagaSummariesQuery = `
	SELECT 'checkout' AS saga_type, correlation_id, order_id, current_state,
	       failure_reason, failed_step, created_at, completed_at
	FROM checkout_sagas
	UNION ALL
	SELECT 'cancellation', correlation_id, order_id, current_state,
	       failure_reason, failed_step, created_at, completed_at
	FROM cancellation_sagas
	UNION ALL
	SELECT 'return_refund', correlation_id, order_id, current_state,
	       failure_reason, failed_step, created_at, completed_at
	FROM return_sagas
`

type sagaMonitor struct {
	db *sql.DB
}

// NewSagaMonitor создаёт PostgreSQL-реализацию SagaMonitor.
func NewSagaMonitor(store *Store) domain.SagaMonitor {
	return &sagaMonitor{db: store.DB()}
}

func (m *sagaMonitor) ListSummaries(filter domain.SagaFilter) ([]domain.SagaSummary, error) {
	var (
		conditions []string
		args       []any
	)

	if filter.SagaType != "" {
		args = append(args, string(filter.SagaType))
		conditions = append(conditions, fmt.Sprintf("saga_type = $%d", len(args)))
	}
	if filter.CurrentState != "" {
		args = append(args, filter.CurrentState)
		conditions = append(conditions, fmt.Sprintf("current_state = $%d", len(args)))
	}
	if !filter.StartedFrom.IsZero() {
		args = append(args, filter.StartedFrom)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.StartedTo.IsZero() {
		args = append(args, filter.StartedTo)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := "SELECT * FROM (" + sagaSummariesQuery + ") AS sagas"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, correlation_id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return m.querySummaries(query, args...)
}

func (m *sagaMonitor) ListByOrder(orderID string) ([]domain.SagaSummary, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, domain.ErrOrderIDRequired
	}

	query := "SELECT * FROM (" + sagaSummariesQuery + ") AS sagas" +
		" WHERE order_id = $1 ORDER BY created_at DESC, correlation_id"

	return m.querySummaries(query, orderID)
}

func (m *sagaMonitor) StateCounts() ([]domain.SagaStateCount, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := "SELECT saga_type, current_state, COUNT(*) FROM (" + sagaSummariesQuery + ") AS sagas" +
		" GROUP BY saga_type, current_state ORDER BY saga_type, current_state"

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query saga state counts: %w", err)
	}
	defer rows.Close()

	var counts []domain.SagaStateCount
	for rows.Next() {
		var (
			sagaTypeRaw string
			count       domain.SagaStateCount
		)
		if err := rows.Scan(&sagaTypeRaw, &count.CurrentState, &count.Count); err != nil {
			return nil, fmt.Errorf("scan saga state count: %w", err)
		}
		count.SagaType = domain.SagaType(sagaTypeRaw)
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saga state counts: %w", err)
	}

	return counts, nil
}

func (m *sagaMonitor) querySummaries(query string, args ...any) ([]domain.SagaSummary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query saga summaries: %w", err)
	}
	defer rows.Close()

	var summaries []domain.SagaSummary
	for rows.Next() {
		var (
			summary     domain.SagaSummary
			sagaTypeRaw string
			completedAt sql.NullTime
		)
		if err := rows.Scan(
			&sagaTypeRaw,
			&summary.CorrelationID,
			&summary.OrderID,
			&summary.CurrentState,
			&summary.FailureReason,
			&summary.FailedStep,
			&summary.StartedAt,
			&completedAt,
		); err != nil {
			return nil, fmt.Errorf("scan saga summary: %w", err)
		}
		summary.SagaType = domain.SagaType(sagaTypeRaw)
		if completedAt.Valid {
			completed := completedAt.Time
			summary.CompletedAt = &completed
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saga summaries: %w", err)
	}

	return summaries, nil
}

var _ domain.SagaMonitor = (*sagaMonitor)(nil)
