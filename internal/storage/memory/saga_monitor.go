package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// sagaMonitorInMemory строит мониторинговую проекцию поверх
// in-memory репозиториев саг.
type sagaMonitorInMemory struct {
	checkouts     *checkoutSagaRepositoryInMemory
	cancellations *cancellationSagaRepositoryInMemory
	returns       *returnSagaRepositoryInMemory
}

// NewSagaMonitor создаёт in-memory реализацию SagaMonitor.
func NewSagaMonitor(
	checkouts *checkoutSagaRepositoryInMemory,
	cancellations *cancellationSagaRepositoryInMemory,
	returns *returnSagaRepositoryInMemory,
) *sagaMonitorInMemory {
	return &sagaMonitorInMemory{
		checkouts:     checkouts,
		cancellations: cancellations,
		returns:       returns,
	}
}

func (m *sagaMonitorInMemory) ListSummaries(filter domain.SagaFilter) ([]domain.SagaSummary, error) {
	summaries := m.collect()

	result := make([]domain.SagaSummary, 0, len(summaries))
	for _, s := range summaries {
		if filter.SagaType != "" && s.SagaType != filter.SagaType {
			continue
		}
		if filter.CurrentState != "" && s.CurrentState != filter.CurrentState {
			continue
		}
		if !filter.StartedFrom.IsZero() && s.StartedAt.Before(filter.StartedFrom) {
			continue
		}
		if !filter.StartedTo.IsZero() && s.StartedAt.After(filter.StartedTo) {
			continue
		}
		result = append(result, s)
	}

	sortSummaries(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *sagaMonitorInMemory) ListByOrder(orderID string) ([]domain.SagaSummary, error) {
	if orderID == "" {
		return nil, domain.ErrOrderIDRequired
	}

	result := make([]domain.SagaSummary, 0, 4)
	for _, s := range m.collect() {
		if s.OrderID == orderID {
			result = append(result, s)
		}
	}
	sortSummaries(result)
	return result, nil
}

func (m *sagaMonitorInMemory) StateCounts() ([]domain.SagaStateCount, error) {
	type key struct {
		sagaType domain.SagaType
		state    string
	}

	counts := make(map[key]int)
	for _, s := range m.collect() {
		counts[key{sagaType: s.SagaType, state: s.CurrentState}]++
	}

	result := make([]domain.SagaStateCount, 0, len(counts))
	for k, count := range counts {
		result = append(result, domain.SagaStateCount{
			SagaType:     k.sagaType,
			CurrentState: k.state,
			Count:        count,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SagaType != result[j].SagaType {
			return result[i].SagaType < result[j].SagaType
		}
		return result[i].CurrentState < result[j].CurrentState
	})
	return result, nil
}

func (m *sagaMonitorInMemory) collect() []domain.SagaSummary {
	var summaries []domain.SagaSummary

	for _, st := range m.checkouts.All() {
		summaries = append(summaries, domain.SagaSummary{
			SagaType:      domain.SagaTypeCheckout,
			CorrelationID: st.CorrelationID,
			OrderID:       st.OrderID,
			CurrentState:  string(st.CurrentState),
			FailureReason: st.FailureReason,
			FailedStep:    string(st.FailedStep),
			StartedAt:     st.CreatedAt,
			CompletedAt:   cloneTime(st.CompletedAt),
		})
	}
	for _, st := range m.cancellations.All() {
		summaries = append(summaries, domain.SagaSummary{
			SagaType:      domain.SagaTypeCancellation,
			CorrelationID: st.CorrelationID,
			OrderID:       st.OrderID,
			CurrentState:  string(st.CurrentState),
			FailureReason: st.FailureReason,
			FailedStep:    string(st.FailedStep),
			StartedAt:     st.CreatedAt,
			CompletedAt:   cloneTime(st.CompletedAt),
		})
	}
	for _, st := range m.returns.All() {
		summaries = append(summaries, domain.SagaSummary{
			SagaType:      domain.SagaTypeReturnRefund,
			CorrelationID: st.CorrelationID,
			OrderID:       st.OrderID,
			CurrentState:  string(st.CurrentState),
			FailureReason: st.FailureReason,
			FailedStep:    string(st.FailedStep),
			StartedAt:     st.CreatedAt,
			CompletedAt:   cloneTime(st.CompletedAt),
		})
	}
	return summaries
}

// sortSummaries упорядочивает выдачу по времени старта (новые первыми),
// как это делает Postgres-реализация (ORDER BY created_at DESC).
func sortSummaries(summaries []domain.SagaSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].StartedAt.Equal(summaries[j].StartedAt) {
			return summaries[i].StartedAt.After(summaries[j].StartedAt)
		}
		return summaries[i].CorrelationID < summaries[j].CorrelationID
	})
}

var _ domain.SagaMonitor = (*sagaMonitorInMemory)(nil)
