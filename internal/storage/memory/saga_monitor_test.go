package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func newPopulatedMonitor(t *testing.T) *sagaMonitorInMemory {
	t.Helper()

	checkouts := NewCheckoutSagaRepository(NewOutboxRepository())
	cancellations := NewCancellationSagaRepository(NewOutboxRepository())
	returns := NewReturnSagaRepository(NewOutboxRepository())

	now := time.Now().UTC()
	completed := now.Add(-time.Minute)

	if err := checkouts.Create(domain.CheckoutSagaState{
		CorrelationID: "chk-1",
		CurrentState:  domain.CheckoutAwaitingPayment,
		OrderID:       "order-1",
		CreatedAt:     now.Add(-3 * time.Minute),
	}); err != nil {
		t.Fatalf("create checkout failed: %v", err)
	}
	if err := checkouts.Create(domain.CheckoutSagaState{
		CorrelationID: "chk-2",
		CurrentState:  domain.CheckoutCompleted,
		OrderID:       "order-2",
		CreatedAt:     now.Add(-2 * time.Minute),
		CompletedAt:   &completed,
	}); err != nil {
		t.Fatalf("create checkout failed: %v", err)
	}
	if err := cancellations.Create(domain.CancellationSagaState{
		CorrelationID: "cnl-1",
		CurrentState:  domain.CancellationFailed,
		OrderID:       "order-1",
		FailureReason: "refund declined",
		FailedStep:    domain.StepRefund,
		CreatedAt:     now.Add(-time.Minute),
	}); err != nil {
		t.Fatalf("create cancellation failed: %v", err)
	}
	if err := returns.Create(domain.ReturnSagaState{
		CorrelationID: "ret-1",
		CurrentState:  domain.ReturnValidating,
		OrderID:       "order-3",
		CreatedAt:     now,
	}); err != nil {
		t.Fatalf("create return failed: %v", err)
	}

	return NewSagaMonitor(checkouts, cancellations, returns)
}

func TestSagaMonitor_ListSummariesFilters(t *testing.T) {
	monitor := newPopulatedMonitor(t)

	all, err := monitor.ListSummaries(domain.SagaFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 summaries, got %d", len(all))
	}
	// Новые саги идут первыми.
	if all[0].CorrelationID != "ret-1" {
		t.Fatalf("expected newest saga first, got %s", all[0].CorrelationID)
	}

	checkoutOnly, err := monitor.ListSummaries(domain.SagaFilter{SagaType: domain.SagaTypeCheckout})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(checkoutOnly) != 2 {
		t.Fatalf("expected 2 checkout summaries, got %d", len(checkoutOnly))
	}

	failed, err := monitor.ListSummaries(domain.SagaFilter{CurrentState: string(domain.CancellationFailed)})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].FailedStep != string(domain.StepRefund) {
		t.Fatalf("unexpected failed summaries: %+v", failed)
	}

	limited, err := monitor.ListSummaries(domain.SagaFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestSagaMonitor_ListByOrder(t *testing.T) {
	monitor := newPopulatedMonitor(t)

	summaries, err := monitor.ListByOrder("order-1")
	if err != nil {
		t.Fatalf("list by order failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected checkout and cancellation for order-1, got %d", len(summaries))
	}

	if _, err := monitor.ListByOrder(""); !errors.Is(err, domain.ErrOrderIDRequired) {
		t.Fatalf("expected ErrOrderIDRequired, got %v", err)
	}
}

func TestSagaMonitor_StateCounts(t *testing.T) {
	monitor := newPopulatedMonitor(t)

	counts, err := monitor.StateCounts()
	if err != nil {
		t.Fatalf("state counts failed: %v", err)
	}

	want := map[string]int{
		"cancellation/Failed":      1,
		"checkout/AwaitingPayment": 1,
		"checkout/Completed":       1,
		"return_refund/Validating": 1,
	}
	if len(counts) != len(want) {
		t.Fatalf("expected %d rows, got %d: %+v", len(want), len(counts), counts)
	}
	for _, c := range counts {
		key := string(c.SagaType) + "/" + c.CurrentState
		if want[key] != c.Count {
			t.Fatalf("unexpected count for %s: %d", key, c.Count)
		}
	}
}
