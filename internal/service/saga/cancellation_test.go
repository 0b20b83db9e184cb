package saga

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type cancellationFixture struct {
	machine *Cancellation
	states  domain.CancellationSagaRepository
	outbox  outboxLog
}

func newCancellationFixture() cancellationFixture {
	outbox := memory.NewOutboxRepository()
	states := memory.NewCancellationSagaRepository(outbox)
	return cancellationFixture{
		machine: NewCancellation(states, nil, nil),
		states:  states,
		outbox:  outbox,
	}
}

func requestedCancellation(withPayment bool) *contracts.CancellationRequested {
	ev := &contracts.CancellationRequested{
		CorrelationID: "corr-1",
		OrderID:       "order-1",
		CustomerID:    "cust-1",
		Currency:      "RUB",
		Reason:        "customer changed mind",
		OccurredAt:    time.Now().UTC(),
	}
	if withPayment {
		ev.PaymentID = "pay-1"
		ev.AmountMinor = 25000
	}
	return ev
}

func TestCancellation_HappyPathWithRefund(t *testing.T) {
	fx := newCancellationFixture()

	steps := []any{
		requestedCancellation(true),
		&contracts.InventoryReleasedForCancellation{CorrelationID: "corr-1", OrderID: "order-1"},
		&contracts.RefundProcessedForCancellation{CorrelationID: "corr-1", RefundID: "ref-1", AmountMinor: 25000},
		&contracts.OrderCancellationFinalized{CorrelationID: "corr-1"},
	}
	for i, msg := range steps {
		if err := fx.machine.Handle(msg); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	st, err := fx.states.Get("corr-1")
	if err != nil {
		t.Fatalf("get saga failed: %v", err)
	}
	if st.CurrentState != domain.CancellationCompleted {
		t.Fatalf("unexpected state: %s", st.CurrentState)
	}
	if st.RefundID != "ref-1" {
		t.Fatalf("refund id not captured: %s", st.RefundID)
	}
	if st.StockReleasedAt == nil || st.RefundProcessedAt == nil || st.CompletedAt == nil {
		t.Fatal("expected progress timestamps to be set")
	}

	expectOutboxKinds(t, fx.outbox,
		contracts.KindReleaseInventoryForCancellation,
		contracts.KindProcessRefundForCancellation,
		contracts.KindFinalizeOrderCancellation,
		contracts.KindCancellationCompleted,
	)

	var completed contracts.CancellationCompleted
	last := fx.outbox.All()[3]
	if err := json.Unmarshal(last.Payload, &completed); err != nil {
		t.Fatalf("decode terminal event failed: %v", err)
	}
	if !completed.Refunded {
		t.Fatal("expected Refunded=true in terminal event")
	}
}

func TestCancellation_NoPaymentSkipsRefund(t *testing.T) {
	fx := newCancellationFixture()

	steps := []any{
		requestedCancellation(false),
		&contracts.InventoryReleasedForCancellation{CorrelationID: "corr-1"},
		&contracts.OrderCancellationFinalized{CorrelationID: "corr-1"},
	}
	for i, msg := range steps {
		if err := fx.machine.Handle(msg); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	st, err := fx.states.Get("corr-1")
	if err != nil {
		t.Fatalf("get saga failed: %v", err)
	}
	if st.CurrentState != domain.CancellationCompleted {
		t.Fatalf("unexpected state: %s", st.CurrentState)
	}
	if st.RefundProcessedAt != nil {
		t.Fatal("refund step must be skipped without a payment")
	}

	expectOutboxKinds(t, fx.outbox,
		contracts.KindReleaseInventoryForCancellation,
		contracts.KindFinalizeOrderCancellation,
		contracts.KindCancellationCompleted,
	)

	var completed contracts.CancellationCompleted
	last := fx.outbox.All()[2]
	if err := json.Unmarshal(last.Payload, &completed); err != nil {
		t.Fatalf("decode terminal event failed: %v", err)
	}
	if completed.Refunded {
		t.Fatal("expected Refunded=false in terminal event")
	}
}

func TestCancellation_RefundFailureIsTerminal(t *testing.T) {
	fx := newCancellationFixture()

	steps := []any{
		requestedCancellation(true),
		&contracts.InventoryReleasedForCancellation{CorrelationID: "corr-1"},
		&contracts.RefundFailedForCancellation{CorrelationID: "corr-1", Reason: "gateway timeout"},
	}
	for i, msg := range steps {
		if err := fx.machine.Handle(msg); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	st, err := fx.states.Get("corr-1")
	if err != nil {
		t.Fatalf("get saga failed: %v", err)
	}
	if st.CurrentState != domain.CancellationFailed {
		t.Fatalf("unexpected state: %s", st.CurrentState)
	}
	if st.FailedStep != domain.StepRefund {
		t.Fatalf("unexpected failed step: %s", st.FailedStep)
	}
	if !st.Completed() {
		t.Fatal("expected terminal saga to be frozen")
	}

	// После неудачного refund финализация не отправляется: нужен ручной разбор.
	expectOutboxKinds(t, fx.outbox,
		contracts.KindReleaseInventoryForCancellation,
		contracts.KindProcessRefundForCancellation,
		contracts.KindCancellationFailed,
	)
}

func TestCancellation_DuplicateTriggerIsNoop(t *testing.T) {
	fx := newCancellationFixture()

	if err := fx.machine.Handle(requestedCancellation(true)); err != nil {
		t.Fatalf("first trigger failed: %v", err)
	}
	if err := fx.machine.Handle(requestedCancellation(true)); err != nil {
		t.Fatalf("duplicate trigger must be a no-op, got %v", err)
	}

	expectOutboxKinds(t, fx.outbox, contracts.KindReleaseInventoryForCancellation)
}

func TestCancellation_LateEventAfterTerminalIsNoop(t *testing.T) {
	fx := newCancellationFixture()

	steps := []any{
		requestedCancellation(false),
		&contracts.InventoryReleasedForCancellation{CorrelationID: "corr-1"},
		&contracts.OrderCancellationFinalized{CorrelationID: "corr-1"},
	}
	for i, msg := range steps {
		if err := fx.machine.Handle(msg); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	enqueued := len(fx.outbox.All())
	if err := fx.machine.Handle(&contracts.OrderCancellationFinalized{CorrelationID: "corr-1"}); err != nil {
		t.Fatalf("late delivery must be a no-op, got %v", err)
	}
	if len(fx.outbox.All()) != enqueued {
		t.Fatal("late delivery produced new effects")
	}
}

func TestCancellation_MissingOrderIDRejected(t *testing.T) {
	fx := newCancellationFixture()

	err := fx.machine.Handle(&contracts.CancellationRequested{CorrelationID: "corr-1"})
	if err == nil {
		t.Fatal("expected error for trigger without order id")
	}
}
