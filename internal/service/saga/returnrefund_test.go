package saga

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type returnFixture struct {
	machine *ReturnRefund
	states  domain.ReturnSagaRepository
	outbox  outboxLog
}

func newReturnFixture() returnFixture {
	outbox := memory.NewOutboxRepository()
	states := memory.NewReturnSagaRepository(outbox)
	return returnFixture{
		machine: NewReturnRefund(states, nil, nil),
		states:  states,
		outbox:  outbox,
	}
}

func requestedReturn(refundAmount int64, condition domain.ItemCondition) *contracts.ReturnRequested {
	return &contracts.ReturnRequested{
		CorrelationID:     "corr-1",
		OrderID:           "order-1",
		CustomerID:        "cust-1",
		PaymentID:         "pay-1",
		ReturnType:        domain.ReturnTypeStandard,
		Items:             []domain.ReturnItem{{SKU: "SKU-1", Qty: 1, Condition: condition}},
		RefundAmountMinor: refundAmount,
		Currency:          "RUB",
		OccurredAt:        time.Now().UTC(),
	}
}

func TestReturnRefund_HappyPath(t *testing.T) {
	fx := newReturnFixture()

	steps := []any{
		requestedReturn(10000, domain.ItemConditionGood),
		&contracts.ReturnRequestValidated{CorrelationID: "corr-1", Approved: true},
		&contracts.ReturnedItemsRestocked{CorrelationID: "corr-1"},
		&contracts.ReturnRefundProcessed{CorrelationID: "corr-1", RefundID: "ref-1", AmountMinor: 10000},
		&contracts.ReturnFinalized{CorrelationID: "corr-1"},
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
	if st.CurrentState != domain.ReturnCompleted {
		t.Fatalf("unexpected state: %s", st.CurrentState)
	}
	if st.RefundID != "ref-1" {
		t.Fatalf("refund id not captured: %s", st.RefundID)
	}
	if st.ValidatedAt == nil || st.RestockedAt == nil || st.RefundProcessedAt == nil || st.FinalizedAt == nil || st.CompletedAt == nil {
		t.Fatal("expected all progress timestamps to be set")
	}

	expectOutboxKinds(t, fx.outbox,
		contracts.KindValidateReturnRequest,
		contracts.KindRestockReturnedItems,
		contracts.KindProcessReturnRefund,
		contracts.KindFinalizeReturn,
		contracts.KindReturnRefundCompleted,
	)
}

func TestReturnRefund_ZeroAmountSkipsRefund(t *testing.T) {
	fx := newReturnFixture()

	steps := []any{
		requestedReturn(0, domain.ItemConditionGood),
		&contracts.ReturnRequestValidated{CorrelationID: "corr-1", Approved: true},
		&contracts.ReturnedItemsRestocked{CorrelationID: "corr-1"},
		&contracts.ReturnFinalized{CorrelationID: "corr-1"},
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
	if st.CurrentState != domain.ReturnCompleted {
		t.Fatalf("unexpected state: %s", st.CurrentState)
	}
	if st.RefundProcessedAt != nil {
		t.Fatal("refund step must be skipped for zero amount")
	}

	expectOutboxKinds(t, fx.outbox,
		contracts.KindValidateReturnRequest,
		contracts.KindRestockReturnedItems,
		contracts.KindFinalizeReturn,
		contracts.KindReturnRefundCompleted,
	)
}

func TestReturnRefund_InspectionFlagDoesNotBranch(t *testing.T) {
	fx := newReturnFixture()

	steps := []any{
		requestedReturn(10000, domain.ItemConditionDamaged),
		&contracts.ReturnRequestValidated{CorrelationID: "corr-1", Approved: true, RequiresInspection: true},
		&contracts.ReturnedItemsRestocked{CorrelationID: "corr-1"},
		&contracts.ReturnRefundProcessed{CorrelationID: "corr-1", RefundID: "ref-1"},
		&contracts.ReturnFinalized{CorrelationID: "corr-1"},
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
	if st.CurrentState != domain.ReturnCompleted {
		t.Fatalf("inspection flag must not change the path, state: %s", st.CurrentState)
	}
	if !st.RequiresInspection {
		t.Fatal("expected RequiresInspection to be carried through")
	}

	var completed contracts.ReturnRefundCompleted
	messages := fx.outbox.All()
	if err := json.Unmarshal(messages[len(messages)-1].Payload, &completed); err != nil {
		t.Fatalf("decode terminal event failed: %v", err)
	}
	if !completed.RequiresInspection {
		t.Fatal("expected RequiresInspection=true in terminal event")
	}
}

func TestReturnRefund_RejectedValidation(t *testing.T) {
	fx := newReturnFixture()

	steps := []any{
		requestedReturn(10000, domain.ItemConditionGood),
		&contracts.ReturnRequestValidated{CorrelationID: "corr-1", Approved: false},
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
	if st.CurrentState != domain.ReturnFailed {
		t.Fatalf("unexpected state: %s", st.CurrentState)
	}
	if st.FailedStep != domain.StepReturnValidation {
		t.Fatalf("unexpected failed step: %s", st.FailedStep)
	}
	if st.FailureReason != "return request rejected" {
		t.Fatalf("expected default rejection reason, got %q", st.FailureReason)
	}

	expectOutboxKinds(t, fx.outbox,
		contracts.KindValidateReturnRequest,
		contracts.KindReturnRefundSagaFailed,
	)
}

func TestReturnRefund_RestockFailure(t *testing.T) {
	fx := newReturnFixture()

	steps := []any{
		requestedReturn(10000, domain.ItemConditionGood),
		&contracts.ReturnRequestValidated{CorrelationID: "corr-1", Approved: true},
		&contracts.ReturnRestockFailed{CorrelationID: "corr-1", Reason: "warehouse rejected items"},
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
	if st.CurrentState != domain.ReturnFailed {
		t.Fatalf("unexpected state: %s", st.CurrentState)
	}
	if st.FailedStep != domain.StepRestocking {
		t.Fatalf("unexpected failed step: %s", st.FailedStep)
	}
	if !st.Completed() {
		t.Fatal("expected terminal saga to be frozen")
	}
}

func TestReturnRefund_RefundFailure(t *testing.T) {
	fx := newReturnFixture()

	steps := []any{
		requestedReturn(10000, domain.ItemConditionGood),
		&contracts.ReturnRequestValidated{CorrelationID: "corr-1", Approved: true},
		&contracts.ReturnedItemsRestocked{CorrelationID: "corr-1"},
		&contracts.ReturnRefundFailed{CorrelationID: "corr-1", Reason: "gateway timeout"},
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
	if st.CurrentState != domain.ReturnFailed {
		t.Fatalf("unexpected state: %s", st.CurrentState)
	}
	if st.FailedStep != domain.StepRefund {
		t.Fatalf("unexpected failed step: %s", st.FailedStep)
	}

	expectOutboxKinds(t, fx.outbox,
		contracts.KindValidateReturnRequest,
		contracts.KindRestockReturnedItems,
		contracts.KindProcessReturnRefund,
		contracts.KindReturnRefundSagaFailed,
	)
}

func TestReturnRefund_DuplicateEventIsNoop(t *testing.T) {
	fx := newReturnFixture()

	if err := fx.machine.Handle(requestedReturn(10000, domain.ItemConditionGood)); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	validated := &contracts.ReturnRequestValidated{CorrelationID: "corr-1", Approved: true}
	if err := fx.machine.Handle(validated); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := fx.machine.Handle(validated); err != nil {
		t.Fatalf("duplicate delivery must be a no-op, got %v", err)
	}

	expectOutboxKinds(t, fx.outbox,
		contracts.KindValidateReturnRequest,
		contracts.KindRestockReturnedItems,
	)
}
