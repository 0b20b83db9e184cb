package saga

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type checkoutFixture struct {
	machine *Checkout
	states  domain.CheckoutSagaRepository
	outbox  outboxLog
}

func newCheckoutFixture() checkoutFixture {
	outbox := memory.NewOutboxRepository()
	states := memory.NewCheckoutSagaRepository(outbox)
	return checkoutFixture{
		machine: NewCheckout(states, nil, nil),
		states:  states,
		outbox:  outbox,
	}
}

func startedCheckout(withCart bool) *contracts.CheckoutStarted {
	ev := &contracts.CheckoutStarted{
		CorrelationID: "corr-1",
		OrderID:       "order-1",
		OrderNumber:   "ORD-001",
		CustomerID:    "cust-1",
		AmountMinor:   25000,
		Currency:      "RUB",
		Items:         []domain.CheckoutItem{{SKU: "SKU-1", Qty: 2, PriceMinor: 12500}},
		OccurredAt:    time.Now().UTC(),
	}
	if withCart {
		ev.CartID = "cart-1"
	}
	return ev
}

func TestCheckout_HappyPathWithCart(t *testing.T) {
	fx := newCheckoutFixture()

	steps := []any{
		startedCheckout(true),
		&contracts.InventoryReservedForCheckout{CorrelationID: "corr-1", OrderID: "order-1", ReservationID: "res-1"},
		&contracts.PaymentAuthorizedForCheckout{CorrelationID: "corr-1", OrderID: "order-1", PaymentID: "pay-1", TransactionID: "txn-1"},
		&contracts.OrderConfirmedForCheckout{CorrelationID: "corr-1", OrderID: "order-1"},
		&contracts.CartDeactivatedForCheckout{CorrelationID: "corr-1", CartID: "cart-1"},
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
	if st.CurrentState != domain.CheckoutCompleted {
		t.Fatalf("unexpected state: %s", st.CurrentState)
	}
	if !st.Completed() {
		t.Fatal("expected CompletedAt to be set")
	}
	if st.ReservationID != "res-1" || st.PaymentID != "pay-1" || st.TransactionID != "txn-1" {
		t.Fatalf("step results not captured: %+v", st)
	}
	if st.InventoryReservedAt == nil || st.PaymentAuthorizedAt == nil || st.ConfirmedAt == nil || st.CartDeactivatedAt == nil {
		t.Fatal("expected all progress timestamps to be set")
	}

	expectOutboxKinds(t, fx.outbox,
		contracts.KindReserveInventoryForCheckout,
		contracts.KindAuthorizePaymentForCheckout,
		contracts.KindConfirmOrderForCheckout,
		contracts.KindDeactivateCartForCheckout,
		contracts.KindCheckoutCompleted,
	)
}

func TestCheckout_HappyPathWithoutCartSkipsDeactivation(t *testing.T) {
	fx := newCheckoutFixture()

	steps := []any{
		startedCheckout(false),
		&contracts.InventoryReservedForCheckout{CorrelationID: "corr-1", ReservationID: "res-1"},
		&contracts.PaymentAuthorizedForCheckout{CorrelationID: "corr-1", PaymentID: "pay-1"},
		&contracts.OrderConfirmedForCheckout{CorrelationID: "corr-1"},
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
	if st.CurrentState != domain.CheckoutCompleted {
		t.Fatalf("unexpected state: %s", st.CurrentState)
	}
	if st.CartDeactivatedAt != nil {
		t.Fatal("cart step must be skipped when there is no cart")
	}

	expectOutboxKinds(t, fx.outbox,
		contracts.KindReserveInventoryForCheckout,
		contracts.KindAuthorizePaymentForCheckout,
		contracts.KindConfirmOrderForCheckout,
		contracts.KindCheckoutCompleted,
	)
}

func TestCheckout_PaymentFailureCompensatesInReverseOrder(t *testing.T) {
	fx := newCheckoutFixture()

	steps := []any{
		startedCheckout(true),
		&contracts.InventoryReservedForCheckout{CorrelationID: "corr-1", ReservationID: "res-1"},
		&contracts.PaymentAuthorizationFailedForCheckout{CorrelationID: "corr-1", Reason: "card declined"},
		&contracts.InventoryReleasedForCheckout{CorrelationID: "corr-1", ReservationID: "res-1"},
		&contracts.OrderCanceledForCheckout{CorrelationID: "corr-1"},
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
	if st.CurrentState != domain.CheckoutFailed {
		t.Fatalf("unexpected state: %s", st.CurrentState)
	}
	if st.FailedStep != domain.StepPaymentAuthorization {
		t.Fatalf("unexpected failed step: %s", st.FailedStep)
	}
	if st.FailureReason != "card declined" {
		t.Fatalf("unexpected failure reason: %s", st.FailureReason)
	}
	if !st.Completed() {
		t.Fatal("expected terminal saga to be frozen")
	}

	// Компенсация идёт в обратном порядке: сначала резерв, потом заказ.
	expectOutboxKinds(t, fx.outbox,
		contracts.KindReserveInventoryForCheckout,
		contracts.KindAuthorizePaymentForCheckout,
		contracts.KindReleaseInventoryForCheckout,
		contracts.KindCancelOrderForCheckout,
		contracts.KindCheckoutFailed,
	)
}

func TestCheckout_InventoryFailureSkipsRelease(t *testing.T) {
	fx := newCheckoutFixture()

	steps := []any{
		startedCheckout(false),
		&contracts.InventoryReservationFailedForCheckout{CorrelationID: "corr-1", Reason: "out of stock"},
		&contracts.OrderCanceledForCheckout{CorrelationID: "corr-1"},
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
	if st.CurrentState != domain.CheckoutFailed {
		t.Fatalf("unexpected state: %s", st.CurrentState)
	}
	if st.FailedStep != domain.StepInventoryReservation {
		t.Fatalf("unexpected failed step: %s", st.FailedStep)
	}

	// Резерва не было — команды release быть не должно.
	expectOutboxKinds(t, fx.outbox,
		contracts.KindReserveInventoryForCheckout,
		contracts.KindCancelOrderForCheckout,
		contracts.KindCheckoutFailed,
	)
}

func TestCheckout_DuplicateTriggerIsNoop(t *testing.T) {
	fx := newCheckoutFixture()

	if err := fx.machine.Handle(startedCheckout(false)); err != nil {
		t.Fatalf("first trigger failed: %v", err)
	}
	if err := fx.machine.Handle(startedCheckout(false)); err != nil {
		t.Fatalf("duplicate trigger must be a no-op, got %v", err)
	}

	expectOutboxKinds(t, fx.outbox, contracts.KindReserveInventoryForCheckout)
}

func TestCheckout_DuplicateEventIsNoop(t *testing.T) {
	fx := newCheckoutFixture()

	if err := fx.machine.Handle(startedCheckout(false)); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}
	reserved := &contracts.InventoryReservedForCheckout{CorrelationID: "corr-1", ReservationID: "res-1"}
	if err := fx.machine.Handle(reserved); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	before, err := fx.states.Get("corr-1")
	if err != nil {
		t.Fatalf("get saga failed: %v", err)
	}

	if err := fx.machine.Handle(reserved); err != nil {
		t.Fatalf("duplicate delivery must be a no-op, got %v", err)
	}

	after, err := fx.states.Get("corr-1")
	if err != nil {
		t.Fatalf("get saga failed: %v", err)
	}
	if after.Version != before.Version {
		t.Fatalf("duplicate delivery changed version: %d -> %d", before.Version, after.Version)
	}

	expectOutboxKinds(t, fx.outbox,
		contracts.KindReserveInventoryForCheckout,
		contracts.KindAuthorizePaymentForCheckout,
	)
}

func TestCheckout_EventAfterTerminalIsNoop(t *testing.T) {
	fx := newCheckoutFixture()

	steps := []any{
		startedCheckout(false),
		&contracts.InventoryReservedForCheckout{CorrelationID: "corr-1", ReservationID: "res-1"},
		&contracts.PaymentAuthorizedForCheckout{CorrelationID: "corr-1", PaymentID: "pay-1"},
		&contracts.OrderConfirmedForCheckout{CorrelationID: "corr-1"},
	}
	for i, msg := range steps {
		if err := fx.machine.Handle(msg); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
	}

	enqueued := len(fx.outbox.All())
	if err := fx.machine.Handle(&contracts.PaymentAuthorizedForCheckout{CorrelationID: "corr-1", PaymentID: "pay-2"}); err != nil {
		t.Fatalf("late delivery must be a no-op, got %v", err)
	}

	st, err := fx.states.Get("corr-1")
	if err != nil {
		t.Fatalf("get saga failed: %v", err)
	}
	if st.PaymentID != "pay-1" {
		t.Fatalf("terminal saga mutated by late delivery: %s", st.PaymentID)
	}
	if len(fx.outbox.All()) != enqueued {
		t.Fatal("late delivery produced new effects")
	}
}

func TestCheckout_UnknownSagaIsDropped(t *testing.T) {
	fx := newCheckoutFixture()

	err := fx.machine.Handle(&contracts.InventoryReservedForCheckout{CorrelationID: "missing"})
	if err != nil {
		t.Fatalf("event for unknown saga must be dropped, got %v", err)
	}
}

func TestCheckout_UnexpectedMessageType(t *testing.T) {
	fx := newCheckoutFixture()

	err := fx.machine.Handle(&contracts.RefundProcessedForCancellation{CorrelationID: "corr-1"})
	if err == nil || !strings.Contains(err.Error(), "unexpected message type") {
		t.Fatalf("expected unexpected message type error, got %v", err)
	}
}

func TestCheckout_VersionConflictIsReturned(t *testing.T) {
	states := memory.NewCheckoutSagaRepository(memory.NewOutboxRepository())
	machine := NewCheckout(conflictingCheckoutRepo{states}, nil, nil)

	if err := machine.Handle(startedCheckout(false)); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}

	err := machine.Handle(&contracts.InventoryReservedForCheckout{CorrelationID: "corr-1", ReservationID: "res-1"})
	if !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict to surface, got %v", err)
	}
}

func TestCheckout_FailedSaveKeepsCommandRecoverable(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	states := memory.NewCheckoutSagaRepository(outbox)
	flaky := &flakyCheckoutRepo{CheckoutSagaRepository: states, saveFailures: 1}
	machine := NewCheckout(flaky, nil, nil)

	if err := machine.Handle(startedCheckout(false)); err != nil {
		t.Fatalf("trigger failed: %v", err)
	}

	reserved := &contracts.InventoryReservedForCheckout{CorrelationID: "corr-1", ReservationID: "res-1"}
	if err := machine.Handle(reserved); err == nil {
		t.Fatal("expected save failure to surface")
	}

	// Переход не сохранился — состояние не продвинуто, команды нет.
	st, err := states.Get("corr-1")
	if err != nil {
		t.Fatalf("get saga failed: %v", err)
	}
	if st.CurrentState != domain.CheckoutAwaitingInventory {
		t.Fatalf("failed save advanced state: %s", st.CurrentState)
	}
	expectOutboxKinds(t, outbox, contracts.KindReserveInventoryForCheckout)

	// Повторная доставка того же события доводит переход до конца:
	// состояние и команда следующего шага записываются вместе.
	if err := machine.Handle(reserved); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}

	st, err = states.Get("corr-1")
	if err != nil {
		t.Fatalf("get saga failed: %v", err)
	}
	if st.CurrentState != domain.CheckoutAwaitingPayment {
		t.Fatalf("redelivery did not advance state: %s", st.CurrentState)
	}
	expectOutboxKinds(t, outbox,
		contracts.KindReserveInventoryForCheckout,
		contracts.KindAuthorizePaymentForCheckout,
	)
}

func TestTransitionCheckout_DoesNotMutateInput(t *testing.T) {
	st := domain.CheckoutSagaState{
		CorrelationID: "corr-1",
		CurrentState:  domain.CheckoutAwaitingInventory,
		OrderID:       "order-1",
	}

	next, _, err := transitionCheckout(st, &contracts.InventoryReservedForCheckout{
		CorrelationID: "corr-1",
		ReservationID: "res-1",
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if next.CurrentState != domain.CheckoutAwaitingPayment {
		t.Fatalf("unexpected next state: %s", next.CurrentState)
	}
	if st.CurrentState != domain.CheckoutAwaitingInventory || st.ReservationID != "" {
		t.Fatalf("input state mutated: %+v", st)
	}
}

// conflictingCheckoutRepo симулирует проигранную optimistic-lock гонку.
type conflictingCheckoutRepo struct {
	domain.CheckoutSagaRepository
}

func (r conflictingCheckoutRepo) Save(domain.CheckoutSagaState, ...domain.OutboxMessage) error {
	return domain.ErrSagaVersionConflict
}

// flakyCheckoutRepo проваливает первые saveFailures вызовов Save,
// имитируя временно недоступное хранилище.
type flakyCheckoutRepo struct {
	domain.CheckoutSagaRepository
	saveFailures int
}

func (r *flakyCheckoutRepo) Save(state domain.CheckoutSagaState, outbox ...domain.OutboxMessage) error {
	if r.saveFailures > 0 {
		r.saveFailures--
		return errors.New("storage unavailable")
	}
	return r.CheckoutSagaRepository.Save(state, outbox...)
}
