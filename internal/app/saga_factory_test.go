package app

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func TestBuildRouter_RoutesTriggerToCheckoutSaga(t *testing.T) {
	cfg := Config{StorageMode: StorageModeMemory, IdempotencyTTL: time.Hour}

	deps, err := NewDependencies(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new dependencies: %v", err)
	}
	defer deps.Close()

	router := buildRouter(cfg, deps, deps.Logger)

	started := &contracts.CheckoutStarted{
		CorrelationID: "co-1",
		OrderID:       "order-1",
		OrderNumber:   "ORD-1001",
		CustomerID:    "customer-1",
		CartID:        "cart-1",
		AmountMinor:   10000,
		Currency:      "RUB",
		Items:         []domain.CheckoutItem{{SKU: "sku-1", Qty: 1, PriceMinor: 10000}},
		OccurredAt:    time.Now().UTC(),
	}
	envelope, err := contracts.Seal("evt-1", contracts.KindCheckoutStarted, "co-1", started.OccurredAt, started)
	if err != nil {
		t.Fatalf("seal trigger: %v", err)
	}

	if err := router.Route(context.Background(), envelope); err != nil {
		t.Fatalf("route trigger: %v", err)
	}

	state, err := deps.Checkouts.Get("co-1")
	if err != nil {
		t.Fatalf("checkout saga was not created: %v", err)
	}
	if state.CurrentState != domain.CheckoutAwaitingInventory {
		t.Fatalf("unexpected saga state: %s", state.CurrentState)
	}

	pending, err := deps.Outbox.PullPending(10, 5)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected reserve command in outbox, got %d messages", len(pending))
	}
	if pending[0].EventType != string(contracts.KindReserveInventoryForCheckout) {
		t.Fatalf("unexpected outbox event type: %s", pending[0].EventType)
	}
}

func TestBuildRouter_RoutesCommandToParticipant(t *testing.T) {
	cfg := Config{StorageMode: StorageModeMemory, IdempotencyTTL: time.Hour}

	deps, err := NewDependencies(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new dependencies: %v", err)
	}
	defer deps.Close()

	router := buildRouter(cfg, deps, deps.Logger)

	cmd := &contracts.ReserveInventoryForCheckout{
		CorrelationID: "co-2",
		OrderID:       "order-2",
		Items:         []domain.CheckoutItem{{SKU: "sku-1", Qty: 1, PriceMinor: 5000}},
	}
	envelope, err := contracts.Seal("cmd-1", contracts.KindReserveInventoryForCheckout, "co-2", time.Now().UTC(), cmd)
	if err != nil {
		t.Fatalf("seal command: %v", err)
	}

	if err := router.Route(context.Background(), envelope); err != nil {
		t.Fatalf("route command: %v", err)
	}

	pending, err := deps.Outbox.PullPending(10, 5)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected reservation outcome in outbox, got %d messages", len(pending))
	}
	if pending[0].EventType != string(contracts.KindInventoryReservedForCheckout) {
		t.Fatalf("unexpected outcome event type: %s", pending[0].EventType)
	}
}
