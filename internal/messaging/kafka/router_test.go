package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
)

type recordingSaga struct {
	messages []any
}

func (s *recordingSaga) Handle(msg any) error {
	s.messages = append(s.messages, msg)
	return nil
}

type recordingParticipant struct {
	messages []any
}

func (p *recordingParticipant) Handle(_ context.Context, msg any) error {
	p.messages = append(p.messages, msg)
	return nil
}

func sealedMessage(t *testing.T, kind contracts.Kind, correlationID string, payload any) *sarama.ConsumerMessage {
	t.Helper()
	envelope, err := contracts.Seal("env-1", kind, correlationID, time.Now().UTC(), payload)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &sarama.ConsumerMessage{Key: []byte(correlationID), Value: value}
}

func TestRouter_TriggerGoesToSaga(t *testing.T) {
	t.Parallel()

	checkout := &recordingSaga{}
	router := NewRouter(checkout, nil, nil, nil, nil, nil, nil, nil, nil)

	msg := sealedMessage(t, contracts.KindCheckoutStarted, "co-1",
		contracts.CheckoutStarted{CorrelationID: "co-1", OrderID: "order-1"})
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(checkout.messages) != 1 {
		t.Fatalf("expected one routed message, got %d", len(checkout.messages))
	}
	if _, ok := checkout.messages[0].(*contracts.CheckoutStarted); !ok {
		t.Fatalf("unexpected routed type %T", checkout.messages[0])
	}
}

func TestRouter_CommandGoesToParticipant(t *testing.T) {
	t.Parallel()

	payment := &recordingParticipant{}
	router := NewRouter(nil, nil, nil, nil, payment, nil, nil, nil, nil)

	msg := sealedMessage(t, contracts.KindAuthorizePaymentForCheckout, "co-1",
		contracts.AuthorizePaymentForCheckout{CorrelationID: "co-1", OrderID: "order-1", AmountMinor: 1999, Currency: "USD"})
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(payment.messages) != 1 {
		t.Fatalf("expected one routed message, got %d", len(payment.messages))
	}
	if _, ok := payment.messages[0].(*contracts.AuthorizePaymentForCheckout); !ok {
		t.Fatalf("unexpected routed type %T", payment.messages[0])
	}
}

func TestRouter_TerminalEventIsDropped(t *testing.T) {
	t.Parallel()

	checkout := &recordingSaga{}
	router := NewRouter(checkout, nil, nil, nil, nil, nil, nil, nil, nil)

	msg := sealedMessage(t, contracts.KindCheckoutCompleted, "co-1",
		contracts.CheckoutCompleted{CorrelationID: "co-1", OrderID: "order-1"})
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("terminal events must be dropped without error: %v", err)
	}
	if len(checkout.messages) != 0 {
		t.Fatalf("terminal event must not reach the saga, got %d messages", len(checkout.messages))
	}
}

func TestRouter_MissingHandlerDropsMessage(t *testing.T) {
	t.Parallel()

	router := NewRouter(nil, nil, nil, nil, nil, nil, nil, nil, nil)

	msg := sealedMessage(t, contracts.KindValidateReturnRequest, "ret-1",
		contracts.ValidateReturnRequest{CorrelationID: "ret-1", OrderID: "order-1"})
	if err := router.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("unconfigured kinds are dropped, not failed: %v", err)
	}
}

func TestRouter_EveryKindHasDestination(t *testing.T) {
	t.Parallel()

	router := NewRouter(
		&recordingSaga{}, &recordingSaga{}, &recordingSaga{},
		&recordingParticipant{}, &recordingParticipant{}, &recordingParticipant{},
		&recordingParticipant{}, &recordingParticipant{}, nil)

	for _, kind := range contracts.AllKinds() {
		if terminalKind(kind) {
			continue
		}
		if router.sagaFor(kind) == nil && router.participantFor(kind) == nil {
			t.Fatalf("kind %s has no destination", kind)
		}
	}
}

func TestRouter_MalformedEnvelope(t *testing.T) {
	t.Parallel()

	router := NewRouter(&recordingSaga{}, nil, nil, nil, nil, nil, nil, nil, nil)
	msg := &sarama.ConsumerMessage{Key: []byte("co-1"), Value: []byte(`{not json`)}
	if err := router.HandleMessage(context.Background(), msg); err == nil {
		t.Fatal("expected a parse error")
	}
}
