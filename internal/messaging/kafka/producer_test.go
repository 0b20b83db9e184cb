package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
)

func newTestProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	mockProducer := mocks.NewSyncProducer(t, nil)
	return &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}, mockProducer
}

func TestProducer_PublishEnvelope(t *testing.T) {
	producer, mockProducer := newTestProducer(t)

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var envelope contracts.Envelope
		if err := json.Unmarshal(value, &envelope); err != nil {
			return err
		}
		opened, err := envelope.Open()
		if err != nil {
			return err
		}
		event, ok := opened.(*contracts.CheckoutStarted)
		if !ok {
			t.Fatalf("unexpected decoded type %T", opened)
		}
		if event.CorrelationID != "co-1" {
			t.Fatalf("unexpected correlation id %q", event.CorrelationID)
		}
		return nil
	})

	envelope, err := contracts.Seal("env-1", contracts.KindCheckoutStarted, "co-1", time.Now().UTC(),
		contracts.CheckoutStarted{CorrelationID: "co-1", OrderID: "order-1"})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := producer.PublishEnvelope(envelope); err != nil {
		t.Fatalf("PublishEnvelope: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEnvelope_UnroutableKind(t *testing.T) {
	producer, mockProducer := newTestProducer(t)

	err := producer.PublishEnvelope(contracts.Envelope{
		ID:            "env-1",
		Kind:          contracts.Kind("NoSuchKind"),
		CorrelationID: "co-1",
	})
	if err == nil {
		t.Fatal("expected a routing error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishError(t *testing.T) {
	producer, mockProducer := newTestProducer(t)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	if err := producer.Publish(TopicSagaEvents, "co-1", map[string]string{"k": "v"}); err == nil {
		t.Fatal("expected a send error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
