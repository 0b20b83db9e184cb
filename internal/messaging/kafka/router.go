package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
)

// SagaHandler — стейт-машина саги (оркестратор).
type SagaHandler interface {
	Handle(msg any) error
}

// ParticipantHandler — обработчик саговых команд участника.
type ParticipantHandler interface {
	Handle(ctx context.Context, msg any) error
}

// Router раскрывает конверт и направляет typed-сообщение своему
// обработчику: триггеры и outcome-события — стейт-машинам, команды —
// участникам. Терминальные события — broadcast для внешних слушателей,
// внутри сервиса они отбрасываются.
type Router struct {
	checkout     SagaHandler
	cancellation SagaHandler
	returnRefund SagaHandler

	inventory ParticipantHandler
	payment   ParticipantHandler
	order     ParticipantHandler
	cart      ParticipantHandler
	returns   ParticipantHandler

	logger *log.Entry
}

// NewRouter создаёт маршрутизатор сообщений. Любой обработчик может быть
// nil — его kind'ы тогда отбрасываются с предупреждением (частичный
// деплой: инстанс только с оркестратором либо только с участниками).
func NewRouter(
	checkout, cancellation, returnRefund SagaHandler,
	inventory, payment, order, cart, returns ParticipantHandler,
	logger *log.Entry,
) *Router {
	if logger == nil {
		logger = log.WithField("component", "kafka-router")
	}
	return &Router{
		checkout:     checkout,
		cancellation: cancellation,
		returnRefund: returnRefund,
		inventory:    inventory,
		payment:      payment,
		order:        order,
		cart:         cart,
		returns:      returns,
		logger:       logger,
	}
}

// HandleMessage — MessageHandler для Consumer.
func (r *Router) HandleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	envelope, err := ParseEnvelope(message)
	if err != nil {
		return err
	}
	return r.Route(ctx, envelope)
}

// Route раскрывает конверт и отдаёт сообщение обработчику его kind'а.
func (r *Router) Route(ctx context.Context, envelope contracts.Envelope) error {
	if terminalKind(envelope.Kind) {
		r.logger.WithFields(log.Fields{
			"kind":           envelope.Kind,
			"correlation_id": envelope.CorrelationID,
		}).Debug("terminal event dropped")
		return nil
	}

	msg, err := envelope.Open()
	if err != nil {
		return fmt.Errorf("open envelope %s: %w", envelope.ID, err)
	}

	if saga := r.sagaFor(envelope.Kind); saga != nil {
		return saga.Handle(msg)
	}
	if participant := r.participantFor(envelope.Kind); participant != nil {
		return participant.Handle(ctx, msg)
	}

	r.logger.WithFields(log.Fields{
		"kind":           envelope.Kind,
		"correlation_id": envelope.CorrelationID,
	}).Warn("no handler configured for kind, message dropped")
	return nil
}

func (r *Router) sagaFor(kind contracts.Kind) SagaHandler {
	switch kind {
	case contracts.KindCheckoutStarted,
		contracts.KindInventoryReservedForCheckout,
		contracts.KindInventoryReservationFailedForCheckout,
		contracts.KindPaymentAuthorizedForCheckout,
		contracts.KindPaymentAuthorizationFailedForCheckout,
		contracts.KindOrderConfirmedForCheckout,
		contracts.KindOrderConfirmationFailedForCheckout,
		contracts.KindCartDeactivatedForCheckout,
		contracts.KindInventoryReleasedForCheckout,
		contracts.KindOrderCanceledForCheckout:
		return r.checkout
	case contracts.KindCancellationRequested,
		contracts.KindInventoryReleasedForCancellation,
		contracts.KindRefundProcessedForCancellation,
		contracts.KindRefundFailedForCancellation,
		contracts.KindOrderCancellationFinalized:
		return r.cancellation
	case contracts.KindReturnRequested,
		contracts.KindReturnRequestValidated,
		contracts.KindReturnValidationFailed,
		contracts.KindReturnedItemsRestocked,
		contracts.KindReturnRestockFailed,
		contracts.KindReturnRefundProcessed,
		contracts.KindReturnRefundFailed,
		contracts.KindReturnFinalized:
		return r.returnRefund
	}
	return nil
}

func (r *Router) participantFor(kind contracts.Kind) ParticipantHandler {
	switch kind {
	case contracts.KindReserveInventoryForCheckout,
		contracts.KindReleaseInventoryForCheckout,
		contracts.KindReleaseInventoryForCancellation,
		contracts.KindRestockReturnedItems:
		return r.inventory
	case contracts.KindAuthorizePaymentForCheckout,
		contracts.KindProcessRefundForCancellation,
		contracts.KindProcessReturnRefund:
		return r.payment
	case contracts.KindConfirmOrderForCheckout,
		contracts.KindCancelOrderForCheckout,
		contracts.KindFinalizeOrderCancellation,
		contracts.KindFinalizeReturn:
		return r.order
	case contracts.KindDeactivateCartForCheckout:
		return r.cart
	case contracts.KindValidateReturnRequest:
		return r.returns
	}
	return nil
}

func terminalKind(kind contracts.Kind) bool {
	switch kind {
	case contracts.KindCheckoutCompleted,
		contracts.KindCheckoutFailed,
		contracts.KindCancellationCompleted,
		contracts.KindCancellationFailed,
		contracts.KindReturnRefundCompleted,
		contracts.KindReturnRefundSagaFailed:
		return true
	}
	return false
}
