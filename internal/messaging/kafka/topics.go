package kafka

import (
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
)

// Topics для Kafka. Команды — point-to-point topic своего участника,
// триггеры и события — общие topic'и оркестратора.
const (
	TopicInventoryCommands = "fulfillment.inventory.commands"
	TopicPaymentCommands   = "fulfillment.payment.commands"
	TopicOrderCommands     = "fulfillment.order.commands"
	TopicCartCommands      = "fulfillment.cart.commands"
	TopicReturnsCommands   = "fulfillment.returns.commands"

	TopicSagaTriggers    = "fulfillment.saga.triggers"
	TopicSagaEvents      = "fulfillment.saga.events"
	TopicDeadLetterQueue = "fulfillment.dlq"
)

// Kafka headers для retry логики consumer'а.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// kindTopics — закрытая таблица маршрутизации kind -> topic.
// Полнота по отношению к contracts.AllKinds проверяется тестом.
var kindTopics = map[contracts.Kind]string{
	contracts.KindReserveInventoryForCheckout:     TopicInventoryCommands,
	contracts.KindReleaseInventoryForCheckout:     TopicInventoryCommands,
	contracts.KindReleaseInventoryForCancellation: TopicInventoryCommands,
	contracts.KindRestockReturnedItems:            TopicInventoryCommands,

	contracts.KindAuthorizePaymentForCheckout:  TopicPaymentCommands,
	contracts.KindProcessRefundForCancellation: TopicPaymentCommands,
	contracts.KindProcessReturnRefund:          TopicPaymentCommands,

	contracts.KindConfirmOrderForCheckout:   TopicOrderCommands,
	contracts.KindCancelOrderForCheckout:    TopicOrderCommands,
	contracts.KindFinalizeOrderCancellation: TopicOrderCommands,
	contracts.KindFinalizeReturn:            TopicOrderCommands,

	contracts.KindDeactivateCartForCheckout: TopicCartCommands,

	contracts.KindValidateReturnRequest: TopicReturnsCommands,

	contracts.KindCheckoutStarted:       TopicSagaTriggers,
	contracts.KindCancellationRequested: TopicSagaTriggers,
	contracts.KindReturnRequested:       TopicSagaTriggers,

	contracts.KindInventoryReservedForCheckout:          TopicSagaEvents,
	contracts.KindInventoryReservationFailedForCheckout: TopicSagaEvents,
	contracts.KindPaymentAuthorizedForCheckout:          TopicSagaEvents,
	contracts.KindPaymentAuthorizationFailedForCheckout: TopicSagaEvents,
	contracts.KindOrderConfirmedForCheckout:             TopicSagaEvents,
	contracts.KindOrderConfirmationFailedForCheckout:    TopicSagaEvents,
	contracts.KindCartDeactivatedForCheckout:            TopicSagaEvents,
	contracts.KindInventoryReleasedForCheckout:          TopicSagaEvents,
	contracts.KindOrderCanceledForCheckout:              TopicSagaEvents,
	contracts.KindInventoryReleasedForCancellation:      TopicSagaEvents,
	contracts.KindRefundProcessedForCancellation:        TopicSagaEvents,
	contracts.KindRefundFailedForCancellation:           TopicSagaEvents,
	contracts.KindOrderCancellationFinalized:            TopicSagaEvents,
	contracts.KindReturnRequestValidated:                TopicSagaEvents,
	contracts.KindReturnValidationFailed:                TopicSagaEvents,
	contracts.KindReturnedItemsRestocked:                TopicSagaEvents,
	contracts.KindReturnRestockFailed:                   TopicSagaEvents,
	contracts.KindReturnRefundProcessed:                 TopicSagaEvents,
	contracts.KindReturnRefundFailed:                    TopicSagaEvents,
	contracts.KindReturnFinalized:                       TopicSagaEvents,

	contracts.KindCheckoutCompleted:      TopicSagaEvents,
	contracts.KindCheckoutFailed:         TopicSagaEvents,
	contracts.KindCancellationCompleted:  TopicSagaEvents,
	contracts.KindCancellationFailed:     TopicSagaEvents,
	contracts.KindReturnRefundCompleted:  TopicSagaEvents,
	contracts.KindReturnRefundSagaFailed: TopicSagaEvents,
}

// TopicFor возвращает topic публикации для kind.
func TopicFor(kind contracts.Kind) (string, error) {
	topic, ok := kindTopics[kind]
	if !ok {
		return "", fmt.Errorf("no topic route for kind %q", kind)
	}
	return topic, nil
}
