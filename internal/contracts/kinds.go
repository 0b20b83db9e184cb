// Package contracts содержит wire-типы команд и событий саг.
//
// Набор Kind закрыт: каждый kind обязан иметь typed-структуру в Decode
// и маршрут публикации в messaging/kafka. Полнота обеих таблиц
// проверяется тестами.
package contracts

import (
	"encoding/json"
	"fmt"
)

// Kind — дискриминатор типа сообщения в envelope и в outbox-строке.
type Kind string

// Команды (point-to-point, ровно один consumer).
const (
	KindReserveInventoryForCheckout     Kind = "ReserveInventoryForCheckout"
	KindReleaseInventoryForCheckout     Kind = "ReleaseInventoryForCheckout"
	KindAuthorizePaymentForCheckout     Kind = "AuthorizePaymentForCheckout"
	KindConfirmOrderForCheckout         Kind = "ConfirmOrderForCheckout"
	KindCancelOrderForCheckout          Kind = "CancelOrderForCheckout"
	KindDeactivateCartForCheckout       Kind = "DeactivateCartForCheckout"
	KindReleaseInventoryForCancellation Kind = "ReleaseInventoryForCancellation"
	KindProcessRefundForCancellation    Kind = "ProcessRefundForCancellation"
	KindFinalizeOrderCancellation       Kind = "FinalizeOrderCancellation"
	KindValidateReturnRequest           Kind = "ValidateReturnRequest"
	KindRestockReturnedItems            Kind = "RestockReturnedItems"
	KindProcessReturnRefund             Kind = "ProcessReturnRefund"
	KindFinalizeReturn                  Kind = "FinalizeReturn"
)

// Входные триггеры саг.
const (
	KindCheckoutStarted       Kind = "CheckoutStarted"
	KindCancellationRequested Kind = "CancellationRequested"
	KindReturnRequested       Kind = "ReturnRequested"
)

// Outcome-события участников (пары успех/неуспех на команду).
const (
	KindInventoryReservedForCheckout          Kind = "InventoryReservedForCheckout"
	KindInventoryReservationFailedForCheckout Kind = "InventoryReservationFailedForCheckout"
	KindPaymentAuthorizedForCheckout          Kind = "PaymentAuthorizedForCheckout"
	KindPaymentAuthorizationFailedForCheckout Kind = "PaymentAuthorizationFailedForCheckout"
	KindOrderConfirmedForCheckout             Kind = "OrderConfirmedForCheckout"
	KindOrderConfirmationFailedForCheckout    Kind = "OrderConfirmationFailedForCheckout"
	KindCartDeactivatedForCheckout            Kind = "CartDeactivatedForCheckout"
	KindInventoryReleasedForCheckout          Kind = "InventoryReleasedForCheckout"
	KindOrderCanceledForCheckout              Kind = "OrderCanceledForCheckout"

	KindInventoryReleasedForCancellation Kind = "InventoryReleasedForCancellation"
	KindRefundProcessedForCancellation   Kind = "RefundProcessedForCancellation"
	KindRefundFailedForCancellation      Kind = "RefundFailedForCancellation"
	KindOrderCancellationFinalized       Kind = "OrderCancellationFinalized"

	KindReturnRequestValidated Kind = "ReturnRequestValidated"
	KindReturnValidationFailed Kind = "ReturnValidationFailed"
	KindReturnedItemsRestocked Kind = "ReturnedItemsRestocked"
	KindReturnRestockFailed    Kind = "ReturnRestockFailed"
	KindReturnRefundProcessed  Kind = "ReturnRefundProcessed"
	KindReturnRefundFailed     Kind = "ReturnRefundFailed"
	KindReturnFinalized        Kind = "ReturnFinalized"
)

// Терминальные события саг (broadcast для внешних слушателей).
const (
	KindCheckoutCompleted      Kind = "CheckoutCompleted"
	KindCheckoutFailed         Kind = "CheckoutFailed"
	KindCancellationCompleted  Kind = "CancellationCompleted"
	KindCancellationFailed     Kind = "CancellationFailed"
	KindReturnRefundCompleted  Kind = "ReturnRefundCompleted"
	KindReturnRefundSagaFailed Kind = "ReturnRefundSagaFailed"
)

// AllKinds возвращает полный закрытый набор kind'ов.
// Тесты опираются на этот список для проверки полноты Decode и маршрутов.
func AllKinds() []Kind {
	return []Kind{
		KindReserveInventoryForCheckout,
		KindReleaseInventoryForCheckout,
		KindAuthorizePaymentForCheckout,
		KindConfirmOrderForCheckout,
		KindCancelOrderForCheckout,
		KindDeactivateCartForCheckout,
		KindReleaseInventoryForCancellation,
		KindProcessRefundForCancellation,
		KindFinalizeOrderCancellation,
		KindValidateReturnRequest,
		KindRestockReturnedItems,
		KindProcessReturnRefund,
		KindFinalizeReturn,

		KindCheckoutStarted,
		KindCancellationRequested,
		KindReturnRequested,

		KindInventoryReservedForCheckout,
		KindInventoryReservationFailedForCheckout,
		KindPaymentAuthorizedForCheckout,
		KindPaymentAuthorizationFailedForCheckout,
		KindOrderConfirmedForCheckout,
		KindOrderConfirmationFailedForCheckout,
		KindCartDeactivatedForCheckout,
		KindInventoryReleasedForCheckout,
		KindOrderCanceledForCheckout,

		KindInventoryReleasedForCancellation,
		KindRefundProcessedForCancellation,
		KindRefundFailedForCancellation,
		KindOrderCancellationFinalized,

		KindReturnRequestValidated,
		KindReturnValidationFailed,
		KindReturnedItemsRestocked,
		KindReturnRestockFailed,
		KindReturnRefundProcessed,
		KindReturnRefundFailed,
		KindReturnFinalized,

		KindCheckoutCompleted,
		KindCheckoutFailed,
		KindCancellationCompleted,
		KindCancellationFailed,
		KindReturnRefundCompleted,
		KindReturnRefundSagaFailed,
	}
}

// Decode разбирает payload в typed-структуру по kind.
// Неизвестный kind — ошибка, а не default-ветка: набор закрыт.
func Decode(kind Kind, payload []byte) (any, error) {
	msg, ok := newMessage(kind)
	if !ok {
		return nil, fmt.Errorf("unknown message kind %q", kind)
	}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return msg, nil
}

func newMessage(kind Kind) (any, bool) {
	switch kind {
	case KindReserveInventoryForCheckout:
		return &ReserveInventoryForCheckout{}, true
	case KindReleaseInventoryForCheckout:
		return &ReleaseInventoryForCheckout{}, true
	case KindAuthorizePaymentForCheckout:
		return &AuthorizePaymentForCheckout{}, true
	case KindConfirmOrderForCheckout:
		return &ConfirmOrderForCheckout{}, true
	case KindCancelOrderForCheckout:
		return &CancelOrderForCheckout{}, true
	case KindDeactivateCartForCheckout:
		return &DeactivateCartForCheckout{}, true
	case KindReleaseInventoryForCancellation:
		return &ReleaseInventoryForCancellation{}, true
	case KindProcessRefundForCancellation:
		return &ProcessRefundForCancellation{}, true
	case KindFinalizeOrderCancellation:
		return &FinalizeOrderCancellation{}, true
	case KindValidateReturnRequest:
		return &ValidateReturnRequest{}, true
	case KindRestockReturnedItems:
		return &RestockReturnedItems{}, true
	case KindProcessReturnRefund:
		return &ProcessReturnRefund{}, true
	case KindFinalizeReturn:
		return &FinalizeReturn{}, true

	case KindCheckoutStarted:
		return &CheckoutStarted{}, true
	case KindCancellationRequested:
		return &CancellationRequested{}, true
	case KindReturnRequested:
		return &ReturnRequested{}, true

	case KindInventoryReservedForCheckout:
		return &InventoryReservedForCheckout{}, true
	case KindInventoryReservationFailedForCheckout:
		return &InventoryReservationFailedForCheckout{}, true
	case KindPaymentAuthorizedForCheckout:
		return &PaymentAuthorizedForCheckout{}, true
	case KindPaymentAuthorizationFailedForCheckout:
		return &PaymentAuthorizationFailedForCheckout{}, true
	case KindOrderConfirmedForCheckout:
		return &OrderConfirmedForCheckout{}, true
	case KindOrderConfirmationFailedForCheckout:
		return &OrderConfirmationFailedForCheckout{}, true
	case KindCartDeactivatedForCheckout:
		return &CartDeactivatedForCheckout{}, true
	case KindInventoryReleasedForCheckout:
		return &InventoryReleasedForCheckout{}, true
	case KindOrderCanceledForCheckout:
		return &OrderCanceledForCheckout{}, true

	case KindInventoryReleasedForCancellation:
		return &InventoryReleasedForCancellation{}, true
	case KindRefundProcessedForCancellation:
		return &RefundProcessedForCancellation{}, true
	case KindRefundFailedForCancellation:
		return &RefundFailedForCancellation{}, true
	case KindOrderCancellationFinalized:
		return &OrderCancellationFinalized{}, true

	case KindReturnRequestValidated:
		return &ReturnRequestValidated{}, true
	case KindReturnValidationFailed:
		return &ReturnValidationFailed{}, true
	case KindReturnedItemsRestocked:
		return &ReturnedItemsRestocked{}, true
	case KindReturnRestockFailed:
		return &ReturnRestockFailed{}, true
	case KindReturnRefundProcessed:
		return &ReturnRefundProcessed{}, true
	case KindReturnRefundFailed:
		return &ReturnRefundFailed{}, true
	case KindReturnFinalized:
		return &ReturnFinalized{}, true

	case KindCheckoutCompleted:
		return &CheckoutCompleted{}, true
	case KindCheckoutFailed:
		return &CheckoutFailed{}, true
	case KindCancellationCompleted:
		return &CancellationCompleted{}, true
	case KindCancellationFailed:
		return &CancellationFailed{}, true
	case KindReturnRefundCompleted:
		return &ReturnRefundCompleted{}, true
	case KindReturnRefundSagaFailed:
		return &ReturnRefundSagaFailed{}, true
	default:
		return nil, false
	}
}
