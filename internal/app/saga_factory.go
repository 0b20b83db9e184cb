package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/idempotency"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/participant"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/saga"
)

// buildRouter собирает оркестраторы и участников в единый маршрутизатор
// сообщений.
// NOTE: участники работают с mock-провайдерами; в production их место
// занимают клиенты реальных сервисов склада, платежей, заказов и корзины.
func buildRouter(cfg Config, deps *Dependencies, logger *log.Entry) *kafka.Router {
	checkout := saga.NewCheckout(
		deps.Checkouts, deps.Metrics,
		logger.WithField("component", "checkout-saga"),
	)
	cancellation := saga.NewCancellation(
		deps.Cancellations, deps.Metrics,
		logger.WithField("component", "cancellation-saga"),
	)
	returnRefund := saga.NewReturnRefund(
		deps.Returns, deps.Metrics,
		logger.WithField("component", "return-saga"),
	)

	executor := idempotency.NewExecutor(
		deps.Idempotency,
		idempotency.WithTTL(cfg.IdempotencyTTL),
		idempotency.WithExecutorLogger(logger.WithField("component", "idempotency")),
	)

	inventory := participant.NewInventory(
		participant.NewMockInventoryProvider(), deps.Outbox, deps.Metrics,
		logger.WithField("component", "inventory-participant"),
	)
	payment := participant.NewPayment(
		participant.NewMockPaymentProvider(), deps.Outbox, executor,
		logger.WithField("component", "payment-participant"),
	)
	order := participant.NewOrder(
		participant.NewMockOrderProvider(), deps.Outbox, deps.Metrics,
		logger.WithField("component", "order-participant"),
	)
	cart := participant.NewCart(
		participant.NewMockCartProvider(), deps.Outbox, deps.Metrics,
		logger.WithField("component", "cart-participant"),
	)
	returns := participant.NewReturns(
		participant.NewMockReturnsProvider(), deps.Outbox,
		logger.WithField("component", "returns-participant"),
	)

	return kafka.NewRouter(
		checkout, cancellation, returnRefund,
		inventory, payment, order, cart, returns,
		logger.WithField("component", "kafka-router"),
	)
}
