package saga

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

const checkoutAggregate = "checkout_saga"

// Checkout — конечный автомат checkout-саги:
// AwaitingInventory → AwaitingPayment → AwaitingConfirmation →
// AwaitingCartDeactivation → Completed, с компенсационной веткой
// CompensatingInventory → CompensatingOrder → Failed.
type Checkout struct {
	states  domain.CheckoutSagaRepository
	logger  *log.Entry
	metrics *metrics.SagaMetrics
}

// NewCheckout создаёт checkout-автомат.
func NewCheckout(
	states domain.CheckoutSagaRepository,
	sagaMetrics *metrics.SagaMetrics,
	logger *log.Entry,
) *Checkout {
	if logger == nil {
		logger = log.WithField("component", "checkout-saga")
	}
	return &Checkout{
		states:  states,
		metrics: sagaMetrics,
		logger:  logger,
	}
}

// Handle применяет входящее сообщение к саге.
// Повторные и запоздавшие доставки — no-op; проигранная optimistic-lock
// гонка возвращает ErrSagaVersionConflict, чтобы шина передоставила событие.
func (c *Checkout) Handle(msg any) error {
	if started, ok := msg.(*contracts.CheckoutStarted); ok {
		return c.start(started)
	}

	correlationID, ok := checkoutCorrelationID(msg)
	if !ok {
		return fmt.Errorf("checkout saga: unexpected message type %T", msg)
	}
	if correlationID == "" {
		return domain.ErrCorrelationIDRequired
	}

	st, err := c.states.Get(correlationID)
	if err != nil {
		if errors.Is(err, domain.ErrSagaNotFound) {
			c.logger.WithField("correlation_id", correlationID).Warn("checkout event for unknown saga, dropping")
			return nil
		}
		return fmt.Errorf("load checkout saga: %w", err)
	}
	if st.Completed() {
		c.logger.WithField("correlation_id", correlationID).Debug("checkout saga already completed, event is a no-op")
		c.metrics.RecordEventIgnored(string(domain.SagaTypeCheckout))
		return nil
	}

	now := time.Now().UTC()
	next, effects, err := transitionCheckout(st, msg, now)
	if err != nil {
		if errors.Is(err, errEventIgnored) {
			c.logger.WithFields(log.Fields{
				"correlation_id": correlationID,
				"current_state":  st.CurrentState,
			}).Debug("checkout event ignored for current state")
			c.metrics.RecordEventIgnored(string(domain.SagaTypeCheckout))
			return nil
		}
		return err
	}

	rows, err := outboxMessages(checkoutAggregate, correlationID, effects)
	if err != nil {
		return err
	}

	next.UpdatedAt = now
	if err := c.states.Save(next, rows...); err != nil {
		if domain.IsVersionConflict(err) {
			c.logger.WithFields(log.Fields{
				"correlation_id": correlationID,
				"version":        st.Version,
			}).Warn("checkout saga version conflict, leaving redelivery to the bus")
			c.metrics.RecordVersionConflict(string(domain.SagaTypeCheckout))
		}
		return err
	}

	c.recordTerminal(next, now)
	for range effects {
		c.metrics.RecordOutboxEffect()
	}
	return nil
}

// start создаёт сагу и отправляет первую команду.
// Повторная доставка триггера с тем же correlation id — no-op.
func (c *Checkout) start(ev *contracts.CheckoutStarted) error {
	if ev.CorrelationID == "" {
		return domain.ErrCorrelationIDRequired
	}
	if ev.OrderID == "" {
		return domain.ErrOrderIDRequired
	}

	now := time.Now().UTC()
	st := domain.CheckoutSagaState{
		CorrelationID: ev.CorrelationID,
		CurrentState:  domain.CheckoutAwaitingInventory,
		OrderID:       ev.OrderID,
		OrderNumber:   ev.OrderNumber,
		CustomerID:    ev.CustomerID,
		CustomerEmail: ev.CustomerEmail,
		CartID:        ev.CartID,
		AmountMinor:   ev.AmountMinor,
		Currency:      ev.Currency,
		Items:         ev.Items,
		Version:       0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	rows, err := outboxMessages(checkoutAggregate, ev.CorrelationID, []effect{
		command(contracts.KindReserveInventoryForCheckout, contracts.ReserveInventoryForCheckout{
			CorrelationID: ev.CorrelationID,
			OrderID:       ev.OrderID,
			Items:         ev.Items,
			OccurredAt:    now,
		}),
	})
	if err != nil {
		return err
	}

	if err := c.states.Create(st, rows...); err != nil {
		if errors.Is(err, domain.ErrSagaAlreadyExists) {
			c.logger.WithField("correlation_id", ev.CorrelationID).Debug("checkout saga already started, trigger is a no-op")
			return nil
		}
		return fmt.Errorf("create checkout saga: %w", err)
	}

	c.metrics.RecordSagaStarted(string(domain.SagaTypeCheckout))
	c.metrics.RecordOutboxEffect()
	c.logger.WithFields(log.Fields{
		"correlation_id": ev.CorrelationID,
		"order_id":       ev.OrderID,
	}).Info("checkout saga started")

	return nil
}

func (c *Checkout) recordTerminal(st domain.CheckoutSagaState, now time.Time) {
	if st.CompletedAt == nil {
		return
	}
	switch st.CurrentState {
	case domain.CheckoutCompleted:
		c.metrics.RecordSagaCompleted(string(domain.SagaTypeCheckout), now.Sub(st.CreatedAt))
		c.logger.WithField("correlation_id", st.CorrelationID).Info("checkout saga completed")
	case domain.CheckoutFailed:
		c.metrics.RecordSagaFailed(string(domain.SagaTypeCheckout), now.Sub(st.CreatedAt))
		c.logger.WithFields(log.Fields{
			"correlation_id": st.CorrelationID,
			"failed_step":    st.FailedStep,
			"failure_reason": st.FailureReason,
		}).Warn("checkout saga failed")
	}
}

// transitionCheckout — чистая функция перехода checkout-саги.
// Возвращает новое значение состояния (вход не мутируется) и эффекты;
// событие, не применимое к текущему состоянию, даёт errEventIgnored.
func transitionCheckout(st domain.CheckoutSagaState, msg any, now time.Time) (domain.CheckoutSagaState, []effect, error) {
	switch ev := msg.(type) {
	case *contracts.InventoryReservedForCheckout:
		if st.CurrentState != domain.CheckoutAwaitingInventory {
			return st, nil, errEventIgnored
		}
		st.ReservationID = ev.ReservationID
		setOnce(&st.InventoryReservedAt, now)
		st.CurrentState = domain.CheckoutAwaitingPayment
		return st, []effect{
			command(contracts.KindAuthorizePaymentForCheckout, contracts.AuthorizePaymentForCheckout{
				CorrelationID: st.CorrelationID,
				OrderID:       st.OrderID,
				CustomerID:    st.CustomerID,
				AmountMinor:   st.AmountMinor,
				Currency:      st.Currency,
				OccurredAt:    now,
			}),
		}, nil

	case *contracts.InventoryReservationFailedForCheckout:
		if st.CurrentState != domain.CheckoutAwaitingInventory {
			return st, nil, errEventIgnored
		}
		// Резерва ещё нет — компенсация начинается сразу с отмены заказа.
		st.FailureReason = ev.Reason
		st.FailedStep = domain.StepInventoryReservation
		st.CurrentState = domain.CheckoutCompensatingOrder
		return st, []effect{
			command(contracts.KindCancelOrderForCheckout, contracts.CancelOrderForCheckout{
				CorrelationID: st.CorrelationID,
				OrderID:       st.OrderID,
				Reason:        ev.Reason,
				OccurredAt:    now,
			}),
		}, nil

	case *contracts.PaymentAuthorizedForCheckout:
		if st.CurrentState != domain.CheckoutAwaitingPayment {
			return st, nil, errEventIgnored
		}
		st.PaymentID = ev.PaymentID
		st.TransactionID = ev.TransactionID
		setOnce(&st.PaymentAuthorizedAt, now)
		st.CurrentState = domain.CheckoutAwaitingConfirmation
		return st, []effect{
			command(contracts.KindConfirmOrderForCheckout, contracts.ConfirmOrderForCheckout{
				CorrelationID: st.CorrelationID,
				OrderID:       st.OrderID,
				OccurredAt:    now,
			}),
		}, nil

	case *contracts.PaymentAuthorizationFailedForCheckout:
		if st.CurrentState != domain.CheckoutAwaitingPayment {
			return st, nil, errEventIgnored
		}
		st.FailureReason = ev.Reason
		st.FailedStep = domain.StepPaymentAuthorization
		return compensateInventory(st, now)

	case *contracts.OrderConfirmedForCheckout:
		if st.CurrentState != domain.CheckoutAwaitingConfirmation {
			return st, nil, errEventIgnored
		}
		setOnce(&st.ConfirmedAt, now)
		if st.CartID != "" {
			st.CurrentState = domain.CheckoutAwaitingCartDeactivation
			return st, []effect{
				command(contracts.KindDeactivateCartForCheckout, contracts.DeactivateCartForCheckout{
					CorrelationID: st.CorrelationID,
					CartID:        st.CartID,
					OccurredAt:    now,
				}),
			}, nil
		}
		return finalizeCheckout(st, now)

	case *contracts.OrderConfirmationFailedForCheckout:
		if st.CurrentState != domain.CheckoutAwaitingConfirmation {
			return st, nil, errEventIgnored
		}
		st.FailureReason = ev.Reason
		st.FailedStep = domain.StepOrderConfirmation
		return compensateInventory(st, now)

	case *contracts.CartDeactivatedForCheckout:
		if st.CurrentState != domain.CheckoutAwaitingCartDeactivation {
			return st, nil, errEventIgnored
		}
		setOnce(&st.CartDeactivatedAt, now)
		return finalizeCheckout(st, now)

	case *contracts.InventoryReleasedForCheckout:
		if st.CurrentState != domain.CheckoutCompensatingInventory {
			return st, nil, errEventIgnored
		}
		// Компенсация идёт в обратном порядке зависимостей: резерв снят,
		// теперь отменяем заказ, который его запрашивал.
		st.CurrentState = domain.CheckoutCompensatingOrder
		return st, []effect{
			command(contracts.KindCancelOrderForCheckout, contracts.CancelOrderForCheckout{
				CorrelationID: st.CorrelationID,
				OrderID:       st.OrderID,
				Reason:        st.FailureReason,
				OccurredAt:    now,
			}),
		}, nil

	case *contracts.OrderCanceledForCheckout:
		if st.CurrentState != domain.CheckoutCompensatingOrder {
			return st, nil, errEventIgnored
		}
		st.CurrentState = domain.CheckoutFailed
		setOnce(&st.CompletedAt, now)
		return st, []effect{
			publish(contracts.KindCheckoutFailed, contracts.CheckoutFailed{
				CorrelationID: st.CorrelationID,
				OrderID:       st.OrderID,
				FailureReason: st.FailureReason,
				FailedStep:    string(st.FailedStep),
				OccurredAt:    now,
			}),
		}, nil

	default:
		return st, nil, fmt.Errorf("checkout saga: unexpected message type %T", msg)
	}
}

func compensateInventory(st domain.CheckoutSagaState, now time.Time) (domain.CheckoutSagaState, []effect, error) {
	st.CurrentState = domain.CheckoutCompensatingInventory
	return st, []effect{
		command(contracts.KindReleaseInventoryForCheckout, contracts.ReleaseInventoryForCheckout{
			CorrelationID: st.CorrelationID,
			OrderID:       st.OrderID,
			ReservationID: st.ReservationID,
			OccurredAt:    now,
		}),
	}, nil
}

func finalizeCheckout(st domain.CheckoutSagaState, now time.Time) (domain.CheckoutSagaState, []effect, error) {
	st.CurrentState = domain.CheckoutCompleted
	setOnce(&st.CompletedAt, now)
	return st, []effect{
		publish(contracts.KindCheckoutCompleted, contracts.CheckoutCompleted{
			CorrelationID: st.CorrelationID,
			OrderID:       st.OrderID,
			OrderNumber:   st.OrderNumber,
			CustomerID:    st.CustomerID,
			AmountMinor:   st.AmountMinor,
			Currency:      st.Currency,
			OccurredAt:    now,
		}),
	}, nil
}

func checkoutCorrelationID(msg any) (string, bool) {
	switch ev := msg.(type) {
	case *contracts.InventoryReservedForCheckout:
		return ev.CorrelationID, true
	case *contracts.InventoryReservationFailedForCheckout:
		return ev.CorrelationID, true
	case *contracts.PaymentAuthorizedForCheckout:
		return ev.CorrelationID, true
	case *contracts.PaymentAuthorizationFailedForCheckout:
		return ev.CorrelationID, true
	case *contracts.OrderConfirmedForCheckout:
		return ev.CorrelationID, true
	case *contracts.OrderConfirmationFailedForCheckout:
		return ev.CorrelationID, true
	case *contracts.CartDeactivatedForCheckout:
		return ev.CorrelationID, true
	case *contracts.InventoryReleasedForCheckout:
		return ev.CorrelationID, true
	case *contracts.OrderCanceledForCheckout:
		return ev.CorrelationID, true
	default:
		return "", false
	}
}
