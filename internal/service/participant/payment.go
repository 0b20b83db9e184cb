package participant

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/contracts"
	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/idempotency"
)

const paymentAggregate = "payment_participant"

// authorizationResult кэшируется идемпотентным executor-ом: повторная
// доставка команды вернёт те же идентификаторы без списания денег дважды.
type authorizationResult struct {
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
}

type refundResult struct {
	RefundID string `json:"refund_id"`
}

// Payment обрабатывает платёжные команды саг. Authorize и Refund идут через
// идемпотентный executor: деньги — единственный шаг, где at-least-once
// доставка без дедупликации напрямую бьёт по клиенту.
type Payment struct {
	provider domain.PaymentProvider
	outbox   domain.OutboxRepository
	executor *idempotency.Executor
	logger   *log.Entry
}

// NewPayment создаёт платёжного участника. executor может быть nil — тогда
// операции выполняются напрямую, без дедупликации.
func NewPayment(
	provider domain.PaymentProvider,
	outbox domain.OutboxRepository,
	executor *idempotency.Executor,
	logger *log.Entry,
) *Payment {
	if logger == nil {
		logger = log.WithField("component", "payment-participant")
	}
	return &Payment{
		provider: provider,
		outbox:   outbox,
		executor: executor,
		logger:   logger,
	}
}

// Handle выполняет платёжную команду и публикует ровно одно outcome-событие.
func (p *Payment) Handle(ctx context.Context, msg any) error {
	switch cmd := msg.(type) {
	case *contracts.AuthorizePaymentForCheckout:
		return p.authorize(ctx, cmd)
	case *contracts.ProcessRefundForCancellation:
		return p.refundForCancellation(ctx, cmd)
	case *contracts.ProcessReturnRefund:
		return p.refundForReturn(ctx, cmd)
	default:
		return fmt.Errorf("payment participant: unexpected message type %T", msg)
	}
}

func (p *Payment) authorize(ctx context.Context, cmd *contracts.AuthorizePaymentForCheckout) error {
	key := "payment:authorize:" + cmd.CorrelationID

	result, err := idempotency.Execute(ctx, p.executor, key, cmd,
		func(ctx context.Context) (authorizationResult, error) {
			paymentID, transactionID, err := p.provider.Authorize(ctx, cmd.OrderID, cmd.AmountMinor, cmd.Currency)
			if err != nil {
				return authorizationResult{}, err
			}
			return authorizationResult{PaymentID: paymentID, TransactionID: transactionID}, nil
		})
	if err != nil {
		if retryable(err) {
			return err
		}
		p.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": cmd.CorrelationID,
			"order_id":       cmd.OrderID,
		}).Warn("payment authorization failed")
		return emitOutcome(p.outbox, p.logger, paymentAggregate, cmd.CorrelationID,
			contracts.KindPaymentAuthorizationFailedForCheckout, contracts.PaymentAuthorizationFailedForCheckout{
				CorrelationID: cmd.CorrelationID,
				OrderID:       cmd.OrderID,
				Reason:        err.Error(),
				OccurredAt:    time.Now().UTC(),
			})
	}

	return emitOutcome(p.outbox, p.logger, paymentAggregate, cmd.CorrelationID,
		contracts.KindPaymentAuthorizedForCheckout, contracts.PaymentAuthorizedForCheckout{
			CorrelationID: cmd.CorrelationID,
			OrderID:       cmd.OrderID,
			PaymentID:     result.PaymentID,
			TransactionID: result.TransactionID,
			OccurredAt:    time.Now().UTC(),
		})
}

func (p *Payment) refundForCancellation(ctx context.Context, cmd *contracts.ProcessRefundForCancellation) error {
	key := "payment:refund:cancellation:" + cmd.CorrelationID

	result, err := p.refund(ctx, key, cmd, cmd.PaymentID, cmd.AmountMinor, cmd.Currency)
	if err != nil {
		if retryable(err) {
			return err
		}
		p.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": cmd.CorrelationID,
			"order_id":       cmd.OrderID,
			"payment_id":     cmd.PaymentID,
		}).Warn("cancellation refund failed")
		return emitOutcome(p.outbox, p.logger, paymentAggregate, cmd.CorrelationID,
			contracts.KindRefundFailedForCancellation, contracts.RefundFailedForCancellation{
				CorrelationID: cmd.CorrelationID,
				OrderID:       cmd.OrderID,
				Reason:        err.Error(),
				OccurredAt:    time.Now().UTC(),
			})
	}

	return emitOutcome(p.outbox, p.logger, paymentAggregate, cmd.CorrelationID,
		contracts.KindRefundProcessedForCancellation, contracts.RefundProcessedForCancellation{
			CorrelationID: cmd.CorrelationID,
			OrderID:       cmd.OrderID,
			RefundID:      result.RefundID,
			AmountMinor:   cmd.AmountMinor,
			OccurredAt:    time.Now().UTC(),
		})
}

func (p *Payment) refundForReturn(ctx context.Context, cmd *contracts.ProcessReturnRefund) error {
	key := "payment:refund:return:" + cmd.CorrelationID

	result, err := p.refund(ctx, key, cmd, cmd.PaymentID, cmd.AmountMinor, cmd.Currency)
	if err != nil {
		if retryable(err) {
			return err
		}
		p.logger.WithError(err).WithFields(log.Fields{
			"correlation_id": cmd.CorrelationID,
			"order_id":       cmd.OrderID,
			"payment_id":     cmd.PaymentID,
		}).Warn("return refund failed")
		return emitOutcome(p.outbox, p.logger, paymentAggregate, cmd.CorrelationID,
			contracts.KindReturnRefundFailed, contracts.ReturnRefundFailed{
				CorrelationID: cmd.CorrelationID,
				OrderID:       cmd.OrderID,
				Reason:        err.Error(),
				OccurredAt:    time.Now().UTC(),
			})
	}

	return emitOutcome(p.outbox, p.logger, paymentAggregate, cmd.CorrelationID,
		contracts.KindReturnRefundProcessed, contracts.ReturnRefundProcessed{
			CorrelationID: cmd.CorrelationID,
			OrderID:       cmd.OrderID,
			RefundID:      result.RefundID,
			AmountMinor:   cmd.AmountMinor,
			OccurredAt:    time.Now().UTC(),
		})
}

func (p *Payment) refund(ctx context.Context, key string, request any, paymentID string, amountMinor int64, currency string) (refundResult, error) {
	return idempotency.Execute(ctx, p.executor, key, request,
		func(ctx context.Context) (refundResult, error) {
			refundID, err := p.provider.Refund(ctx, paymentID, amountMinor, currency)
			if err != nil {
				return refundResult{}, err
			}
			return refundResult{RefundID: refundID}, nil
		})
}

// retryable отличает транзиентные ошибки идемпотентного слоя от провала
// самой операции: первые возвращаются брокеру на redelivery, вторые
// превращаются в failure-событие.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrIdempotencyInProgress) ||
		errors.Is(err, domain.ErrIdempotencyHashMismatch)
}
