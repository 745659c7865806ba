package checkout

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/matcha-bar/internal/domain/order"
	"github.com/xenking/matcha-bar/internal/domain/ordercode"
	"github.com/xenking/matcha-bar/internal/domain/payment"
)

// Reconcile settles a hosted charge that no checkout is waiting for any
// more: the wait timed out, the customer left through the cancel page, or
// the process restarted. The held order is verified with the provider and
// released to the kitchen once the charge settled.
//
// A reference that matches no held order returns payment.ErrUnknownReference.
// A charge for an order that was cancelled in the meantime returns
// ErrOrderClosed, and a charge the provider does not confirm returns
// ErrPaymentUnverified; the order is left as it is in both cases.
func (s *Service) Reconcile(ctx context.Context, reference, transactionID string) (_ *order.Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Reconcile",
		trace.WithAttributes(attribute.String("payment.reference", reference)),
	)
	defer func() {
		if rerr != nil && !errors.Is(rerr, payment.ErrUnknownReference) {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	unknown := errors.Wrapf(payment.ErrUnknownReference, "%q", reference)
	code, ok := ordercode.CodeFromReference(reference)
	if !ok {
		return nil, unknown
	}
	o, err := s.orders.Lookup(ctx, code)
	switch {
	case errors.Is(err, order.ErrNotFound):
		return nil, unknown
	case err != nil:
		return nil, errors.Wrap(err, "lookup order")
	}
	if o.PaymentReference != reference {
		return nil, unknown
	}
	if o.PaymentStatus == order.PaymentPaid {
		return o, nil
	}
	if o.Status != order.StatusAwaitingPayment {
		return nil, errors.Wrapf(ErrOrderClosed, "order %s is %s", code, o.Status)
	}

	minor := payment.ToMinorUnits(o.Total)
	v, err := s.verifier.Verify(ctx, reference)
	if err != nil {
		return nil, errors.Wrap(err, "verify")
	}
	if err := checkSettled(v, reference, minor); err != nil {
		s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "unverified")))
		return nil, fmt.Errorf("%w: %w", ErrPaymentUnverified, err)
	}

	txID := v.TransactionID
	if txID == "" {
		txID = transactionID
	}
	paid, err := s.orders.ConfirmPayment(ctx, code, txID)
	if err != nil {
		return nil, errors.Wrap(err, "confirm payment")
	}

	s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "reconciled")))
	s.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("method", string(order.PaymentMomo))))
	s.lg.Info("Late payment reconciled",
		zap.String("code", code),
		zap.String("reference", reference),
		zap.String("transaction_id", txID),
	)
	return paid, nil
}
