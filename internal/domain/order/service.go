package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service places orders and drives the kitchen workflow.
type Service struct {
	orders    Repository
	publisher Publisher
	cache     Cache
	lg        *zap.Logger
	now       func() time.Time
}

// NewService creates an order Service. cache may be nil.
func NewService(orders Repository, publisher Publisher, cache Cache, lg *zap.Logger) *Service {
	return &Service{
		orders:    orders,
		publisher: publisher,
		cache:     cache,
		lg:        lg,
		now:       time.Now,
	}
}

// Place persists a new order and hands it to the kitchen feed. A failed
// publish is logged: the board reads from the store, so the order is still
// visible.
func (s *Service) Place(ctx context.Context, o *Order) error {
	if err := s.create(ctx, o); err != nil {
		return err
	}
	s.publishPlaced(ctx, o)
	return nil
}

// Hold persists an order whose hosted payment has not settled yet. It is
// kept off the kitchen board and feed until ConfirmPayment.
func (s *Service) Hold(ctx context.Context, o *Order) error {
	o.Status = StatusAwaitingPayment
	o.PaymentStatus = PaymentPending
	return s.create(ctx, o)
}

// ConfirmPayment marks a held order paid and releases it to the kitchen.
// Confirming an order that is already paid returns it unchanged, so the
// checkout and a late provider notification may race safely.
func (s *Service) ConfirmPayment(ctx context.Context, code, transactionID string) (*Order, error) {
	o, err := s.orders.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == PaymentPaid {
		return o, nil
	}
	if o.Status != StatusAwaitingPayment {
		return nil, &InvalidTransitionError{Code: code, From: o.Status, To: StatusPending}
	}

	updatedAt, err := s.orders.SettlePayment(ctx, code, StatusAwaitingPayment, StatusPending, PaymentPaid, transactionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, errors.Wrap(err, "settle payment")
		}
		cur, gerr := s.orders.GetByCode(ctx, code)
		if gerr == nil && cur.PaymentStatus == PaymentPaid {
			return cur, nil
		}
		return nil, &InvalidTransitionError{Code: code, From: o.Status, To: StatusPending}
	}
	o.Status = StatusPending
	o.PaymentStatus = PaymentPaid
	o.TransactionID = transactionID
	o.UpdatedAt = updatedAt

	s.forget(ctx, code)
	s.publishPlaced(ctx, o)
	s.lg.Info("Order payment confirmed",
		zap.String("code", code),
		zap.String("transaction_id", transactionID),
	)
	return o, nil
}

// FailPayment cancels a held order whose charge could not be confirmed.
func (s *Service) FailPayment(ctx context.Context, code string) (*Order, error) {
	o, err := s.orders.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusAwaitingPayment {
		return nil, &InvalidTransitionError{Code: code, From: o.Status, To: StatusCancelled}
	}
	updatedAt, err := s.orders.SettlePayment(ctx, code, StatusAwaitingPayment, StatusCancelled, PaymentFailed, o.TransactionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &InvalidTransitionError{Code: code, From: o.Status, To: StatusCancelled}
		}
		return nil, errors.Wrap(err, "settle payment")
	}
	o.Status = StatusCancelled
	o.PaymentStatus = PaymentFailed
	o.UpdatedAt = updatedAt

	s.forget(ctx, code)
	s.lg.Info("Order payment failed", zap.String("code", code))
	return o, nil
}

func (s *Service) create(ctx context.Context, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := s.now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	total := decimal.Zero
	for i := range o.Items {
		it := &o.Items[i]
		it.TotalPrice = it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(it.TotalPrice)
	}
	o.Total = total.Round(2)

	if err := s.orders.Create(ctx, o); err != nil {
		return errors.Wrap(err, "create order")
	}
	return nil
}

func (s *Service) publishPlaced(ctx context.Context, o *Order) {
	if err := s.publisher.PublishPlaced(ctx, o); err != nil {
		s.lg.Warn("Publish placed order",
			zap.String("code", o.Code),
			zap.Error(err),
		)
	}
}

func (s *Service) forget(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, code); err != nil {
		s.lg.Warn("Order cache delete", zap.String("code", code), zap.Error(err))
	}
}

// Lookup returns the order with code, consulting the cache first.
func (s *Service) Lookup(ctx context.Context, code string) (*Order, error) {
	if s.cache != nil {
		o, err := s.cache.Get(ctx, code)
		switch {
		case err == nil:
			return o, nil
		case !errors.Is(err, ErrCacheMiss):
			s.lg.Warn("Order cache get", zap.String("code", code), zap.Error(err))
		}
	}

	o, err := s.orders.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, o); err != nil {
			s.lg.Warn("Order cache set", zap.String("code", code), zap.Error(err))
		}
	}
	return o, nil
}

// Board lists orders in the given statuses, oldest first. An empty filter
// means every active status.
func (s *Service) Board(ctx context.Context, statuses []Status, limit int) ([]Order, error) {
	if len(statuses) == 0 {
		statuses = ActiveStatuses
	}
	orders, err := s.orders.ListByStatus(ctx, statuses, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Advance moves the order to its next kitchen stage.
func (s *Service) Advance(ctx context.Context, code string) (*Order, error) {
	o, err := s.orders.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	to, ok := o.Status.Next()
	if !ok {
		return nil, &InvalidTransitionError{Code: code, From: o.Status, To: StatusCompleted}
	}
	return s.transition(ctx, o, to)
}

// Cancel cancels a non-terminal order.
func (s *Service) Cancel(ctx context.Context, code string) (*Order, error) {
	o, err := s.orders.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, o, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, o *Order, to Status) (*Order, error) {
	if !o.Status.CanTransitionTo(to) {
		return nil, &InvalidTransitionError{Code: o.Code, From: o.Status, To: to}
	}

	updatedAt, err := s.orders.UpdateStatus(ctx, o.Code, o.Status, to)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Someone else moved the order first.
			return nil, &InvalidTransitionError{Code: o.Code, From: o.Status, To: to}
		}
		return nil, errors.Wrap(err, "update status")
	}
	o.Status = to
	o.UpdatedAt = updatedAt

	s.forget(ctx, o.Code)
	if err := s.publisher.PublishStatusChanged(ctx, o.Code, to); err != nil {
		s.lg.Warn("Publish status change", zap.String("code", o.Code), zap.Error(err))
	}

	s.lg.Info("Order status changed",
		zap.String("code", o.Code),
		zap.String("status", string(to)),
	)
	return o, nil
}
