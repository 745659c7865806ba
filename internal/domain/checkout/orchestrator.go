package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/matcha-bar/internal/domain/cart"
	"github.com/xenking/matcha-bar/internal/domain/order"
	"github.com/xenking/matcha-bar/internal/domain/ordercode"
	"github.com/xenking/matcha-bar/internal/domain/payment"
)

// Abandoner is implemented by gateways that can drop an open flow whose
// waiter has gone away.
type Abandoner interface {
	Abandon(reference string)
}

// Snapshot is a point-in-time view of an Orchestrator.
type Snapshot struct {
	State  State
	Result *Result
	Err    error
}

// attempt is an open hosted payment.
type attempt struct {
	req       Request
	items     []cart.LineItem
	total     decimal.Decimal
	minor     int64
	code      string
	reference string
	flow      *payment.Flow
	awaiting  bool
}

// Orchestrator is the checkout state machine of a single session. It is safe
// for concurrent use; at most one attempt is in flight at a time.
type Orchestrator struct {
	svc *Service

	mu      sync.Mutex
	state   State
	pending *attempt
	last    *Result
	lastErr error
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot returns the current state with the last result or failure.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Snapshot{State: o.state, Err: o.lastErr}
	if o.last != nil {
		r := *o.last
		s.Result = &r
	}
	if o.state == StatePaymentPending && o.pending != nil {
		s.Result = o.pendingResult(o.pending)
	}
	return s
}

// Submit starts a checkout attempt for c.
//
// Cash attempts run to completion and return a Completed result. Hosted
// attempts return in PaymentPending with the authorization URL; call Await
// for the outcome. The cart is never modified.
func (o *Orchestrator) Submit(ctx context.Context, c Cart, req Request) (_ *Result, rerr error) {
	ctx, span := o.svc.tracer.Start(ctx, "checkout.Submit",
		trace.WithAttributes(attribute.String("payment.method", string(req.Method))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	o.mu.Lock()
	if o.state.Busy() {
		o.mu.Unlock()
		return nil, ErrCheckoutInProgress
	}
	if c.IsEmpty() {
		o.mu.Unlock()
		return nil, ErrEmptyCart
	}
	o.state = StateValidating
	o.last, o.lastErr = nil, nil
	o.mu.Unlock()

	if err := req.Validate(); err != nil {
		o.settle(StateIdle, nil, err)
		return nil, err
	}

	items := c.Items()
	total := c.Total()
	o.svc.submitted.Add(ctx, 1, metric.WithAttributes(attribute.String("method", string(req.Method))))

	if req.RequiresGateway() {
		return o.openHosted(ctx, req, items, total)
	}
	return o.payCash(ctx, req, items, total)
}

func (o *Orchestrator) payCash(ctx context.Context, req Request, items []cart.LineItem, total decimal.Decimal) (*Result, error) {
	o.setState(StateCashConfirming)

	code, err := o.svc.codes.Issue(ctx)
	if err != nil {
		err = errors.Wrap(err, "issue order code")
		o.settle(StateIdle, nil, err)
		return nil, err
	}
	if err := o.svc.sleep(ctx, o.svc.cfg.CashDelay); err != nil {
		o.svc.codes.Release(code)
		o.settle(StateIdle, nil, err)
		return nil, err
	}

	ord := &order.Order{
		Code:          code,
		Phone:         req.Phone,
		Email:         req.Email,
		Status:        order.StatusPending,
		PaymentMethod: order.PaymentCash,
		PaymentStatus: order.PaymentPending,
		Notes:         req.Notes,
		Items:         toOrderItems(items),
	}
	if err := o.svc.orders.Place(ctx, ord); err != nil {
		o.svc.codes.Release(code)
		err = errors.Wrap(err, "place order")
		o.settle(StateIdle, nil, err)
		return nil, err
	}
	o.svc.codes.Commit(code)

	res := &Result{
		State:       StateCompleted,
		OrderCode:   code,
		Total:       total,
		CompletedAt: o.svc.now(),
	}
	o.svc.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("method", string(order.PaymentCash))))
	o.svc.lg.Info("Cash checkout completed",
		zap.String("code", code),
		zap.String("total", total.StringFixed(2)),
	)
	o.settle(StateCompleted, res, nil)
	return res, nil
}

func (o *Orchestrator) openHosted(ctx context.Context, req Request, items []cart.LineItem, total decimal.Decimal) (*Result, error) {
	if err := o.svc.gateway.Ready(ctx); err != nil {
		if !errors.Is(err, payment.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %w", payment.ErrGatewayUnavailable, err)
		}
		o.settle(StateIdle, nil, err)
		return nil, err
	}

	code, err := o.svc.codes.Issue(ctx)
	if err != nil {
		err = errors.Wrap(err, "issue order code")
		o.settle(StateIdle, nil, err)
		return nil, err
	}

	a := &attempt{
		req:       req,
		items:     items,
		total:     total,
		minor:     payment.ToMinorUnits(total),
		code:      code,
		reference: ordercode.PaymentReference(code, o.svc.now()),
	}
	flow, err := o.svc.gateway.Open(ctx, payment.Request{
		Reference:   a.reference,
		Email:       req.Email,
		AmountMinor: a.minor,
		Currency:    o.svc.cfg.Currency,
		Metadata:    payment.NewMetadata(code, req.Phone),
	})
	if err != nil {
		o.svc.codes.Release(code)
		if !errors.Is(err, payment.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %w", payment.ErrGatewayUnavailable, err)
		}
		o.settle(StateIdle, nil, err)
		return nil, err
	}
	a.flow = flow

	// The held order lets a charge that lands after this attempt is gone
	// still be reconciled.
	held := &order.Order{
		Code:             code,
		Phone:            req.Phone,
		Email:            req.Email,
		PaymentMethod:    order.PaymentMomo,
		PaymentReference: a.reference,
		Total:            total,
		Notes:            req.Notes,
		Items:            toOrderItems(items),
	}
	if err := o.svc.orders.Hold(ctx, held); err != nil {
		o.abandon(a)
		o.svc.codes.Release(code)
		err = errors.Wrap(err, "hold order")
		o.settle(StateIdle, nil, err)
		return nil, err
	}
	o.svc.codes.Commit(code)

	o.mu.Lock()
	o.state = StatePaymentPending
	o.pending = a
	res := o.pendingResult(a)
	o.mu.Unlock()

	o.svc.lg.Info("Hosted payment opened",
		zap.String("code", code),
		zap.String("reference", a.reference),
		zap.Int64("amount_minor", a.minor),
	)
	return res, nil
}

// Await blocks until the open hosted payment resolves, then verifies it and
// releases the held order to the kitchen. A cancelled flow returns
// ErrPaymentCancelled and leaves the machine Idle so checkout can be retried.
// If ctx ends first the flow is abandoned and ctx's error is returned. In
// both cases the held order is kept for Service.Reconcile.
func (o *Orchestrator) Await(ctx context.Context) (_ *Result, rerr error) {
	o.mu.Lock()
	a := o.pending
	if o.state != StatePaymentPending || a == nil {
		o.mu.Unlock()
		return nil, ErrNotPending
	}
	if a.awaiting {
		o.mu.Unlock()
		return nil, ErrCheckoutInProgress
	}
	a.awaiting = true
	o.mu.Unlock()

	ctx, span := o.svc.tracer.Start(ctx, "checkout.Await",
		trace.WithAttributes(attribute.String("payment.reference", a.reference)),
	)
	defer func() {
		if rerr != nil && !errors.Is(rerr, ErrPaymentCancelled) {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	var out payment.Outcome
	select {
	case <-ctx.Done():
		o.abandon(a)
		o.recordOutcome(ctx, "abandoned")
		o.settle(StateIdle, nil, ctx.Err())
		return nil, ctx.Err()
	case out = <-a.flow.Done():
	}

	if out.Cancelled() {
		o.recordOutcome(ctx, "cancelled")
		o.svc.lg.Info("Hosted payment cancelled", zap.String("reference", a.reference))
		o.settle(StateIdle, nil, ErrPaymentCancelled)
		return nil, ErrPaymentCancelled
	}

	o.setState(StateVerifyingPayment)
	v, err := o.verify(ctx, a, out.Success)
	if err != nil {
		o.recordOutcome(ctx, "unverified")
		o.svc.lg.Warn("Hosted payment not verified",
			zap.String("reference", a.reference),
			zap.Error(err),
		)
		if errors.Is(err, errNotSettled) {
			o.failHeld(ctx, a)
		}
		err = fmt.Errorf("%w: %w", ErrPaymentUnverified, err)
		o.settle(StateIdle, nil, err)
		return nil, err
	}
	o.recordOutcome(ctx, "success")

	if _, err := o.svc.orders.ConfirmPayment(ctx, a.code, v.TransactionID); err != nil {
		// The charge went through; the held order can still be reconciled.
		o.svc.lg.Error("Confirm paid order",
			zap.String("code", a.code),
			zap.String("reference", a.reference),
			zap.Error(err),
		)
		err = errors.Wrap(err, "confirm payment")
		o.settle(StateIdle, nil, err)
		return nil, err
	}

	res := &Result{
		State:            StateCompleted,
		OrderCode:        a.code,
		PaymentReference: a.reference,
		TransactionID:    v.TransactionID,
		Total:            a.total,
		AmountMinor:      a.minor,
		CompletedAt:      o.svc.now(),
	}
	o.svc.completed.Add(ctx, 1, metric.WithAttributes(attribute.String("method", string(order.PaymentMomo))))
	o.svc.lg.Info("Hosted checkout completed",
		zap.String("code", a.code),
		zap.String("reference", a.reference),
	)
	o.settle(StateCompleted, res, nil)
	return res, nil
}

// verify confirms a reported success with the provider.
func (o *Orchestrator) verify(ctx context.Context, a *attempt, s *payment.Success) (*payment.Verification, error) {
	if s.Reference != a.reference {
		return nil, errors.Errorf("reference mismatch: got %q", s.Reference)
	}
	v, err := o.svc.verifier.Verify(ctx, a.reference)
	if err != nil {
		return nil, errors.Wrap(err, "verify")
	}
	if err := checkSettled(v, a.reference, a.minor); err != nil {
		return nil, err
	}
	if v.TransactionID == "" {
		v.TransactionID = s.TransactionID
	}
	return v, nil
}

// errNotSettled marks a verification the provider answered negatively, as
// opposed to one that could not be made.
var errNotSettled = errors.New("charge not settled")

func checkSettled(v *payment.Verification, reference string, minor int64) error {
	if v.Reference != "" && v.Reference != reference {
		return errors.Wrapf(errNotSettled, "verified reference %q", v.Reference)
	}
	if !v.Settled(minor) {
		return errors.Wrapf(errNotSettled, "status %q amount %d want %d", v.Status, v.AmountMinor, minor)
	}
	return nil
}

// failHeld cancels the held order of a rejected charge. Errors are logged
// only.
func (o *Orchestrator) failHeld(ctx context.Context, a *attempt) {
	if _, err := o.svc.orders.FailPayment(ctx, a.code); err != nil {
		o.svc.lg.Error("Record failed payment",
			zap.String("code", a.code),
			zap.String("reference", a.reference),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) abandon(a *attempt) {
	if ab, ok := o.svc.gateway.(Abandoner); ok {
		ab.Abandon(a.reference)
	}
}

func (o *Orchestrator) recordOutcome(ctx context.Context, outcome string) {
	o.svc.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (o *Orchestrator) pendingResult(a *attempt) *Result {
	return &Result{
		State:            StatePaymentPending,
		OrderCode:        a.code,
		PaymentReference: a.reference,
		AuthorizationURL: a.flow.AuthorizationURL,
		Total:            a.total,
		AmountMinor:      a.minor,
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) settle(s State, res *Result, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
	o.pending = nil
	o.last = res
	o.lastErr = err
}
