package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/matcha-bar/internal/domain/cart"
	"github.com/xenking/matcha-bar/internal/domain/order"
	"github.com/xenking/matcha-bar/internal/domain/payment"
	"github.com/xenking/matcha-bar/internal/domain/pricing"
)

// Config tunes checkout behaviour.
type Config struct {
	// CashDelay models submitting a cash order to the kitchen queue.
	CashDelay time.Duration
	// Currency is the ISO code sent to the payment provider.
	Currency string
}

// Service holds the collaborators shared by every session's Orchestrator.
type Service struct {
	cfg      Config
	codes    CodeIssuer
	gateway  payment.Gateway
	verifier payment.Verifier
	orders   OrderBook
	lg       *zap.Logger
	tracer   trace.Tracer

	submitted metric.Int64Counter
	completed metric.Int64Counter
	outcomes  metric.Int64Counter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService wires checkout collaborators.
func NewService(
	cfg Config,
	codes CodeIssuer,
	gateway payment.Gateway,
	verifier payment.Verifier,
	orders OrderBook,
	lg *zap.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	if cfg.Currency == "" {
		cfg.Currency = "GHS"
	}
	meter := mp.Meter("matcha-bar/checkout")

	submitted, err := meter.Int64Counter("checkout.submitted",
		metric.WithDescription("Checkout attempts that passed validation"))
	if err != nil {
		return nil, errors.Wrap(err, "create submitted counter")
	}
	completed, err := meter.Int64Counter("checkout.completed",
		metric.WithDescription("Checkouts that produced an order"))
	if err != nil {
		return nil, errors.Wrap(err, "create completed counter")
	}
	outcomes, err := meter.Int64Counter("payment.outcomes",
		metric.WithDescription("Hosted payment resolutions by outcome"))
	if err != nil {
		return nil, errors.Wrap(err, "create outcomes counter")
	}

	return &Service{
		cfg:       cfg,
		codes:     codes,
		gateway:   gateway,
		verifier:  verifier,
		orders:    orders,
		lg:        lg,
		tracer:    tp.Tracer("matcha-bar/checkout"),
		submitted: submitted,
		completed: completed,
		outcomes:  outcomes,
		now:       time.Now,
		sleep:     sleepCtx,
	}, nil
}

// NewOrchestrator returns an idle state machine for one session.
func (s *Service) NewOrchestrator() *Orchestrator {
	return &Orchestrator{svc: s, state: StateIdle}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// toOrderItems converts cart lines to order rows.
func toOrderItems(items []cart.LineItem) []order.Item {
	out := make([]order.Item, len(items))
	for i, li := range items {
		c := li.Customization
		out[i] = order.Item{
			DrinkName:   li.Name,
			MatchaLevel: c.MatchaLevel,
			Size:        c.Size,
			Ice:         c.Ice,
			HasCollagen: c.HasExtra(pricing.CollagenBoost),
			Extras:      c.Extras,
			Quantity:    li.Quantity,
			UnitPrice:   li.Price,
		}
	}
	return out
}
