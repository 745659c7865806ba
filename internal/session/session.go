// Package session keeps the per-customer state of the storefront: one drink
// builder, one cart and one checkout state machine per session.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/matcha-bar/internal/domain/cart"
	"github.com/xenking/matcha-bar/internal/domain/checkout"
	"github.com/xenking/matcha-bar/internal/domain/drink"
	"github.com/xenking/matcha-bar/internal/domain/menu"
	"github.com/xenking/matcha-bar/internal/domain/pricing"
)

// ErrItemNotFound is returned when a cart line id is unknown.
var ErrItemNotFound = errors.New("cart item not found")

// Session is one customer's storefront state. All methods are safe for
// concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mgr *Manager

	mu       sync.Mutex
	builder  *drink.Builder
	cart     *cart.Cart
	checkout *checkout.Orchestrator
	lastSeen time.Time
}

// View is a consistent snapshot of a session.
type View struct {
	ID            string
	Customization drink.Customization
	Preset        drink.Preset
	UnitPrice     decimal.Decimal
	Items         []cart.LineItem
	Total         decimal.Decimal
	Checkout      checkout.Snapshot
}

// View returns the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.builder.Current()
	price, _ := s.mgr.prices.Price(c.Size, c.Extras)
	return View{
		ID:            s.ID,
		Customization: c,
		Preset:        drink.NearestPreset(c.MatchaLevel),
		UnitPrice:     price,
		Items:         s.cart.Items(),
		Total:         s.cart.Total(),
		Checkout:      s.checkout.Snapshot(),
	}
}

// DrinkUpdate is a partial builder change; nil fields are left alone.
type DrinkUpdate struct {
	MatchaLevel *int
	Size        *drink.Size
	Ice         *drink.Ice
}

// UpdateDrink applies u to the builder.
func (s *Session) UpdateDrink(u DrinkUpdate) drink.Customization {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.MatchaLevel != nil {
		s.builder.SetMatchaLevel(*u.MatchaLevel)
	}
	if u.Size != nil {
		s.builder.SetSize(*u.Size)
	}
	if u.Ice != nil {
		s.builder.SetIce(*u.Ice)
	}
	return s.builder.Current()
}

// AddExtra adds a priced add-on to the drink being built.
func (s *Session) AddExtra(name string) (drink.Customization, error) {
	if !s.mgr.prices.IsAddOn(name) {
		return drink.Customization{}, &pricing.UnknownAddOnError{Name: name}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builder.AddExtra(name), nil
}

// RemoveExtra drops an add-on from the drink being built.
func (s *Session) RemoveExtra(name string) drink.Customization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builder.RemoveExtra(name)
}

// ResetDrink restores the default customization.
func (s *Session) ResetDrink() drink.Customization {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builder.Reset()
}

// AddToCart prices the current drink with its extras plus addOns and adds it
// as a new line. The builder is left unchanged.
func (s *Session) AddToCart(addOns []string, quantity int) (cart.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return cart.LineItem{}, err
	}

	snapshot := s.builder.Current()
	for _, a := range addOns {
		if !slices.Contains(snapshot.Extras, a) {
			snapshot.Extras = append(snapshot.Extras, a)
		}
	}
	price, err := s.mgr.prices.Price(snapshot.Size, snapshot.Extras)
	if err != nil {
		return cart.LineItem{}, err
	}
	return s.cart.Add(menu.CustomDrink, snapshot, price, quantity), nil
}

// UpdateQuantity sets the quantity of line id.
func (s *Session) UpdateQuantity(id string, quantity int) (cart.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return cart.LineItem{}, err
	}
	if !s.cart.UpdateQuantity(id, quantity) {
		return cart.LineItem{}, ErrItemNotFound
	}
	li, _ := s.cart.Get(id)
	return li, nil
}

// RemoveItem deletes line id. Unknown ids are ignored.
func (s *Session) RemoveItem(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return err
	}
	s.cart.Remove(id)
	return nil
}

// ClearCart empties the cart.
func (s *Session) ClearCart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editable(); err != nil {
		return err
	}
	s.cart.Clear()
	return nil
}

// editable rejects cart changes while a checkout attempt is in flight.
// Callers hold s.mu.
func (s *Session) editable() error {
	if s.checkout.State().Busy() {
		return checkout.ErrCheckoutInProgress
	}
	return nil
}

// Checkout submits the cart. A cash checkout completes before returning; a
// hosted checkout returns PaymentPending and is awaited in the background.
// On completion the cart is cleared and the builder reset.
func (s *Session) Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error) {
	s.mu.Lock()
	snapshot := cart.New()
	snapshot.Restore(s.cart.Items())
	s.mu.Unlock()

	res, err := s.checkout.Submit(ctx, snapshot, req)
	if err != nil {
		return nil, err
	}

	switch res.State {
	case checkout.StateCompleted:
		s.finish()
	case checkout.StatePaymentPending:
		s.mgr.await(s)
	}
	return res, nil
}

// CheckoutStatus returns the state of the current or last attempt.
func (s *Session) CheckoutStatus() checkout.Snapshot {
	return s.checkout.Snapshot()
}

func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart.Clear()
	s.builder.Reset()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) logger() *zap.Logger {
	return s.mgr.lg.With(zap.String("session", s.ID))
}
