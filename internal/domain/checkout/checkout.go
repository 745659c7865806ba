// Package checkout drives an order from a priced cart to a terminal order
// code, branching between cash on pickup and hosted payment.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/matcha-bar/internal/domain/cart"
	"github.com/xenking/matcha-bar/internal/domain/order"
)

// State is a stage of the checkout state machine.
type State string

const (
	StateIdle             State = "idle"
	StateValidating       State = "validating"
	StateCashConfirming   State = "cash_confirming"
	StatePaymentPending   State = "payment_pending"
	StateVerifyingPayment State = "verifying_payment"
	StateCompleted        State = "completed"
)

// Busy reports whether a checkout attempt is in flight.
func (s State) Busy() bool {
	return s != StateIdle && s != StateCompleted
}

var (
	// ErrEmptyCart is returned when checkout starts without line items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCheckoutInProgress is returned when a second attempt starts while
	// one is still in flight.
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	// ErrPaymentCancelled is returned when the customer closes the hosted
	// flow. The cart is untouched and checkout may be retried.
	ErrPaymentCancelled = errors.New("payment cancelled")
	// ErrPaymentUnverified is returned when the provider does not confirm a
	// reported success.
	ErrPaymentUnverified = errors.New("payment could not be verified")
	// ErrNotPending is returned by Await when no hosted payment is open.
	ErrNotPending = errors.New("no payment pending")
	// ErrOrderClosed is returned by Reconcile when a charge arrives for an
	// order that was already cancelled. The charge needs a manual refund.
	ErrOrderClosed = errors.New("order closed before payment settled")
)

// ValidationError reports a missing or malformed contact field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// MinPhoneLength is the shortest accepted phone number.
const MinPhoneLength = 10

// Request holds the customer's contact details and payment choice.
type Request struct {
	Phone  string
	Email  string
	Method order.PaymentMethod
	Notes  string
}

// RequiresGateway reports whether the chosen method pays through the hosted
// provider.
func (r Request) RequiresGateway() bool {
	return r.Method == order.PaymentMomo
}

// Validate checks the entry guard of the state machine.
func (r Request) Validate() error {
	switch r.Method {
	case order.PaymentCash, order.PaymentMomo:
	default:
		return &ValidationError{Field: "method", Message: fmt.Sprintf("unsupported payment method %q", r.Method)}
	}
	if len(strings.TrimSpace(r.Phone)) < MinPhoneLength {
		return &ValidationError{Field: "phone", Message: "please enter a valid phone number"}
	}
	if r.RequiresGateway() && !strings.Contains(r.Email, "@") {
		return &ValidationError{Field: "email", Message: "please enter a valid email for payment"}
	}
	return nil
}

// Cart is the read-only view of the cart checkout needs.
type Cart interface {
	Items() []cart.LineItem
	Total() decimal.Decimal
	IsEmpty() bool
}

// Result describes where a checkout attempt ended up.
type Result struct {
	State            State
	OrderCode        string
	PaymentReference string
	AuthorizationURL string
	TransactionID    string
	Total            decimal.Decimal
	AmountMinor      int64
	CompletedAt      time.Time
}

// CodeIssuer hands out order codes. An issued code is committed once its
// order is stored and released when it never is.
type CodeIssuer interface {
	Issue(ctx context.Context) (string, error)
	Commit(code string)
	Release(code string)
}

// OrderBook records checkouts. Cash orders are placed directly; hosted ones
// are held until their charge is confirmed or fails.
type OrderBook interface {
	Place(ctx context.Context, o *order.Order) error
	Hold(ctx context.Context, o *order.Order) error
	Lookup(ctx context.Context, code string) (*order.Order, error)
	ConfirmPayment(ctx context.Context, code, transactionID string) (*order.Order, error)
	FailPayment(ctx context.Context, code string) (*order.Order, error)
}
