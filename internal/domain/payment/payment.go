// Package payment defines the contract between checkout and a hosted payment
// provider: opening a flow, receiving its single outcome, and verifying it.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrGatewayUnavailable is returned when the provider cannot start a flow.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrUnknownReference is returned when an outcome arrives for a reference
	// with no open flow.
	ErrUnknownReference = errors.New("unknown payment reference")
)

// StatusSuccess is the provider status of a settled charge.
const StatusSuccess = "success"

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit amount to minor units, rounding half
// away from zero. 15.5 becomes 1550 and 15.555 becomes 1556.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts minor units back to a major-unit amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// CustomField is a labelled value shown on the provider's receipt.
type CustomField struct {
	DisplayName  string
	VariableName string
	Value        string
}

// Metadata identifies the order behind a payment.
type Metadata struct {
	OrderCode string
	Phone     string
	Fields    []CustomField
}

// NewMetadata returns metadata carrying the order code and phone number, both
// also exposed as receipt fields.
func NewMetadata(orderCode, phone string) Metadata {
	return Metadata{
		OrderCode: orderCode,
		Phone:     phone,
		Fields: []CustomField{
			{DisplayName: "Order ID", VariableName: "order_id", Value: orderCode},
			{DisplayName: "Phone Number", VariableName: "phone", Value: phone},
		},
	}
}

// Request opens a hosted payment flow.
type Request struct {
	Reference   string
	Email       string
	AmountMinor int64
	Currency    string
	Metadata    Metadata
}

// Success is the payload of a completed hosted flow as reported by the
// client-facing side of the provider. It is advisory until verified.
type Success struct {
	Reference     string
	Status        string
	TransactionID string
}

// Outcome is the single resolution of a flow: a success, or a cancellation
// when Success is nil.
type Outcome struct {
	Success *Success
}

// Cancelled reports whether the customer closed the flow without paying.
func (o Outcome) Cancelled() bool {
	return o.Success == nil
}

// Succeeded builds a success outcome.
func Succeeded(s Success) Outcome {
	return Outcome{Success: &s}
}

// Cancelled is the outcome of a closed flow.
var Cancelled = Outcome{}

// Flow is an opened hosted payment. Done yields exactly one Outcome.
type Flow struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string

	done <-chan Outcome
}

// NewFlow wraps an outcome channel.
func NewFlow(reference, authURL, accessCode string, done <-chan Outcome) *Flow {
	return &Flow{
		Reference:        reference,
		AuthorizationURL: authURL,
		AccessCode:       accessCode,
		done:             done,
	}
}

// Done returns the channel delivering the flow's outcome.
func (f *Flow) Done() <-chan Outcome {
	return f.done
}

// Gateway opens hosted payment flows.
type Gateway interface {
	// Ready reports whether flows can be opened right now.
	Ready(ctx context.Context) error
	Open(ctx context.Context, req Request) (*Flow, error)
}

// Verification is the provider's server-side record of a charge.
type Verification struct {
	Reference     string
	Status        string
	AmountMinor   int64
	Currency      string
	TransactionID string
	PaidAt        time.Time
}

// Settled reports whether the provider confirms the charge for the expected
// amount.
func (v *Verification) Settled(expectedMinor int64) bool {
	return v.Status == StatusSuccess && v.AmountMinor == expectedMinor
}

// Verifier confirms a charge directly with the provider.
type Verifier interface {
	Verify(ctx context.Context, reference string) (*Verification, error)
}
