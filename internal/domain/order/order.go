package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/matcha-bar/internal/domain/drink"
)

// ErrNotFound is returned when no order has the requested code.
var ErrNotFound = errors.New("order not found")

// Status is the kitchen workflow stage of an order.
type Status string

const (
	// StatusAwaitingPayment holds a hosted order until its charge is
	// confirmed. Such orders are not shown to the kitchen.
	StatusAwaitingPayment Status = "awaiting_payment"

	StatusPending   Status = "pending"
	StatusMixing    Status = "mixing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	// PaymentMomo is mobile money through the hosted provider.
	PaymentMomo PaymentMethod = "momo"
	// PaymentCash is paid at pickup.
	PaymentCash PaymentMethod = "cash"
)

// PaymentStatus tracks settlement of an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Order is a placed customer order keyed by its human-readable code.
type Order struct {
	ID               string
	Code             string
	Phone            string
	Email            string
	Status           Status
	PaymentMethod    PaymentMethod
	PaymentStatus    PaymentStatus
	PaymentReference string
	TransactionID    string
	Total            decimal.Decimal
	Notes            string
	Items            []Item
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Item is one ordered drink line.
type Item struct {
	DrinkName   string
	MatchaLevel int
	Size        drink.Size
	Ice         drink.Ice
	HasCollagen bool
	Extras      []string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByCode(ctx context.Context, code string) (*Order, error)
	ListByStatus(ctx context.Context, statuses []Status, limit int) ([]Order, error)
	// UpdateStatus moves an order from one status to another and fails with
	// ErrNotFound when the order is not currently in from.
	UpdateStatus(ctx context.Context, code string, from, to Status) (time.Time, error)
	// SettlePayment is UpdateStatus that also records the payment outcome.
	SettlePayment(ctx context.Context, code string, from, to Status, payment PaymentStatus, transactionID string) (time.Time, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	ListCodes(ctx context.Context) ([]string, error)
}

// Publisher notifies the kitchen about order events.
type Publisher interface {
	PublishPlaced(ctx context.Context, o *Order) error
	PublishStatusChanged(ctx context.Context, code string, status Status) error
}

// Cache holds recently looked-up orders.
type Cache interface {
	Get(ctx context.Context, code string) (*Order, error)
	Set(ctx context.Context, o *Order) error
	Delete(ctx context.Context, code string) error
}

// ErrCacheMiss is returned by Cache.Get when the order is not cached.
var ErrCacheMiss = errors.New("order not cached")
