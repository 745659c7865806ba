package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/matcha-bar/internal/domain/drink"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	byCode    map[string]*Order
	createErr error
	getCalls  int
}

func newOrderRepo(orders ...*Order) *mockOrderRepo {
	m := &mockOrderRepo{byCode: make(map[string]*Order)}
	for _, o := range orders {
		m.byCode[o.Code] = o
	}
	return m
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *o
	m.byCode[o.Code] = &cp
	return nil
}

func (m *mockOrderRepo) GetByCode(_ context.Context, code string) (*Order, error) {
	m.getCalls++
	o, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) ListByStatus(_ context.Context, statuses []Status, _ int) ([]Order, error) {
	var out []Order
	for _, o := range m.byCode {
		for _, s := range statuses {
			if o.Status == s {
				out = append(out, *o)
			}
		}
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, code string, from, to Status) (time.Time, error) {
	o, ok := m.byCode[code]
	if !ok || o.Status != from {
		return time.Time{}, ErrNotFound
	}
	o.Status = to
	return time.Unix(100, 0), nil
}

func (m *mockOrderRepo) SettlePayment(_ context.Context, code string, from, to Status, ps PaymentStatus, txID string) (time.Time, error) {
	o, ok := m.byCode[code]
	if !ok || o.Status != from {
		return time.Time{}, ErrNotFound
	}
	o.Status = to
	o.PaymentStatus = ps
	o.TransactionID = txID
	return time.Unix(200, 0), nil
}

func (m *mockOrderRepo) CodeExists(_ context.Context, code string) (bool, error) {
	_, ok := m.byCode[code]
	return ok, nil
}

func (m *mockOrderRepo) ListCodes(_ context.Context) ([]string, error) {
	var out []string
	for c := range m.byCode {
		out = append(out, c)
	}
	return out, nil
}

type mockPublisher struct {
	placed  []string
	changed []Status
	err     error
}

func (m *mockPublisher) PublishPlaced(_ context.Context, o *Order) error {
	m.placed = append(m.placed, o.Code)
	return m.err
}

func (m *mockPublisher) PublishStatusChanged(_ context.Context, _ string, s Status) error {
	m.changed = append(m.changed, s)
	return m.err
}

type mockCache struct {
	entries map[string]*Order
	deleted []string
}

func (m *mockCache) Get(_ context.Context, code string) (*Order, error) {
	o, ok := m.entries[code]
	if !ok {
		return nil, ErrCacheMiss
	}
	return o, nil
}

func (m *mockCache) Set(_ context.Context, o *Order) error {
	m.entries[o.Code] = o
	return nil
}

func (m *mockCache) Delete(_ context.Context, code string) error {
	delete(m.entries, code)
	m.deleted = append(m.deleted, code)
	return nil
}

// --- Helpers ---

func newTestOrder(code string, status Status) *Order {
	return &Order{
		Code:          code,
		Phone:         "0241234567",
		Status:        status,
		PaymentMethod: PaymentCash,
		PaymentStatus: PaymentPending,
	}
}

// --- Tests ---

func TestPlace_ComputesTotals(t *testing.T) {
	repo := newOrderRepo()
	pub := &mockPublisher{}
	svc := NewService(repo, pub, nil, zap.NewNop())

	o := newTestOrder("CALM-VIBE-204", StatusPending)
	o.Items = []Item{
		{DrinkName: "Custom Matcha", MatchaLevel: 50, Size: drink.SizeMedium, Quantity: 2, UnitPrice: decimal.NewFromInt(12)},
		{DrinkName: "Custom Matcha", MatchaLevel: 0, Size: drink.SizeLarge, HasCollagen: true, Quantity: 1, UnitPrice: decimal.NewFromInt(55)},
	}

	require.NoError(t, svc.Place(context.Background(), o))

	assert.NotEmpty(t, o.ID)
	assert.False(t, o.CreatedAt.IsZero())
	assert.True(t, decimal.NewFromInt(24).Equal(o.Items[0].TotalPrice))
	assert.True(t, decimal.NewFromInt(79).Equal(o.Total))
	assert.Equal(t, []string{"CALM-VIBE-204"}, pub.placed)
	assert.Contains(t, repo.byCode, "CALM-VIBE-204")
}

func TestPlace_CreateError(t *testing.T) {
	repo := newOrderRepo()
	repo.createErr = errors.New("db write failed")
	pub := &mockPublisher{}
	svc := NewService(repo, pub, nil, zap.NewNop())

	err := svc.Place(context.Background(), newTestOrder("CALM-VIBE-204", StatusPending))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
	assert.Empty(t, pub.placed)
}

func TestPlace_PublishErrorIsNotFatal(t *testing.T) {
	svc := NewService(newOrderRepo(), &mockPublisher{err: errors.New("broker down")}, nil, zap.NewNop())
	require.NoError(t, svc.Place(context.Background(), newTestOrder("CALM-VIBE-204", StatusPending)))
}

func TestLookup_UsesCache(t *testing.T) {
	repo := newOrderRepo(newTestOrder("CALM-VIBE-204", StatusPending))
	cache := &mockCache{entries: map[string]*Order{}}
	svc := NewService(repo, &mockPublisher{}, cache, zap.NewNop())

	o, err := svc.Lookup(context.Background(), "CALM-VIBE-204")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)

	_, err = svc.Lookup(context.Background(), "CALM-VIBE-204")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.getCalls, "second lookup served from cache")
}

func TestLookup_NotFound(t *testing.T) {
	svc := NewService(newOrderRepo(), &mockPublisher{}, nil, zap.NewNop())
	_, err := svc.Lookup(context.Background(), "NOPE-NOPE-100")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAdvance_FullWorkflow(t *testing.T) {
	repo := newOrderRepo(newTestOrder("CALM-VIBE-204", StatusPending))
	pub := &mockPublisher{}
	cache := &mockCache{entries: map[string]*Order{}}
	svc := NewService(repo, pub, cache, zap.NewNop())
	ctx := context.Background()

	for _, want := range []Status{StatusMixing, StatusReady, StatusCompleted} {
		o, err := svc.Advance(ctx, "CALM-VIBE-204")
		require.NoError(t, err)
		assert.Equal(t, want, o.Status)
	}
	assert.Equal(t, []Status{StatusMixing, StatusReady, StatusCompleted}, pub.changed)
	assert.Len(t, cache.deleted, 3)

	_, err := svc.Advance(ctx, "CALM-VIBE-204")
	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, StatusCompleted, itErr.From)
}

func TestCancel(t *testing.T) {
	repo := newOrderRepo(
		newTestOrder("CALM-VIBE-204", StatusMixing),
		newTestOrder("BOLD-JOY-777", StatusCompleted),
	)
	svc := NewService(repo, &mockPublisher{}, nil, zap.NewNop())

	o, err := svc.Cancel(context.Background(), "CALM-VIBE-204")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)

	_, err = svc.Cancel(context.Background(), "BOLD-JOY-777")
	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
}

func TestBoard_DefaultsToActive(t *testing.T) {
	repo := newOrderRepo(
		newTestOrder("A-A-100", StatusPending),
		newTestOrder("B-B-100", StatusReady),
		newTestOrder("C-C-100", StatusCompleted),
	)
	svc := NewService(repo, &mockPublisher{}, nil, zap.NewNop())

	orders, err := svc.Board(context.Background(), nil, 50)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusMixing, true},
		{StatusMixing, StatusReady, true},
		{StatusReady, StatusCompleted, true},
		{StatusPending, StatusReady, false},
		{StatusReady, StatusMixing, false},
		{StatusPending, StatusCancelled, true},
		{StatusReady, StatusCancelled, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusCancelled, false},
		{StatusAwaitingPayment, StatusPending, true},
		{StatusAwaitingPayment, StatusCancelled, true},
		{StatusAwaitingPayment, StatusMixing, false},
		{StatusPending, StatusAwaitingPayment, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.True(t, StatusCompleted.IsTerminal())
	assert.False(t, StatusAwaitingPayment.IsTerminal())
	assert.True(t, StatusAwaitingPayment.Valid())
	assert.False(t, Status("brewing").Valid())

	_, ok := StatusAwaitingPayment.Next()
	assert.False(t, ok, "the kitchen cannot advance an unpaid order")
}

func heldOrder(code string) *Order {
	o := newTestOrder(code, StatusPending)
	o.PaymentMethod = PaymentMomo
	o.PaymentReference = "JM-" + code + "-1700000000000"
	o.Items = []Item{{DrinkName: "Custom Matcha", Size: drink.SizeMedium, Quantity: 1, UnitPrice: decimal.NewFromInt(12)}}
	return o
}

func TestHold_StaysOffTheKitchenFeed(t *testing.T) {
	repo := newOrderRepo()
	pub := &mockPublisher{}
	svc := NewService(repo, pub, nil, zap.NewNop())

	o := heldOrder("CALM-VIBE-204")
	require.NoError(t, svc.Hold(context.Background(), o))

	assert.Equal(t, StatusAwaitingPayment, repo.byCode["CALM-VIBE-204"].Status)
	assert.Equal(t, PaymentPending, repo.byCode["CALM-VIBE-204"].PaymentStatus)
	assert.True(t, decimal.NewFromInt(12).Equal(o.Total))
	assert.Empty(t, pub.placed)

	board, err := svc.Board(context.Background(), nil, 50)
	require.NoError(t, err)
	assert.Empty(t, board)
}

func TestConfirmPayment(t *testing.T) {
	repo := newOrderRepo()
	pub := &mockPublisher{}
	cache := &mockCache{entries: map[string]*Order{}}
	svc := NewService(repo, pub, cache, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, svc.Hold(ctx, heldOrder("CALM-VIBE-204")))

	// A lookup while the charge is pending caches the held order.
	_, err := svc.Lookup(ctx, "CALM-VIBE-204")
	require.NoError(t, err)

	o, err := svc.ConfirmPayment(ctx, "CALM-VIBE-204", "txn-42")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "txn-42", o.TransactionID)
	assert.Equal(t, []string{"CALM-VIBE-204"}, pub.placed)
	assert.Equal(t, []string{"CALM-VIBE-204"}, cache.deleted)

	again, err := svc.ConfirmPayment(ctx, "CALM-VIBE-204", "txn-43")
	require.NoError(t, err, "confirming twice is harmless")
	assert.Equal(t, "txn-42", again.TransactionID)
	assert.Len(t, pub.placed, 1)

	_, err = svc.ConfirmPayment(ctx, "NOPE-NOPE-100", "txn-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmPayment_ClosedOrder(t *testing.T) {
	repo := newOrderRepo()
	svc := NewService(repo, &mockPublisher{}, nil, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, svc.Hold(ctx, heldOrder("CALM-VIBE-204")))

	_, err := svc.Cancel(ctx, "CALM-VIBE-204")
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(ctx, "CALM-VIBE-204", "txn-42")
	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, StatusCancelled, itErr.From)
}

func TestFailPayment(t *testing.T) {
	repo := newOrderRepo()
	pub := &mockPublisher{}
	svc := NewService(repo, pub, nil, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, svc.Hold(ctx, heldOrder("CALM-VIBE-204")))

	o, err := svc.FailPayment(ctx, "CALM-VIBE-204")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, PaymentFailed, o.PaymentStatus)
	assert.Empty(t, pub.placed)

	_, err = svc.FailPayment(ctx, "CALM-VIBE-204")
	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
}
