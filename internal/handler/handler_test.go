package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/matcha-bar/internal/domain/checkout"
	"github.com/xenking/matcha-bar/internal/domain/drink"
	"github.com/xenking/matcha-bar/internal/domain/menu"
	"github.com/xenking/matcha-bar/internal/domain/order"
	"github.com/xenking/matcha-bar/internal/domain/payment"
	"github.com/xenking/matcha-bar/internal/domain/pricing"
	"github.com/xenking/matcha-bar/internal/paystack"
	"github.com/xenking/matcha-bar/internal/session"
)

const testSecret = "sk_test_secret"

// --- Mock implementations ---

type seqIssuer struct {
	mu sync.Mutex
	n  int
}

func (s *seqIssuer) Issue(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return []string{"CALM-VIBE-204", "BOLD-JOY-777", "PURE-GLOW-123"}[s.n-1], nil
}

func (s *seqIssuer) Commit(string) {}

func (s *seqIssuer) Release(string) {}

type hubGateway struct {
	hub *payment.Hub
}

func (g hubGateway) Ready(context.Context) error { return nil }

func (g hubGateway) Open(_ context.Context, req payment.Request) (*payment.Flow, error) {
	return payment.NewFlow(req.Reference, "https://checkout.paystack.test/"+req.Reference, "ac", g.hub.Register(req.Reference)), nil
}

func (g hubGateway) Succeed(reference, status, transactionID string) error {
	return g.hub.Resolve(reference, payment.Succeeded(payment.Success{
		Reference: reference, Status: status, TransactionID: transactionID,
	}))
}

func (g hubGateway) Cancel(reference string) error {
	return g.hub.Resolve(reference, payment.Cancelled)
}

func (g hubGateway) Abandon(reference string) { g.hub.Forget(reference) }

type paidVerifier struct {
	mu    sync.Mutex
	calls int
}

func (v *paidVerifier) Verify(_ context.Context, ref string) (*payment.Verification, error) {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	return &payment.Verification{Reference: ref, Status: payment.StatusSuccess, AmountMinor: 1200, TransactionID: "4099"}, nil
}

func (v *paidVerifier) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type mockOrders struct {
	mu     sync.Mutex
	placed map[string]*order.Order
	board  []order.Status
	limit  int
}

func newMockOrders() *mockOrders {
	return &mockOrders{placed: map[string]*order.Order{}}
}

func (m *mockOrders) Place(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.CreatedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	o.UpdatedAt = o.CreatedAt
	m.placed[o.Code] = o
	return nil
}

func (m *mockOrders) Hold(ctx context.Context, o *order.Order) error {
	o.Status = order.StatusAwaitingPayment
	o.PaymentStatus = order.PaymentPending
	return m.Place(ctx, o)
}

func (m *mockOrders) ConfirmPayment(_ context.Context, code, txID string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.placed[code]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.PaymentStatus == order.PaymentPaid {
		return o, nil
	}
	if o.Status != order.StatusAwaitingPayment {
		return nil, &order.InvalidTransitionError{Code: code, From: o.Status, To: order.StatusPending}
	}
	o.Status = order.StatusPending
	o.PaymentStatus = order.PaymentPaid
	o.TransactionID = txID
	return o, nil
}

func (m *mockOrders) FailPayment(_ context.Context, code string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.placed[code]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Status = order.StatusCancelled
	o.PaymentStatus = order.PaymentFailed
	return o, nil
}

// snapshot returns a copy of the stored order, or nil.
func (m *mockOrders) snapshot(code string) *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.placed[code]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}

func (m *mockOrders) Lookup(_ context.Context, code string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.placed[code]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrders) Board(_ context.Context, statuses []order.Status, limit int) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.board, m.limit = statuses, limit
	var out []order.Order
	for _, o := range m.placed {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrders) Advance(ctx context.Context, code string) (*order.Order, error) {
	o, err := m.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	to, ok := o.Status.Next()
	if !ok {
		return nil, &order.InvalidTransitionError{Code: code, From: o.Status, To: order.StatusCompleted}
	}
	o.Status = to
	return o, nil
}

func (m *mockOrders) Cancel(ctx context.Context, code string) (*order.Order, error) {
	o, err := m.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(order.StatusCancelled) {
		return nil, &order.InvalidTransitionError{Code: code, From: o.Status, To: order.StatusCancelled}
	}
	o.Status = order.StatusCancelled
	return o, nil
}

type staticMenu struct{}

func (staticMenu) Menu(context.Context) (*menu.Menu, error) {
	return &menu.Menu{
		Drinks: []menu.Drink{
			{ID: "d1", Name: "Classic Matcha Latte", Available: true, Prices: map[drink.Size]decimal.Decimal{
				drink.SizeMedium: decimal.NewFromInt(12),
			}},
			{ID: "d2", Name: "Retired Blend", Available: false},
		},
		AddOns: []menu.AddOn{{ID: "a1", Name: pricing.CollagenBoost, Price: decimal.NewFromInt(40), Available: true}},
	}, nil
}

type memDeliveries struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memDeliveries) MarkFirst(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func (m *memDeliveries) Forget(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, id)
	return nil
}

// --- Helpers ---

type fixture struct {
	srv      *httptest.Server
	orders   *mockOrders
	verifier *paidVerifier
	hub      *payment.Hub
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	return newSessionFixture(t, cfg, session.Config{})
}

func newSessionFixture(t *testing.T, cfg Config, scfg session.Config) *fixture {
	t.Helper()
	hub := payment.NewHub()
	orders := newMockOrders()
	verifier := &paidVerifier{}
	gw := hubGateway{hub: hub}
	svc, err := checkout.NewService(
		checkout.Config{}, &seqIssuer{}, gw, verifier, orders,
		zap.NewNop(), tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider(),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mgr := session.NewManager(ctx, scfg, svc, pricing.DefaultTable(), zap.NewNop())

	if cfg.WebhookSecret == "" {
		cfg.WebhookSecret = testSecret
	}
	h := New(cfg, mgr, orders, staticMenu{}, gw, svc, &memDeliveries{seen: map[string]bool{}})
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, orders: orders, verifier: verifier, hub: hub}
}

type response struct {
	code int
	body []byte
	hdr  http.Header
}

func (f *fixture) do(t *testing.T, method, path, body string, hdr ...string) response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{code: resp.StatusCode, body: data, hdr: resp.Header}
}

// field extracts a top-level string or number field as text.
func field(t *testing.T, body []byte, name string) string {
	t.Helper()
	var out string
	require.NoError(t, jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != name {
			return d.Skip()
		}
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		out = strings.Trim(raw.String(), `"`)
		return nil
	}))
	return out
}

func (f *fixture) newSession(t *testing.T) string {
	t.Helper()
	res := f.do(t, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, res.code)
	id := field(t, res.body, "id")
	require.NotEmpty(t, id)
	return id
}

// --- Tests ---

func TestSession_BuildAndAddToCart(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.newSession(t)

	res := f.do(t, http.MethodPut, "/api/sessions/"+id+"/drink", `{"matchaLevel":75,"size":"large","ice":"no-ice"}`)
	require.Equal(t, http.StatusOK, res.code, string(res.body))
	assert.Equal(t, "15.00", field(t, res.body, "unitPrice"))
	assert.Contains(t, string(res.body), `"level":75`)

	res = f.do(t, http.MethodPost, "/api/sessions/"+id+"/drink/extras/"+strings.ReplaceAll(pricing.CollagenBoost, " ", "%20"), "")
	require.Equal(t, http.StatusOK, res.code, string(res.body))
	assert.Equal(t, "55.00", field(t, res.body, "unitPrice"))

	res = f.do(t, http.MethodPost, "/api/sessions/"+id+"/cart", `{"quantity":2}`)
	require.Equal(t, http.StatusCreated, res.code, string(res.body))
	assert.Equal(t, "110.00", field(t, res.body, "total"))
	assert.Contains(t, string(res.body), `"name":"Custom Matcha"`)
}

func TestSession_DrinkValidation(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.newSession(t)

	for _, body := range []string{`{"size":"venti"}`, `{"ice":"crushed"}`, `{"matchaLevel":101}`, `{"matchaLevel":`} {
		res := f.do(t, http.MethodPut, "/api/sessions/"+id+"/drink", body)
		assert.Equal(t, http.StatusBadRequest, res.code, body)
	}

	res := f.do(t, http.MethodPost, "/api/sessions/"+id+"/drink/extras/Gold", "")
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)
	assert.Equal(t, "addOns", field(t, res.body, "field"))
}

func TestSession_NotFound(t *testing.T) {
	f := newFixture(t, Config{})
	res := f.do(t, http.MethodGet, "/api/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, res.code)
	assert.Equal(t, "404", field(t, res.body, "code"))
}

func TestCart_QuantityRules(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.newSession(t)

	res := f.do(t, http.MethodPost, "/api/sessions/"+id+"/cart", `{"quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = f.do(t, http.MethodPost, "/api/sessions/"+id+"/cart", "")
	require.Equal(t, http.StatusCreated, res.code)

	res = f.do(t, http.MethodPatch, "/api/sessions/"+id+"/cart/missing", `{"quantity":2}`)
	assert.Equal(t, http.StatusNotFound, res.code)

	res = f.do(t, http.MethodDelete, "/api/sessions/"+id+"/cart", "")
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "0.00", field(t, res.body, "total"))
}

func TestCheckout_Cash(t *testing.T) {
	f := newFixture(t, Config{PickupLocation: "Osu Oxford Street", PickupEstimate: 20 * time.Minute})
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/cart", "")

	res := f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout", `{"phone":"0241234567","method":"cash"}`)
	require.Equal(t, http.StatusCreated, res.code, string(res.body))
	assert.Equal(t, "CALM-VIBE-204", field(t, res.body, "orderCode"))
	assert.Equal(t, string(checkout.StateCompleted), field(t, res.body, "state"))

	res = f.do(t, http.MethodGet, "/api/orders/calm-vibe-204", "")
	require.Equal(t, http.StatusOK, res.code, string(res.body))
	assert.Equal(t, "pending", field(t, res.body, "status"))
	assert.Contains(t, string(res.body), `"location":"Osu Oxford Street"`)
	assert.Contains(t, string(res.body), `"readyBy":"2026-03-01T10:20:00Z"`)

	view := f.do(t, http.MethodGet, "/api/sessions/"+id, "")
	assert.Equal(t, "0.00", field(t, view.body, "total"), "cart cleared after completion")
}

func TestCheckout_Errors(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.newSession(t)

	res := f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout", `{"phone":"0241234567","method":"cash"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)
	assert.Equal(t, "cart", field(t, res.body, "field"))

	f.do(t, http.MethodPost, "/api/sessions/"+id+"/cart", "")

	res = f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout", `{"phone":"123","method":"cash"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)
	assert.Equal(t, "phone", field(t, res.body, "field"))

	res = f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout", `{"phone":"0241234567","method":"momo"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)
	assert.Equal(t, "email", field(t, res.body, "field"))
}

func TestCheckout_HostedWithWebhook(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/cart", "")

	res := f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout",
		`{"phone":"0241234567","email":"ama@example.com","method":"MoMo"}`)
	require.Equal(t, http.StatusAccepted, res.code, string(res.body))
	ref := field(t, res.body, "paymentReference")
	assert.True(t, strings.HasPrefix(ref, "JM-CALM-VIBE-204-"))
	assert.Equal(t, "https://checkout.paystack.test/"+ref, field(t, res.body, "authorizationUrl"))

	res = f.do(t, http.MethodPost, "/api/sessions/"+id+"/cart", "")
	assert.Equal(t, http.StatusConflict, res.code, "cart locked while paying")

	body := `{"event":"charge.success","data":{"id":4099,"status":"success","reference":"` + ref + `","amount":1200,"currency":"GHS"}}`
	res = f.do(t, http.MethodPost, "/api/payments/paystack/webhook", body, paystack.SignatureHeader, "bad")
	assert.Equal(t, http.StatusUnauthorized, res.code)

	sig := paystack.Sign(testSecret, []byte(body))
	res = f.do(t, http.MethodPost, "/api/payments/paystack/webhook", body, paystack.SignatureHeader, sig)
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "ok", field(t, res.body, "status"))

	res = f.do(t, http.MethodPost, "/api/payments/paystack/webhook", body, paystack.SignatureHeader, sig)
	assert.Equal(t, "duplicate", field(t, res.body, "status"))

	require.Eventually(t, func() bool {
		res := f.do(t, http.MethodGet, "/api/sessions/"+id+"/checkout", "")
		return field(t, res.body, "state") == string(checkout.StateCompleted)
	}, 2*time.Second, 10*time.Millisecond)

	o, err := f.orders.Lookup(context.Background(), "CALM-VIBE-204")
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "4099", o.TransactionID)
}

func TestPaystackCancel_RedirectsAndKeepsCart(t *testing.T) {
	f := newFixture(t, Config{ReturnURL: "https://shop.example/checkout"})
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/cart", "")

	res := f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout",
		`{"phone":"0241234567","email":"ama@example.com","method":"momo"}`)
	require.Equal(t, http.StatusAccepted, res.code)
	ref := field(t, res.body, "paymentReference")

	res = f.do(t, http.MethodGet, "/api/payments/paystack/cancel?reference="+ref, "")
	require.Equal(t, http.StatusSeeOther, res.code)
	assert.Equal(t, "https://shop.example/checkout?order=CALM-VIBE-204&payment=cancelled", res.hdr.Get("Location"))

	require.Eventually(t, func() bool {
		res := f.do(t, http.MethodGet, "/api/sessions/"+id+"/checkout", "")
		return field(t, res.body, "state") == string(checkout.StateIdle)
	}, 2*time.Second, 10*time.Millisecond)

	view := f.do(t, http.MethodGet, "/api/sessions/"+id, "")
	assert.Equal(t, "12.00", field(t, view.body, "total"))

	res = f.do(t, http.MethodGet, "/api/payments/paystack/cancel?reference="+ref, "")
	assert.Equal(t, http.StatusSeeOther, res.code, "repeat cancels are harmless")

	res = f.do(t, http.MethodGet, "/api/payments/paystack/cancel", "")
	assert.Equal(t, http.StatusBadRequest, res.code)
}

func TestPaystackCallback(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/cart", "")
	res := f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout",
		`{"phone":"0241234567","email":"ama@example.com","method":"momo"}`)
	ref := field(t, res.body, "paymentReference")

	res = f.do(t, http.MethodGet, "/api/payments/paystack/callback?trxref="+ref, "")
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "processing", field(t, res.body, "status"))
	assert.Equal(t, "CALM-VIBE-204", field(t, res.body, "orderCode"))

	require.Eventually(t, func() bool {
		o := f.orders.snapshot("CALM-VIBE-204")
		return o != nil && o.PaymentStatus == order.PaymentPaid
	}, 2*time.Second, 10*time.Millisecond)
}

// signedCharge returns a charge.success webhook body for ref and its signature.
func signedCharge(ref string) (string, string) {
	body := `{"event":"charge.success","data":{"id":4099,"status":"success","reference":"` + ref + `","amount":1200,"currency":"GHS"}}`
	return body, paystack.Sign(testSecret, []byte(body))
}

func TestWebhook_AfterAbandonPlacesPaidOrder(t *testing.T) {
	f := newSessionFixture(t, Config{}, session.Config{PaymentTimeout: 20 * time.Millisecond})
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/cart", "")

	res := f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout",
		`{"phone":"0241234567","email":"ama@example.com","method":"momo"}`)
	require.Equal(t, http.StatusAccepted, res.code, string(res.body))
	ref := field(t, res.body, "paymentReference")

	// The wait times out before the charge lands.
	require.Eventually(t, func() bool {
		res := f.do(t, http.MethodGet, "/api/sessions/"+id+"/checkout", "")
		return field(t, res.body, "state") == string(checkout.StateIdle)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, f.hub.Pending())
	assert.Equal(t, order.StatusAwaitingPayment, f.orders.snapshot("CALM-VIBE-204").Status)

	body, sig := signedCharge(ref)
	res = f.do(t, http.MethodPost, "/api/payments/paystack/webhook", body, paystack.SignatureHeader, sig)
	require.Equal(t, http.StatusOK, res.code, string(res.body))
	assert.Equal(t, "reconciled", field(t, res.body, "status"))

	o := f.orders.snapshot("CALM-VIBE-204")
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "4099", o.TransactionID)
	assert.Equal(t, 1, f.verifier.count())
}

func TestCallback_AfterCancelPlacesPaidOrder(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.newSession(t)
	f.do(t, http.MethodPost, "/api/sessions/"+id+"/cart", "")
	res := f.do(t, http.MethodPost, "/api/sessions/"+id+"/checkout",
		`{"phone":"0241234567","email":"ama@example.com","method":"momo"}`)
	require.Equal(t, http.StatusAccepted, res.code, string(res.body))
	ref := field(t, res.body, "paymentReference")

	res = f.do(t, http.MethodGet, "/api/payments/paystack/cancel?reference="+ref, "")
	require.Equal(t, http.StatusOK, res.code)
	require.Eventually(t, func() bool {
		res := f.do(t, http.MethodGet, "/api/sessions/"+id+"/checkout", "")
		return field(t, res.body, "state") == string(checkout.StateIdle)
	}, 2*time.Second, 10*time.Millisecond)

	// The mobile money prompt was approved anyway.
	res = f.do(t, http.MethodGet, "/api/payments/paystack/callback?reference="+ref, "")
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "processing", field(t, res.body, "status"))

	o := f.orders.snapshot("CALM-VIBE-204")
	assert.Equal(t, order.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, 1, f.verifier.count())
}

func TestWebhook_ChargeForCancelledOrder(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.orders.Hold(context.Background(), &order.Order{
		Code: "BOLD-JOY-777", Phone: "0241234567", PaymentMethod: order.PaymentMomo,
		PaymentReference: "JM-BOLD-JOY-777-1700000000000", Total: decimal.NewFromInt(12),
	}))
	res := f.do(t, http.MethodPost, "/api/kitchen/orders/BOLD-JOY-777/cancel", "")
	require.Equal(t, http.StatusOK, res.code)

	body, sig := signedCharge("JM-BOLD-JOY-777-1700000000000")
	res = f.do(t, http.MethodPost, "/api/payments/paystack/webhook", body, paystack.SignatureHeader, sig)
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "rejected", field(t, res.body, "status"))
	assert.Zero(t, f.verifier.count())
}

func TestWebhook_IgnoresOtherEvents(t *testing.T) {
	f := newFixture(t, Config{})
	body := `{"event":"transfer.success","data":{"reference":"x"}}`
	res := f.do(t, http.MethodPost, "/api/payments/paystack/webhook", body,
		paystack.SignatureHeader, paystack.Sign(testSecret, []byte(body)))
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "ignored", field(t, res.body, "status"))

	body = `{"event":"charge.success","data":{"reference":"JM-NOPE-ZERO-100-1"}}`
	res = f.do(t, http.MethodPost, "/api/payments/paystack/webhook", body,
		paystack.SignatureHeader, paystack.Sign(testSecret, []byte(body)))
	assert.Equal(t, "unknown", field(t, res.body, "status"))
}

func TestOrder_LookupErrors(t *testing.T) {
	f := newFixture(t, Config{})
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/orders/not-a-code", "").code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/orders/CALM-VIBE-204", "").code)
}

func TestKitchen_BoardAndTransitions(t *testing.T) {
	f := newFixture(t, Config{})
	require.NoError(t, f.orders.Place(context.Background(), &order.Order{
		Code: "BOLD-JOY-777", Phone: "0241234567", Status: order.StatusReady,
		PaymentMethod: order.PaymentCash, PaymentStatus: order.PaymentPending, Total: decimal.NewFromInt(12),
	}))

	res := f.do(t, http.MethodGet, "/api/kitchen/orders?status=pending,ready&limit=10", "")
	require.Equal(t, http.StatusOK, res.code, string(res.body))
	assert.Contains(t, string(res.body), `"phone":"******4567"`)
	assert.Equal(t, []order.Status{order.StatusPending, order.StatusReady}, f.orders.board)
	assert.Equal(t, 10, f.orders.limit)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/kitchen/orders?status=lost", "").code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/kitchen/orders?limit=0", "").code)

	res = f.do(t, http.MethodPost, "/api/kitchen/orders/BOLD-JOY-777/advance", "")
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "completed", field(t, res.body, "status"))

	res = f.do(t, http.MethodPost, "/api/kitchen/orders/BOLD-JOY-777/cancel", "")
	assert.Equal(t, http.StatusConflict, res.code)
}

func TestMenu(t *testing.T) {
	f := newFixture(t, Config{})
	res := f.do(t, http.MethodGet, "/api/menu", "")
	require.Equal(t, http.StatusOK, res.code)
	body := string(res.body)
	assert.Contains(t, body, `"name":"Classic Matcha Latte"`)
	assert.Contains(t, body, `"medium":"12.00"`)
	assert.NotContains(t, body, "Retired Blend")
	assert.Contains(t, body, `"price":"40.00"`)
	assert.Contains(t, body, `"label":"Pure Matcha Energy"`)
}

func TestMaskPhone(t *testing.T) {
	for in, want := range map[string]string{
		"0241234567":     "******4567",
		"+233 24 123 45": "+*** ** *23 45",
		"123":            "123",
	} {
		assert.Equal(t, want, maskPhone(in), in)
	}
}

func TestFail_Mapping(t *testing.T) {
	for _, tt := range []struct {
		err  error
		code int
	}{
		{payment.ErrGatewayUnavailable, http.StatusServiceUnavailable},
		{errors.Wrap(checkout.ErrPaymentUnverified, "amount"), http.StatusBadGateway},
		{checkout.ErrCheckoutInProgress, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		w := httptest.NewRecorder()
		fail(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
		assert.Equal(t, tt.code, w.Code, tt.err.Error())
	}
}
