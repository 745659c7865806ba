// Package handler exposes the storefront, payment callbacks and the kitchen
// board over HTTP.
package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/matcha-bar/internal/domain/checkout"
	"github.com/xenking/matcha-bar/internal/domain/menu"
	"github.com/xenking/matcha-bar/internal/domain/order"
	"github.com/xenking/matcha-bar/internal/domain/payment"
	"github.com/xenking/matcha-bar/internal/domain/pricing"
	"github.com/xenking/matcha-bar/internal/session"
)

// maxBody bounds request bodies, webhooks included.
const maxBody = 1 << 20

// Config holds non-dependency settings.
type Config struct {
	// PickupLocation is shown on order confirmations.
	PickupLocation string
	// PickupEstimate is added to the order time for the ready-by estimate.
	PickupEstimate time.Duration
	// WebhookSecret verifies Paystack webhook signatures.
	WebhookSecret string
	// ReturnURL is the storefront page customers are sent back to from the
	// hosted payment page. Empty answers with JSON instead.
	ReturnURL string
}

// Orders is the order service as seen by the API.
type Orders interface {
	Lookup(ctx context.Context, code string) (*order.Order, error)
	Board(ctx context.Context, statuses []order.Status, limit int) ([]order.Order, error)
	Advance(ctx context.Context, code string) (*order.Order, error)
	Cancel(ctx context.Context, code string) (*order.Order, error)
}

// Menus reads the current menu.
type Menus interface {
	Menu(ctx context.Context) (*menu.Menu, error)
}

// Payments routes provider notifications to waiting checkouts.
type Payments interface {
	Succeed(reference, status, transactionID string) error
	Cancel(reference string) error
}

// Reconciler settles charges that no checkout is waiting for any more.
type Reconciler interface {
	Reconcile(ctx context.Context, reference, transactionID string) (*order.Order, error)
}

// Deliveries deduplicates webhook deliveries.
type Deliveries interface {
	MarkFirst(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

// Handler serves the HTTP API.
type Handler struct {
	cfg        Config
	sessions   *session.Manager
	orders     Orders
	menus      Menus
	payments   Payments
	reconciler Reconciler
	deliveries Deliveries
}

// New creates a Handler. deliveries may be nil, in which case every webhook
// delivery is applied.
func New(
	cfg Config,
	sessions *session.Manager,
	orders Orders,
	menus Menus,
	payments Payments,
	reconciler Reconciler,
	deliveries Deliveries,
) *Handler {
	if cfg.PickupEstimate <= 0 {
		cfg.PickupEstimate = 15 * time.Minute
	}
	return &Handler{
		cfg:        cfg,
		sessions:   sessions,
		orders:     orders,
		menus:      menus,
		payments:   payments,
		reconciler: reconciler,
		deliveries: deliveries,
	}
}

// Routes mounts the API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoCache)

		r.Get("/menu", h.GetMenu)

		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)

			r.Put("/drink", h.UpdateDrink)
			r.Post("/drink/reset", h.ResetDrink)
			r.Post("/drink/extras/{name}", h.AddExtra)
			r.Delete("/drink/extras/{name}", h.RemoveExtra)

			r.Post("/cart", h.AddToCart)
			r.Delete("/cart", h.ClearCart)
			r.Patch("/cart/{itemID}", h.UpdateCartItem)
			r.Delete("/cart/{itemID}", h.RemoveCartItem)

			r.Post("/checkout", h.Checkout)
			r.Get("/checkout", h.CheckoutStatus)
		})

		r.Route("/payments/paystack", func(r chi.Router) {
			r.Post("/webhook", h.PaystackWebhook)
			r.Get("/callback", h.PaystackCallback)
			r.Get("/cancel", h.PaystackCancel)
		})

		r.Get("/orders/{code}", h.GetOrder)

		r.Route("/kitchen/orders", func(r chi.Router) {
			r.Get("/", h.KitchenBoard)
			r.Post("/{code}/advance", h.AdvanceOrder)
			r.Post("/{code}/cancel", h.CancelOrder)
		})
	})
}

// Router returns a chi router serving the API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

// badRequest is a malformed request body or parameter.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

// fail maps err to a status code and writes the error body.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *checkout.ValidationError
		addOn      *pricing.UnknownAddOnError
		transition *order.InvalidTransitionError
		bad        *badRequest
	)
	switch {
	case errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, bad.msg, "")
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, validation.Message, validation.Field)
	case errors.As(err, &addOn):
		writeError(w, http.StatusUnprocessableEntity, addOn.Error(), "addOns")
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "cart")
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrItemNotFound),
		errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, checkout.ErrCheckoutInProgress),
		errors.Is(err, checkout.ErrNotPending),
		errors.As(err, &transition):
		writeError(w, http.StatusConflict, err.Error(), "")
	case errors.Is(err, payment.ErrGatewayUnavailable):
		zctx.From(r.Context()).Warn("Payment gateway unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "payment is temporarily unavailable, please pay with cash", "")
	case errors.Is(err, checkout.ErrPaymentUnverified):
		writeError(w, http.StatusBadGateway, err.Error(), "")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func writeError(w http.ResponseWriter, code int, msg, field string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(code) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
			if field != "" {
				e.Field("field", func(e *jx.Encoder) { e.Str(field) })
			}
		})
	})
}

func writeJSON(w http.ResponseWriter, code int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBody))
	if err != nil {
		return nil, invalid("read body: %s", err)
	}
	return body, nil
}

// decodeObject reads a JSON object body field by field. An empty body is an
// empty object.
func decodeObject(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := jx.DecodeBytes(body).Obj(field); err != nil {
		var bad *badRequest
		if errors.As(err, &bad) {
			return err
		}
		return invalid("malformed JSON: %s", err)
	}
	return nil
}
