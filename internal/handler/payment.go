package handler

import (
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/matcha-bar/internal/domain/checkout"
	"github.com/xenking/matcha-bar/internal/domain/ordercode"
	"github.com/xenking/matcha-bar/internal/domain/payment"
	"github.com/xenking/matcha-bar/internal/paystack"
)

// PaystackWebhook applies signed charge.success events. A charge no checkout
// is waiting for any more is reconciled against its held order. Every
// well-formed delivery is acknowledged with 200 so Paystack stops retrying,
// except when routing or reconciling the outcome failed.
func (h *Handler) PaystackWebhook(w http.ResponseWriter, r *http.Request) {
	lg := zctx.From(r.Context())

	body, err := readBody(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := paystack.VerifySignature(h.cfg.WebhookSecret, body, r.Header.Get(paystack.SignatureHeader)); err != nil {
		lg.Warn("Rejected webhook", zap.Error(err))
		writeError(w, http.StatusUnauthorized, err.Error(), "")
		return
	}
	ev, err := paystack.ParseEvent(body)
	if err != nil {
		fail(w, r, invalid("%s", err))
		return
	}

	tx := ev.Transaction
	lg = lg.With(zap.String("event", ev.Name), zap.String("reference", tx.Reference))
	if ev.Name != paystack.EventChargeSuccess || tx.Reference == "" {
		lg.Debug("Ignoring webhook")
		acknowledge(w, "ignored")
		return
	}

	id := ev.Name + ":" + tx.Reference
	if h.deliveries != nil {
		first, err := h.deliveries.MarkFirst(r.Context(), id)
		switch {
		case err != nil:
			lg.Warn("Webhook dedup unavailable", zap.Error(err))
		case !first:
			lg.Info("Duplicate webhook delivery")
			acknowledge(w, "duplicate")
			return
		}
	}

	err = h.payments.Succeed(tx.Reference, tx.Status, tx.TransactionID)
	switch {
	case err == nil:
		lg.Info("Payment reported", zap.String("transaction_id", tx.TransactionID))
		acknowledge(w, "ok")
		return
	case !errors.Is(err, payment.ErrUnknownReference):
		h.forgetDelivery(r, lg, id)
		fail(w, r, errors.Wrap(err, "route payment outcome"))
		return
	}

	// No checkout is waiting: it timed out, was cancelled, or the outcome
	// already arrived through the callback.
	o, err := h.reconciler.Reconcile(r.Context(), tx.Reference, tx.TransactionID)
	switch {
	case err == nil:
		lg.Info("Payment reconciled", zap.String("code", o.Code))
		acknowledge(w, "reconciled")
	case errors.Is(err, payment.ErrUnknownReference):
		lg.Info("Webhook for unknown payment")
		acknowledge(w, "unknown")
	case errors.Is(err, checkout.ErrOrderClosed), errors.Is(err, checkout.ErrPaymentUnverified):
		lg.Error("Charge needs manual review", zap.Error(err))
		acknowledge(w, "rejected")
	default:
		h.forgetDelivery(r, lg, id)
		fail(w, r, errors.Wrap(err, "reconcile payment"))
	}
}

func (h *Handler) forgetDelivery(r *http.Request, lg *zap.Logger, id string) {
	if h.deliveries == nil {
		return
	}
	if err := h.deliveries.Forget(r.Context(), id); err != nil {
		lg.Warn("Forget webhook delivery", zap.Error(err))
	}
}

// PaystackCallback is where the hosted page sends the customer after paying.
// It signals the waiting checkout, which still verifies with Paystack before
// placing the order. Without a waiting checkout the charge is reconciled
// directly; failures there are logged and left to the webhook.
func (h *Handler) PaystackCallback(w http.ResponseWriter, r *http.Request) {
	ref := reference(r)
	if ref == "" {
		fail(w, r, invalid("reference is required"))
		return
	}
	err := h.payments.Succeed(ref, payment.StatusSuccess, "")
	switch {
	case err == nil:
	case errors.Is(err, payment.ErrUnknownReference):
		if _, err := h.reconciler.Reconcile(r.Context(), ref, ""); err != nil && !errors.Is(err, payment.ErrUnknownReference) {
			zctx.From(r.Context()).Warn("Reconcile on callback",
				zap.String("reference", ref),
				zap.Error(err),
			)
		}
	default:
		fail(w, r, err)
		return
	}
	h.returnToStore(w, r, ref, "processing")
}

// PaystackCancel is the cancel_action of the hosted page. It unblocks the
// waiting checkout with a cancellation; the cart is kept.
func (h *Handler) PaystackCancel(w http.ResponseWriter, r *http.Request) {
	ref := reference(r)
	if ref == "" {
		fail(w, r, invalid("reference is required"))
		return
	}
	if err := h.payments.Cancel(ref); err != nil && !errors.Is(err, payment.ErrUnknownReference) {
		fail(w, r, err)
		return
	}
	h.returnToStore(w, r, ref, "cancelled")
}

func reference(r *http.Request) string {
	q := r.URL.Query()
	if ref := q.Get("reference"); ref != "" {
		return ref
	}
	return q.Get("trxref")
}

func (h *Handler) returnToStore(w http.ResponseWriter, r *http.Request, ref, status string) {
	code, _ := ordercode.CodeFromReference(ref)
	if h.cfg.ReturnURL == "" {
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				str(e, "status", status)
				str(e, "reference", ref)
				if code != "" {
					str(e, "orderCode", code)
				}
			})
		})
		return
	}

	u, err := url.Parse(h.cfg.ReturnURL)
	if err != nil {
		fail(w, r, errors.Wrap(err, "parse return url"))
		return
	}
	q := u.Query()
	q.Set("payment", status)
	if code != "" {
		q.Set("order", code)
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

func acknowledge(w http.ResponseWriter, status string) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) { str(e, "status", status) })
	})
}
