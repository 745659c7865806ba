package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/matcha-bar/internal/domain/checkout"
	"github.com/xenking/matcha-bar/internal/domain/drink"
	"github.com/xenking/matcha-bar/internal/domain/order"
	"github.com/xenking/matcha-bar/internal/session"
)

func (h *Handler) session(r *http.Request) (*session.Session, error) {
	return h.sessions.Get(chi.URLParam(r, "id"))
}

func (h *Handler) writeView(w http.ResponseWriter, code int, s *session.Session) {
	v := s.View()
	writeJSON(w, code, func(e *jx.Encoder) { encodeView(e, v) })
}

// CreateSession starts a storefront session.
func (h *Handler) CreateSession(w http.ResponseWriter, _ *http.Request) {
	h.writeView(w, http.StatusCreated, h.sessions.Create())
}

// GetSession returns the builder, preset, cart and checkout state.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// UpdateDrink applies a partial {matchaLevel,size,ice} update.
func (h *Handler) UpdateDrink(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var u session.DrinkUpdate
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "matchaLevel":
			v, err := d.Int()
			if err != nil {
				return err
			}
			if v < 0 || v > 100 {
				return invalid("matchaLevel must be between 0 and 100")
			}
			u.MatchaLevel = &v
		case "size":
			v, err := d.Str()
			if err != nil {
				return err
			}
			size, err := drink.ParseSize(v)
			if err != nil {
				return invalid("%s", err)
			}
			u.Size = &size
		case "ice":
			v, err := d.Str()
			if err != nil {
				return err
			}
			ice, err := drink.ParseIce(v)
			if err != nil {
				return invalid("%s", err)
			}
			u.Ice = &ice
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		fail(w, r, err)
		return
	}

	s.UpdateDrink(u)
	h.writeView(w, http.StatusOK, s)
}

// ResetDrink restores the default drink.
func (h *Handler) ResetDrink(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	s.ResetDrink()
	h.writeView(w, http.StatusOK, s)
}

// AddExtra adds the add-on in the path to the drink being built.
func (h *Handler) AddExtra(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if _, err := s.AddExtra(chi.URLParam(r, "name")); err != nil {
		fail(w, r, err)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// RemoveExtra drops the add-on in the path.
func (h *Handler) RemoveExtra(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	s.RemoveExtra(chi.URLParam(r, "name"))
	h.writeView(w, http.StatusOK, s)
}

// AddToCart adds the current drink, optionally with more add-ons.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var (
		addOns   []string
		quantity = 1
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "addOns":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				addOns = append(addOns, v)
				return err
			})
		case "quantity":
			v, err := d.Int()
			quantity = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		fail(w, r, err)
		return
	}
	if quantity < 1 {
		fail(w, r, invalid("quantity must be at least 1"))
		return
	}

	if _, err := s.AddToCart(addOns, quantity); err != nil {
		fail(w, r, err)
		return
	}
	h.writeView(w, http.StatusCreated, s)
}

// UpdateCartItem sets the quantity of a line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	quantity := -1
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		v, err := d.Int()
		quantity = v
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}
	if quantity < 1 {
		fail(w, r, invalid("quantity must be at least 1"))
		return
	}

	if _, err := s.UpdateQuantity(chi.URLParam(r, "itemID"), quantity); err != nil {
		fail(w, r, err)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// RemoveCartItem deletes a line.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.RemoveItem(chi.URLParam(r, "itemID")); err != nil {
		fail(w, r, err)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.ClearCart(); err != nil {
		fail(w, r, err)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// Checkout submits the cart. Cash orders answer 201 with the order code;
// hosted payments answer 202 with the authorization URL to redirect to.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var req checkout.Request
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var (
			v   string
			err error
		)
		switch key {
		case "phone", "email", "method", "notes":
			v, err = d.Str()
		default:
			return d.Skip()
		}
		switch key {
		case "phone":
			req.Phone = strings.TrimSpace(v)
		case "email":
			req.Email = strings.TrimSpace(v)
		case "method":
			req.Method = order.PaymentMethod(strings.ToLower(v))
		case "notes":
			req.Notes = v
		}
		return err
	}); err != nil {
		fail(w, r, err)
		return
	}

	res, err := s.Checkout(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}

	code := http.StatusCreated
	if res.State == checkout.StatePaymentPending {
		code = http.StatusAccepted
	}
	writeJSON(w, code, func(e *jx.Encoder) { encodeResult(e, res) })
}

// CheckoutStatus reports the current or last checkout attempt.
func (h *Handler) CheckoutStatus(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	snap := s.CheckoutStatus()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCheckout(e, snap) })
}
