package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/matcha-bar/internal/domain/order"
	"github.com/xenking/matcha-bar/internal/domain/ordercode"
)

const (
	defaultBoardLimit = 50
	maxBoardLimit     = 200
)

func orderCode(r *http.Request) (string, error) {
	code := ordercode.Normalize(chi.URLParam(r, "code"))
	if !ordercode.Valid(code) {
		return "", invalid("malformed order code %q", code)
	}
	return code, nil
}

// GetOrder is the customer's order confirmation.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	code, err := orderCode(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.orders.Lookup(r.Context(), code)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeConfirmation(e, o) })
}

// GetMenu lists available drinks, add-ons and milk presets.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	m, err := h.menus.Menu(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeMenu(e, m) })
}

// KitchenBoard lists orders by status, oldest first. ?status= takes a comma
// separated list and defaults to every active status.
func (h *Handler) KitchenBoard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var statuses []order.Status
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := order.Status(strings.TrimSpace(s))
			if !st.Valid() {
				fail(w, r, invalid("unknown status %q", st))
				return
			}
			statuses = append(statuses, st)
		}
	}

	limit := defaultBoardLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxBoardLimit {
			fail(w, r, invalid("limit must be between 1 and %d", maxBoardLimit))
			return
		}
		limit = n
	}

	orders, err := h.orders.Board(r.Context(), statuses, limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orders", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range orders {
						encodeTicket(e, &orders[i])
					}
				})
			})
		})
	})
}

// AdvanceOrder moves an order to its next kitchen stage.
func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Advance)
}

// CancelOrder cancels an order that is not yet completed.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, move func(ctx context.Context, code string) (*order.Order, error)) {
	code, err := orderCode(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := move(r.Context(), code)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeTicket(e, o) })
}
