package handler

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/matcha-bar/internal/domain/cart"
	"github.com/xenking/matcha-bar/internal/domain/checkout"
	"github.com/xenking/matcha-bar/internal/domain/drink"
	"github.com/xenking/matcha-bar/internal/domain/menu"
	"github.com/xenking/matcha-bar/internal/domain/order"
	"github.com/xenking/matcha-bar/internal/session"
)

// Money is sent as a decimal string with two places, e.g. "15.50".
func money(e *jx.Encoder, name string, d decimal.Decimal) {
	e.Field(name, func(e *jx.Encoder) { e.Str(d.StringFixed(2)) })
}

func str(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func strs(e *jx.Encoder, name string, vs []string) {
	e.Field(name, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, v := range vs {
				e.Str(v)
			}
		})
	})
}

func timestamp(e *jx.Encoder, name string, t time.Time) {
	e.Field(name, func(e *jx.Encoder) { e.Str(t.UTC().Format(time.RFC3339)) })
}

func encodeCustomization(e *jx.Encoder, c drink.Customization) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("matchaLevel", func(e *jx.Encoder) { e.Int(c.MatchaLevel) })
		str(e, "size", string(c.Size))
		str(e, "ice", string(c.Ice))
		strs(e, "extras", c.Extras)
	})
}

func encodePreset(e *jx.Encoder, p drink.Preset) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("level", func(e *jx.Encoder) { e.Int(p.Level) })
		str(e, "label", p.Label)
		str(e, "description", p.Description)
	})
}

func encodeLineItem(e *jx.Encoder, li cart.LineItem) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", li.ID)
		str(e, "name", li.Name)
		e.Field("customization", func(e *jx.Encoder) { encodeCustomization(e, li.Customization) })
		money(e, "price", li.Price)
		e.Field("quantity", func(e *jx.Encoder) { e.Int(li.Quantity) })
		money(e, "lineTotal", li.LineTotal())
	})
}

func encodeCheckout(e *jx.Encoder, s checkout.Snapshot) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "state", string(s.State))
		if r := s.Result; r != nil {
			e.Field("result", func(e *jx.Encoder) { encodeResult(e, r) })
		}
		if s.Err != nil {
			str(e, "error", s.Err.Error())
		}
	})
}

func encodeResult(e *jx.Encoder, r *checkout.Result) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "state", string(r.State))
		if r.OrderCode != "" {
			str(e, "orderCode", r.OrderCode)
		}
		if r.PaymentReference != "" {
			str(e, "paymentReference", r.PaymentReference)
		}
		if r.AuthorizationURL != "" {
			str(e, "authorizationUrl", r.AuthorizationURL)
		}
		if r.TransactionID != "" {
			str(e, "transactionId", r.TransactionID)
		}
		money(e, "total", r.Total)
		if r.AmountMinor > 0 {
			e.Field("amountMinor", func(e *jx.Encoder) { e.Int64(r.AmountMinor) })
		}
		if !r.CompletedAt.IsZero() {
			timestamp(e, "completedAt", r.CompletedAt)
		}
	})
}

func encodeView(e *jx.Encoder, v session.View) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", v.ID)
		e.Field("drink", func(e *jx.Encoder) { encodeCustomization(e, v.Customization) })
		e.Field("preset", func(e *jx.Encoder) { encodePreset(e, v.Preset) })
		money(e, "unitPrice", v.UnitPrice)
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, li := range v.Items {
					encodeLineItem(e, li)
				}
			})
		})
		money(e, "total", v.Total)
		e.Field("checkout", func(e *jx.Encoder) { encodeCheckout(e, v.Checkout) })
	})
}

func encodeMenu(e *jx.Encoder, m *menu.Menu) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("drinks", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, d := range m.Drinks {
					if !d.Available {
						continue
					}
					e.Obj(func(e *jx.Encoder) {
						str(e, "id", d.ID)
						str(e, "name", d.Name)
						str(e, "description", d.Description)
						str(e, "flavorProfile", d.FlavorProfile)
						e.Field("prices", func(e *jx.Encoder) {
							e.Obj(func(e *jx.Encoder) {
								for _, size := range drink.Sizes {
									if p, ok := d.Prices[size]; ok {
										money(e, string(size), p)
									}
								}
							})
						})
					})
				}
			})
		})
		e.Field("addOns", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, a := range m.AddOns {
					if !a.Available {
						continue
					}
					e.Obj(func(e *jx.Encoder) {
						str(e, "id", a.ID)
						str(e, "name", a.Name)
						str(e, "description", a.Description)
						money(e, "price", a.Price)
					})
				}
			})
		})
		e.Field("presets", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, p := range drink.Presets() {
					encodePreset(e, p)
				}
			})
		})
	})
}

func encodeOrderItems(e *jx.Encoder, items []order.Item) {
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			e.Obj(func(e *jx.Encoder) {
				str(e, "name", it.DrinkName)
				e.Field("matchaLevel", func(e *jx.Encoder) { e.Int(it.MatchaLevel) })
				str(e, "size", string(it.Size))
				str(e, "ice", string(it.Ice))
				strs(e, "extras", it.Extras)
				e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
				money(e, "unitPrice", it.UnitPrice)
				money(e, "totalPrice", it.TotalPrice)
			})
		}
	})
}

// encodeConfirmation is the customer-facing view of an order.
func (h *Handler) encodeConfirmation(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "code", o.Code)
		str(e, "status", string(o.Status))
		str(e, "paymentMethod", string(o.PaymentMethod))
		str(e, "paymentStatus", string(o.PaymentStatus))
		money(e, "total", o.Total)
		e.Field("items", func(e *jx.Encoder) { encodeOrderItems(e, o.Items) })
		timestamp(e, "createdAt", o.CreatedAt)
		e.Field("pickup", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				if h.cfg.PickupLocation != "" {
					str(e, "location", h.cfg.PickupLocation)
				}
				if !o.Status.IsTerminal() {
					timestamp(e, "readyBy", o.CreatedAt.Add(h.cfg.PickupEstimate))
				}
			})
		})
	})
}

// encodeTicket is the kitchen view of an order. Contact details are masked.
func encodeTicket(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "code", o.Code)
		str(e, "status", string(o.Status))
		str(e, "paymentMethod", string(o.PaymentMethod))
		str(e, "paymentStatus", string(o.PaymentStatus))
		str(e, "phone", maskPhone(o.Phone))
		if o.Notes != "" {
			str(e, "notes", o.Notes)
		}
		money(e, "total", o.Total)
		e.Field("items", func(e *jx.Encoder) { encodeOrderItems(e, o.Items) })
		timestamp(e, "createdAt", o.CreatedAt)
		timestamp(e, "updatedAt", o.UpdatedAt)
	})
}

// maskPhone hides every digit but the last four.
func maskPhone(phone string) string {
	b := []byte(phone)
	kept := 0
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < '0' || b[i] > '9' {
			continue
		}
		if kept < 4 {
			kept++
			continue
		}
		b[i] = '*'
	}
	return string(b)
}
