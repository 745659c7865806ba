// Package codec holds the JSON form of orders shared by the cache, the
// kitchen feed and the archive.
package codec

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/matcha-bar/internal/domain/order"
)

// EncodeOrder writes o as a JSON object.
func EncodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", o.ID)
		str(e, "code", o.Code)
		str(e, "phone", o.Phone)
		if o.Email != "" {
			str(e, "email", o.Email)
		}
		str(e, "status", string(o.Status))
		str(e, "payment_method", string(o.PaymentMethod))
		str(e, "payment_status", string(o.PaymentStatus))
		if o.PaymentReference != "" {
			str(e, "payment_reference", o.PaymentReference)
		}
		if o.TransactionID != "" {
			str(e, "transaction_id", o.TransactionID)
		}
		str(e, "total", o.Total.StringFixed(2))
		if o.Notes != "" {
			str(e, "notes", o.Notes)
		}
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range o.Items {
					encodeItem(e, &o.Items[i])
				}
			})
		})
		str(e, "created_at", o.CreatedAt.UTC().Format(time.RFC3339Nano))
		str(e, "updated_at", o.UpdatedAt.UTC().Format(time.RFC3339Nano))
	})
}

func encodeItem(e *jx.Encoder, it *order.Item) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "drink_name", it.DrinkName)
		e.Field("matcha_level", func(e *jx.Encoder) { e.Int(it.MatchaLevel) })
		str(e, "size", string(it.Size))
		str(e, "ice", string(it.Ice))
		e.Field("has_collagen", func(e *jx.Encoder) { e.Bool(it.HasCollagen) })
		e.Field("extras", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, x := range it.Extras {
					e.Str(x)
				}
			})
		})
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		str(e, "unit_price", it.UnitPrice.StringFixed(2))
		str(e, "total_price", it.TotalPrice.StringFixed(2))
	})
}

func str(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

// MarshalOrder returns the JSON form of o.
func MarshalOrder(o *order.Order) []byte {
	var e jx.Encoder
	EncodeOrder(&e, o)
	return e.Bytes()
}

// UnmarshalOrder parses the output of MarshalOrder.
func UnmarshalOrder(data []byte) (*order.Order, error) {
	var o order.Order
	if err := DecodeOrder(jx.DecodeBytes(data), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// DecodeOrder reads an order object from d.
func DecodeOrder(d *jx.Decoder, o *order.Order) error {
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			return decodeStr(d, &o.ID)
		case "code":
			return decodeStr(d, &o.Code)
		case "phone":
			return decodeStr(d, &o.Phone)
		case "email":
			return decodeStr(d, &o.Email)
		case "status":
			return decodeStr(d, (*string)(&o.Status))
		case "payment_method":
			return decodeStr(d, (*string)(&o.PaymentMethod))
		case "payment_status":
			return decodeStr(d, (*string)(&o.PaymentStatus))
		case "payment_reference":
			return decodeStr(d, &o.PaymentReference)
		case "transaction_id":
			return decodeStr(d, &o.TransactionID)
		case "total":
			return decodeDecimal(d, &o.Total)
		case "notes":
			return decodeStr(d, &o.Notes)
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var it order.Item
				if err := decodeItem(d, &it); err != nil {
					return err
				}
				o.Items = append(o.Items, it)
				return nil
			})
		case "created_at":
			return decodeTime(d, &o.CreatedAt)
		case "updated_at":
			return decodeTime(d, &o.UpdatedAt)
		default:
			return d.Skip()
		}
	})
	return errors.Wrap(err, "decode order")
}

func decodeItem(d *jx.Decoder, it *order.Item) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "drink_name":
			return decodeStr(d, &it.DrinkName)
		case "matcha_level":
			v, err := d.Int()
			it.MatchaLevel = v
			return err
		case "size":
			return decodeStr(d, (*string)(&it.Size))
		case "ice":
			return decodeStr(d, (*string)(&it.Ice))
		case "has_collagen":
			v, err := d.Bool()
			it.HasCollagen = v
			return err
		case "extras":
			it.Extras = []string{}
			return d.Arr(func(d *jx.Decoder) error {
				s, err := d.Str()
				it.Extras = append(it.Extras, s)
				return err
			})
		case "quantity":
			v, err := d.Int()
			it.Quantity = v
			return err
		case "unit_price":
			return decodeDecimal(d, &it.UnitPrice)
		case "total_price":
			return decodeDecimal(d, &it.TotalPrice)
		default:
			return d.Skip()
		}
	})
}

func decodeStr(d *jx.Decoder, dst *string) error {
	s, err := d.Str()
	*dst = s
	return err
}

func decodeDecimal(d *jx.Decoder, dst *decimal.Decimal) error {
	s, err := d.Str()
	if err != nil {
		return err
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return errors.Wrapf(err, "parse amount %q", s)
	}
	*dst = v
	return nil
}

func decodeTime(d *jx.Decoder, dst *time.Time) error {
	s, err := d.Str()
	if err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return errors.Wrapf(err, "parse time %q", s)
	}
	*dst = t
	return nil
}
