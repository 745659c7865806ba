// Package pricing maps a drink size and add-on selection to a unit price.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/matcha-bar/internal/domain/drink"
)

// CollagenBoost is the premium add-on offered by the builder.
const CollagenBoost = "Collagen Boost"

// UnknownAddOnError indicates a selection that is not on the price table.
type UnknownAddOnError struct {
	Name string
}

func (e *UnknownAddOnError) Error() string {
	return fmt.Sprintf("add-on %q is not available", e.Name)
}

// ErrUnpricedSize is returned when the table has no base price for a size.
var ErrUnpricedSize = errors.New("size has no price")

// AddOn is an optional surcharge item.
type AddOn struct {
	Name  string
	Price decimal.Decimal
}

// Table holds base prices per size and add-on surcharges. A Table is
// immutable after construction and safe for concurrent use.
type Table struct {
	base   map[drink.Size]decimal.Decimal
	addOns map[string]decimal.Decimal
	order  []string
}

// DefaultTable returns the storefront prices in GHS.
func DefaultTable() *Table {
	return NewTable(
		map[drink.Size]decimal.Decimal{
			drink.SizeSmall:  decimal.NewFromInt(10),
			drink.SizeMedium: decimal.NewFromInt(12),
			drink.SizeLarge:  decimal.NewFromInt(15),
		},
		[]AddOn{{Name: CollagenBoost, Price: decimal.NewFromInt(40)}},
	)
}

// NewTable builds a Table. Negative prices are floored at zero.
func NewTable(base map[drink.Size]decimal.Decimal, addOns []AddOn) *Table {
	t := &Table{
		base:   make(map[drink.Size]decimal.Decimal, len(base)),
		addOns: make(map[string]decimal.Decimal, len(addOns)),
	}
	for s, p := range base {
		t.base[s] = floorAtZero(p)
	}
	for _, a := range addOns {
		if _, dup := t.addOns[a.Name]; !dup {
			t.order = append(t.order, a.Name)
		}
		t.addOns[a.Name] = floorAtZero(a.Price)
	}
	return t
}

// Price returns the unit price for size with the selected add-ons. Each
// add-on is charged once no matter how often it appears in the selection.
func (t *Table) Price(size drink.Size, addOns []string) (decimal.Decimal, error) {
	price, ok := t.base[size]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrUnpricedSize, "%q", size)
	}

	charged := make(map[string]struct{}, len(addOns))
	for _, name := range addOns {
		if _, done := charged[name]; done {
			continue
		}
		surcharge, ok := t.addOns[name]
		if !ok {
			return decimal.Zero, &UnknownAddOnError{Name: name}
		}
		charged[name] = struct{}{}
		price = price.Add(surcharge)
	}
	return price.Round(2), nil
}

// BasePrice returns the price of size without add-ons.
func (t *Table) BasePrice(size drink.Size) (decimal.Decimal, bool) {
	p, ok := t.base[size]
	return p, ok
}

// AddOns lists the add-ons in the order they were registered.
func (t *Table) AddOns() []AddOn {
	out := make([]AddOn, len(t.order))
	for i, name := range t.order {
		out[i] = AddOn{Name: name, Price: t.addOns[name]}
	}
	return out
}

// IsAddOn reports whether name is a priced add-on.
func (t *Table) IsAddOn(name string) bool {
	_, ok := t.addOns[name]
	return ok
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
