// Package cart aggregates priced drink snapshots into line items.
package cart

import (
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/matcha-bar/internal/domain/drink"
)

// LineItem is one priced entry. Items are never modified in place; quantity
// updates replace the stored value.
type LineItem struct {
	ID            string
	Name          string
	Customization drink.Customization
	Price         decimal.Decimal
	Quantity      int
}

// LineTotal returns price times quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Cart is an ordered sequence of line items owned by one checkout session.
// It is not safe for concurrent use.
type Cart struct {
	items []LineItem
	newID func() string
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{newID: uuid.NewString}
}

// Add appends a new line with a fresh id. Identical customizations are kept
// as separate lines.
func (c *Cart) Add(name string, snapshot drink.Customization, price decimal.Decimal, quantity int) LineItem {
	li := LineItem{
		ID:            c.newID(),
		Name:          name,
		Customization: snapshot.Clone(),
		Price:         price,
		Quantity:      quantity,
	}
	c.items = append(c.items, li)
	return li
}

// Remove deletes the line with id. Missing ids are ignored.
func (c *Cart) Remove(id string) {
	c.items = slices.DeleteFunc(c.items, func(li LineItem) bool { return li.ID == id })
}

// UpdateQuantity replaces the quantity of line id and reports whether the
// line exists. The quantity is not validated here.
func (c *Cart) UpdateQuantity(id string, quantity int) bool {
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Quantity = quantity
			return true
		}
	}
	return false
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.items = nil
}

// Items returns a copy of the current lines.
func (c *Cart) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	for i, li := range c.items {
		li.Customization = li.Customization.Clone()
		out[i] = li
	}
	return out
}

// Get returns the line with id.
func (c *Cart) Get(id string) (LineItem, bool) {
	for _, li := range c.items {
		if li.ID == id {
			li.Customization = li.Customization.Clone()
			return li, true
		}
	}
	return LineItem{}, false
}

// Len returns the number of lines.
func (c *Cart) Len() int {
	return len(c.items)
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// Total returns the sum of price times quantity over all lines. It is
// recomputed on every call.
func (c *Cart) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range c.items {
		sum = sum.Add(li.LineTotal())
	}
	return sum
}

// Restore replaces the cart contents, keeping the given ids.
func (c *Cart) Restore(items []LineItem) {
	c.items = make([]LineItem, len(items))
	for i, li := range items {
		li.Customization = li.Customization.Clone()
		c.items[i] = li
	}
}
