// Package menu describes the drinks and add-ons offered by the bar.
package menu

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/matcha-bar/internal/domain/drink"
	"github.com/xenking/matcha-bar/internal/domain/pricing"
)

// ErrNotFound is returned when a drink is not on the menu.
var ErrNotFound = errors.New("drink not found")

// CustomDrink is the name of the drink assembled with the builder.
const CustomDrink = "Custom Matcha"

// Drink is a menu entry.
type Drink struct {
	ID            string
	Name          string
	Description   string
	FlavorProfile string
	Prices        map[drink.Size]decimal.Decimal
	Available     bool
}

// AddOn is an optional extra with a flat price.
type AddOn struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Available   bool
}

// Menu is the full offering.
type Menu struct {
	Drinks []Drink
	AddOns []AddOn
}

// Repository reads and writes the menu.
type Repository interface {
	Menu(ctx context.Context) (*Menu, error)
	UpsertDrink(ctx context.Context, d Drink) error
	UpsertAddOn(ctx context.Context, a AddOn) error
}

// Find returns the drink named name.
func (m *Menu) Find(name string) (Drink, bool) {
	for _, d := range m.Drinks {
		if d.Name == name {
			return d, true
		}
	}
	return Drink{}, false
}

// PricingTable builds a price table from the custom drink's size prices and
// the available add-ons. It falls back to pricing.DefaultTable when the
// custom drink is missing.
func (m *Menu) PricingTable() *pricing.Table {
	custom, ok := m.Find(CustomDrink)
	if !ok || len(custom.Prices) == 0 {
		return pricing.DefaultTable()
	}
	var addOns []pricing.AddOn
	for _, a := range m.AddOns {
		if a.Available {
			addOns = append(addOns, pricing.AddOn{Name: a.Name, Price: a.Price})
		}
	}
	return pricing.NewTable(custom.Prices, addOns)
}
