package menu

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/matcha-bar/internal/domain/drink"
	"github.com/xenking/matcha-bar/internal/domain/pricing"
)

func TestPricingTable_FromMenu(t *testing.T) {
	m := &Menu{
		Drinks: []Drink{{
			Name: CustomDrink,
			Prices: map[drink.Size]decimal.Decimal{
				drink.SizeSmall:  decimal.NewFromInt(11),
				drink.SizeMedium: decimal.NewFromInt(13),
				drink.SizeLarge:  decimal.NewFromInt(16),
			},
		}},
		AddOns: []AddOn{
			{Name: pricing.CollagenBoost, Price: decimal.NewFromInt(40), Available: true},
			{Name: "Oat Milk", Price: decimal.NewFromInt(5), Available: false},
		},
	}

	table := m.PricingTable()
	p, err := table.Price(drink.SizeLarge, []string{pricing.CollagenBoost})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(56).Equal(p))
	assert.False(t, table.IsAddOn("Oat Milk"), "unavailable add-ons are not priced")
}

func TestPricingTable_FallsBackToDefault(t *testing.T) {
	table := (&Menu{}).PricingTable()
	p, err := table.Price(drink.SizeMedium, nil)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(12).Equal(p))
}
