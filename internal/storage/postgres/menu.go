package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/matcha-bar/internal/domain/drink"
	"github.com/xenking/matcha-bar/internal/domain/menu"
)

const (
	listDrinksSQL = `SELECT id, name, description, flavor_profile,
	base_price_small, base_price_medium, base_price_large, available
	FROM drinks ORDER BY position, name`

	listAddOnsSQL = `SELECT id, name, description, price, available FROM add_ons ORDER BY name`

	upsertDrinkSQL = `INSERT INTO drinks (id, name, description, flavor_profile,
	base_price_small, base_price_medium, base_price_large, available, position)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		flavor_profile = EXCLUDED.flavor_profile,
		base_price_small = EXCLUDED.base_price_small,
		base_price_medium = EXCLUDED.base_price_medium,
		base_price_large = EXCLUDED.base_price_large,
		available = EXCLUDED.available,
		position = EXCLUDED.position,
		updated_at = now()`

	upsertAddOnSQL = `INSERT INTO add_ons (id, name, description, price, available)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		price = EXCLUDED.price,
		available = EXCLUDED.available`

	nextDrinkPositionSQL = `SELECT COALESCE(
	(SELECT position FROM drinks WHERE id = $1),
	(SELECT COALESCE(MAX(position), 0) + 1 FROM drinks))`
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements menu.Repository backed by PostgreSQL.
type MenuRepository struct {
	pool *pgxpool.Pool
}

// NewMenuRepository returns a MenuRepository that uses the given pool.
func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

type drinkRow struct {
	ID              string          `db:"id"`
	Name            string          `db:"name"`
	Description     string          `db:"description"`
	FlavorProfile   string          `db:"flavor_profile"`
	BasePriceSmall  decimal.Decimal `db:"base_price_small"`
	BasePriceMedium decimal.Decimal `db:"base_price_medium"`
	BasePriceLarge  decimal.Decimal `db:"base_price_large"`
	Available       bool            `db:"available"`
}

type addOnRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	Available   bool            `db:"available"`
}

// Menu returns all drinks in display order and all add-ons by name.
func (r *MenuRepository) Menu(ctx context.Context) (*menu.Menu, error) {
	rows, err := r.pool.Query(ctx, listDrinksSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list drinks")
	}
	drinks, err := pgx.CollectRows(rows, pgx.RowToStructByName[drinkRow])
	if err != nil {
		return nil, errors.Wrap(err, "scan drinks")
	}

	rows, err = r.pool.Query(ctx, listAddOnsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list add-ons")
	}
	addOns, err := pgx.CollectRows(rows, pgx.RowToStructByName[addOnRow])
	if err != nil {
		return nil, errors.Wrap(err, "scan add-ons")
	}

	m := &menu.Menu{
		Drinks: make([]menu.Drink, len(drinks)),
		AddOns: make([]menu.AddOn, len(addOns)),
	}
	for i, d := range drinks {
		m.Drinks[i] = menu.Drink{
			ID:            d.ID,
			Name:          d.Name,
			Description:   d.Description,
			FlavorProfile: d.FlavorProfile,
			Prices: map[drink.Size]decimal.Decimal{
				drink.SizeSmall:  d.BasePriceSmall,
				drink.SizeMedium: d.BasePriceMedium,
				drink.SizeLarge:  d.BasePriceLarge,
			},
			Available: d.Available,
		}
	}
	for i, a := range addOns {
		m.AddOns[i] = menu.AddOn(a)
	}
	return m, nil
}

// UpsertDrink inserts or updates a drink. New drinks are appended to the end
// of the display order.
func (r *MenuRepository) UpsertDrink(ctx context.Context, d menu.Drink) error {
	var position int
	if err := r.pool.QueryRow(ctx, nextDrinkPositionSQL, d.ID).Scan(&position); err != nil {
		return errors.Wrapf(err, "position for drink %q", d.ID)
	}
	_, err := r.pool.Exec(ctx, upsertDrinkSQL,
		d.ID, d.Name, d.Description, d.FlavorProfile,
		d.Prices[drink.SizeSmall], d.Prices[drink.SizeMedium], d.Prices[drink.SizeLarge],
		d.Available, position,
	)
	if err != nil {
		return errors.Wrapf(err, "upsert drink %q", d.ID)
	}
	return nil
}

// UpsertAddOn inserts or updates an add-on.
func (r *MenuRepository) UpsertAddOn(ctx context.Context, a menu.AddOn) error {
	if _, err := r.pool.Exec(ctx, upsertAddOnSQL, a.ID, a.Name, a.Description, a.Price, a.Available); err != nil {
		return errors.Wrapf(err, "upsert add-on %q", a.ID)
	}
	return nil
}
