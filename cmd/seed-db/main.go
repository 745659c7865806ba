// Command seed-db loads the drink menu into the database.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/matcha-bar/internal/domain/drink"
	"github.com/xenking/matcha-bar/internal/domain/menu"
	"github.com/xenking/matcha-bar/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		menuFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&menuFile, "menu-file", "db/seed/menu.json", "path to menu JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, menuFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, menuFile string) error {
	slog.Info("reading menu file", slog.String("path", menuFile))

	data, err := os.ReadFile(menuFile)
	if err != nil {
		return errors.Wrap(err, "read menu file")
	}
	m, err := parseMenu(data)
	if err != nil {
		return errors.Wrap(err, "parse menu")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return seedMenu(ctx, postgres.NewMenuRepository(pool), m)
}

func seedMenu(ctx context.Context, repo menu.Repository, m *menu.Menu) error {
	slog.Info("upserting menu", slog.Int("drinks", len(m.Drinks)), slog.Int("add_ons", len(m.AddOns)))

	for _, d := range m.Drinks {
		if err := repo.UpsertDrink(ctx, d); err != nil {
			return err
		}
		slog.Info("upserted drink", slog.String("id", d.ID), slog.String("name", d.Name))
	}
	for _, a := range m.AddOns {
		if err := repo.UpsertAddOn(ctx, a); err != nil {
			return err
		}
		slog.Info("upserted add-on", slog.String("id", a.ID), slog.String("name", a.Name))
	}
	return nil
}

// parseMenu decodes the seed file. Entries are available unless they set
// "available": false, and every drink must be priced in all sizes.
func parseMenu(data []byte) (*menu.Menu, error) {
	m := &menu.Menu{}
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "drinks":
			return d.Arr(func(d *jx.Decoder) error {
				dr, err := parseDrink(d)
				if err != nil {
					return err
				}
				m.Drinks = append(m.Drinks, dr)
				return nil
			})
		case "addOns":
			return d.Arr(func(d *jx.Decoder) error {
				a, err := parseAddOn(d)
				if err != nil {
					return err
				}
				m.AddOns = append(m.AddOns, a)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	if _, ok := m.Find(menu.CustomDrink); !ok {
		return nil, errors.Errorf("menu has no %q drink", menu.CustomDrink)
	}
	return m, nil
}

func parseDrink(d *jx.Decoder) (menu.Drink, error) {
	dr := menu.Drink{Prices: make(map[drink.Size]decimal.Decimal), Available: true}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			dr.ID, err = d.Str()
		case "name":
			dr.Name, err = d.Str()
		case "description":
			dr.Description, err = d.Str()
		case "flavorProfile":
			dr.FlavorProfile, err = d.Str()
		case "available":
			dr.Available, err = d.Bool()
		case "prices":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				size, err := drink.ParseSize(key)
				if err != nil {
					return err
				}
				p, err := parseAmount(d)
				if err != nil {
					return err
				}
				dr.Prices[size] = p
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return dr, errors.Wrapf(err, "drink %q", dr.ID)
	}
	if dr.ID == "" || dr.Name == "" {
		return dr, errors.New("drink needs an id and a name")
	}
	for _, size := range drink.Sizes {
		if _, ok := dr.Prices[size]; !ok {
			return dr, errors.Errorf("drink %q has no %s price", dr.ID, size)
		}
	}
	return dr, nil
}

func parseAddOn(d *jx.Decoder) (menu.AddOn, error) {
	a := menu.AddOn{Available: true}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			a.ID, err = d.Str()
		case "name":
			a.Name, err = d.Str()
		case "description":
			a.Description, err = d.Str()
		case "available":
			a.Available, err = d.Bool()
		case "price":
			a.Price, err = parseAmount(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return a, errors.Wrapf(err, "add-on %q", a.ID)
	}
	if a.ID == "" || a.Name == "" {
		return a, errors.New("add-on needs an id and a name")
	}
	return a, nil
}

// parseAmount accepts prices as strings ("12.00") or numbers (12).
func parseAmount(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.Errorf("price must be a string or number, got %s", d.Next())
	}
}
