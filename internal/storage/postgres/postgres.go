// Package postgres implements the order, order-code and menu stores on
// PostgreSQL.
package postgres

import (
	"context"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/matcha-bar/db"
)

// NewPool creates a pgxpool.Pool that scans NUMERIC into decimal.Decimal.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}
	return pool, nil
}

// RunMigrations applies the embedded schema. Statements are idempotent.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}
