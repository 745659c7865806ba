package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/matcha-bar/internal/domain/drink"
	"github.com/xenking/matcha-bar/internal/domain/order"
	"github.com/xenking/matcha-bar/internal/domain/ordercode"
)

const (
	orderColumns = `id, code, customer_phone, customer_email, status, payment_method,
	payment_status, payment_reference, transaction_id, total_amount, notes, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	insertItemSQL = `INSERT INTO order_items (order_id, position, drink_name, matcha_level, size, ice,
	has_collagen, extras, quantity, unit_price, total_price)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getOrderByCodeSQL = `SELECT ` + orderColumns + ` FROM orders WHERE code = $1`

	listOrdersByStatusSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE status = ANY($1) ORDER BY created_at LIMIT $2`

	listOrdersCreatedSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`

	listItemsSQL = `SELECT order_id, drink_name, matcha_level, size, ice, has_collagen, extras,
	quantity, unit_price, total_price
	FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	updateStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
	WHERE code = $1 AND status = $2 RETURNING updated_at`

	settlePaymentSQL = `UPDATE orders SET status = $3, payment_status = $4, transaction_id = $5, updated_at = now()
	WHERE code = $1 AND status = $2 RETURNING updated_at`

	codeExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE code = $1)`

	listCodesSQL = `SELECT code FROM orders`

	deleteOrdersBeforeSQL = `DELETE FROM orders WHERE created_at < $1`
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ ordercode.Store  = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

type orderRow struct {
	ID               string          `db:"id"`
	Code             string          `db:"code"`
	CustomerPhone    string          `db:"customer_phone"`
	CustomerEmail    string          `db:"customer_email"`
	Status           string          `db:"status"`
	PaymentMethod    string          `db:"payment_method"`
	PaymentStatus    string          `db:"payment_status"`
	PaymentReference string          `db:"payment_reference"`
	TransactionID    string          `db:"transaction_id"`
	TotalAmount      decimal.Decimal `db:"total_amount"`
	Notes            string          `db:"notes"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

type itemRow struct {
	OrderID     string          `db:"order_id"`
	DrinkName   string          `db:"drink_name"`
	MatchaLevel int             `db:"matcha_level"`
	Size        string          `db:"size"`
	Ice         string          `db:"ice"`
	HasCollagen bool            `db:"has_collagen"`
	Extras      []string        `db:"extras"`
	Quantity    int             `db:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	TotalPrice  decimal.Decimal `db:"total_price"`
}

// Create persists the order and its items in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.Code, o.Phone, o.Email, string(o.Status), string(o.PaymentMethod),
			string(o.PaymentStatus), o.PaymentReference, o.TransactionID, o.Total, o.Notes,
			o.CreatedAt, o.UpdatedAt,
		); err != nil {
			return errors.Wrap(err, "insert order")
		}

		batch := &pgx.Batch{}
		for i, it := range o.Items {
			extras := it.Extras
			if extras == nil {
				extras = []string{}
			}
			batch.Queue(insertItemSQL,
				o.ID, i, it.DrinkName, it.MatchaLevel, string(it.Size), string(it.Ice),
				it.HasCollagen, extras, it.Quantity, it.UnitPrice, it.TotalPrice,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "insert items")
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.Code)
	}
	return nil
}

// GetByCode returns the order with code and its items.
func (r *OrderRepository) GetByCode(ctx context.Context, code string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", code)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[orderRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", code)
	}

	orders, err := r.withItems(ctx, []orderRow{row})
	if err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByStatus returns orders in any of statuses, oldest first.
func (r *OrderRepository) ListByStatus(ctx context.Context, statuses []order.Status, limit int) ([]order.Order, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return r.list(ctx, listOrdersByStatusSQL, names, limit)
}

// ListCreatedBetween returns orders created in [from, to), oldest first.
func (r *OrderRepository) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]order.Order, error) {
	return r.list(ctx, listOrdersCreatedSQL, from, to)
}

// DeleteCreatedBefore removes orders created before t and returns how many
// were deleted. Items are removed by cascade.
func (r *OrderRepository) DeleteCreatedBefore(ctx context.Context, t time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, deleteOrdersBeforeSQL, t)
	if err != nil {
		return 0, errors.Wrap(err, "delete orders")
	}
	return tag.RowsAffected(), nil
}

func (r *OrderRepository) list(ctx context.Context, sql string, args ...any) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	orderRows, err := pgx.CollectRows(rows, pgx.RowToStructByName[orderRow])
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	return r.withItems(ctx, orderRows)
}

// withItems loads items for orderRows with a single query.
func (r *OrderRepository) withItems(ctx context.Context, orderRows []orderRow) ([]order.Order, error) {
	if len(orderRows) == 0 {
		return []order.Order{}, nil
	}

	ids := make([]string, len(orderRows))
	for i, row := range orderRows {
		ids[i] = row.ID
	}
	rows, err := r.pool.Query(ctx, listItemsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	itemRows, err := pgx.CollectRows(rows, pgx.RowToStructByName[itemRow])
	if err != nil {
		return nil, errors.Wrap(err, "scan items")
	}

	byOrder := make(map[string][]order.Item, len(orderRows))
	for _, it := range itemRows {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], mapItem(it))
	}

	out := make([]order.Order, len(orderRows))
	for i, row := range orderRows {
		out[i] = mapOrder(row)
		out[i].Items = byOrder[row.ID]
	}
	return out, nil
}

// UpdateStatus moves the order from one status to another.
func (r *OrderRepository) UpdateStatus(ctx context.Context, code string, from, to order.Status) (time.Time, error) {
	var updatedAt time.Time
	err := r.pool.QueryRow(ctx, updateStatusSQL, code, string(from), string(to)).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, order.ErrNotFound
		}
		return time.Time{}, errors.Wrapf(err, "update order %q", code)
	}
	return updatedAt, nil
}

// SettlePayment moves the order out of from and records the payment outcome.
func (r *OrderRepository) SettlePayment(
	ctx context.Context,
	code string,
	from, to order.Status,
	ps order.PaymentStatus,
	transactionID string,
) (time.Time, error) {
	var updatedAt time.Time
	err := r.pool.QueryRow(ctx, settlePaymentSQL,
		code, string(from), string(to), string(ps), transactionID,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, order.ErrNotFound
		}
		return time.Time{}, errors.Wrapf(err, "settle payment of order %q", code)
	}
	return updatedAt, nil
}

// CodeExists reports whether an order already uses code.
func (r *OrderRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, codeExistsSQL, code).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "check code")
	}
	return exists, nil
}

// ListCodes returns every issued order code.
func (r *OrderRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listCodesSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list codes")
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "scan codes")
	}
	return codes, nil
}

func mapOrder(row orderRow) order.Order {
	return order.Order{
		ID:               row.ID,
		Code:             row.Code,
		Phone:            row.CustomerPhone,
		Email:            row.CustomerEmail,
		Status:           order.Status(row.Status),
		PaymentMethod:    order.PaymentMethod(row.PaymentMethod),
		PaymentStatus:    order.PaymentStatus(row.PaymentStatus),
		PaymentReference: row.PaymentReference,
		TransactionID:    row.TransactionID,
		Total:            row.TotalAmount,
		Notes:            row.Notes,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

func mapItem(row itemRow) order.Item {
	return order.Item{
		DrinkName:   row.DrinkName,
		MatchaLevel: row.MatchaLevel,
		Size:        drink.Size(row.Size),
		Ice:         drink.Ice(row.Ice),
		HasCollagen: row.HasCollagen,
		Extras:      row.Extras,
		Quantity:    row.Quantity,
		UnitPrice:   row.UnitPrice,
		TotalPrice:  row.TotalPrice,
	}
}
