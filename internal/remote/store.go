package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pdvlite/go-pos-sync.git/internal/pos"
)

var ErrNotFound = errors.New("record not found")

// Store is the remote-store contract the engine consumes. Every create or
// update is idempotent on the record's primary key, so re-sending an
// already persisted record after an outage is a harmless upsert.
type Store interface {
	FetchProducts(ctx context.Context) ([]pos.Product, error)
	UpsertProduct(ctx context.Context, p pos.Product) error
	DeleteProduct(ctx context.Context, id string) error

	FetchOrders(ctx context.Context) ([]pos.Order, error)
	FetchPendingOrders(ctx context.Context) ([]pos.Order, error)
	FetchOrdersByIDs(ctx context.Context, ids []string) ([]pos.Order, error)
	UpsertOrder(ctx context.Context, o pos.Order) error
	UpdateOrderStatus(ctx context.Context, id string, status pos.Status) error
	UpdateKitchenStatus(ctx context.Context, id string, ks pos.KitchenStatus) error
	NextOrderNumber(ctx context.Context, dayStart time.Time) (string, error)

	FetchCustomers(ctx context.Context) ([]pos.Customer, error)
	GetCustomer(ctx context.Context, id string) (pos.Customer, error)
	GetCustomerByPhone(ctx context.Context, phone string) (pos.Customer, error)
	CreateCustomer(ctx context.Context, c pos.Customer) error
	UpdateCustomerPoints(ctx context.Context, id string, points int64) error
}

// PG implements Store over a Postgres pool.
type PG struct{ DB *pgxpool.Pool }

var _ Store = (*PG)(nil)

// ---- products ----

const productCols = `id, name, category, price, stock_bounded, stock_qty, available, combo_items, points_price, created_at, updated_at`

func (r *PG) FetchProducts(ctx context.Context) ([]pos.Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pos.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (pos.Product, error) {
	var (
		p      pos.Product
		price  pgtype.Numeric
		combos []byte
	)
	err := row.Scan(&p.ID, &p.Name, &p.Category, &price, &p.Stock.Bounded, &p.Stock.Qty,
		&p.Available, &combos, &p.PointsPrice, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return pos.Product{}, err
	}
	p.Price = numericToDecimal(price)
	if len(combos) > 0 {
		if err := json.Unmarshal(combos, &p.ComboItems); err != nil {
			return pos.Product{}, fmt.Errorf("product %s combo items: %w", p.ID, err)
		}
	}
	return p, nil
}

func (r *PG) UpsertProduct(ctx context.Context, p pos.Product) error {
	combos, err := json.Marshal(p.ComboItems)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO products(id, name, category, price, stock_bounded, stock_qty, available, combo_items, points_price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
		ON CONFLICT (id) DO UPDATE SET
		  name = excluded.name, category = excluded.category, price = excluded.price,
		  stock_bounded = excluded.stock_bounded, stock_qty = excluded.stock_qty,
		  available = excluded.available, combo_items = excluded.combo_items,
		  points_price = excluded.points_price, updated_at = now()
	`, p.ID, p.Name, p.Category, p.Price.String(), p.Stock.Bounded, p.Stock.Qty,
		p.Available, combos, p.PointsPrice, p.CreatedAt)
	return err
}

func (r *PG) DeleteProduct(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- orders ----

const orderCols = `id, order_number, created_at, items, subtotal, discount, total,
  payment_method, status, kitchen_status, customer_id, points_earned, points_redeemed,
  seller_name, updated_at`

func (r *PG) FetchOrders(ctx context.Context) ([]pos.Order, error) {
	return r.queryOrders(ctx, `SELECT `+orderCols+` FROM orders ORDER BY created_at DESC`)
}

func (r *PG) FetchPendingOrders(ctx context.Context) ([]pos.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderCols+` FROM orders WHERE status=$1 ORDER BY created_at`,
		string(pos.StatusPendingPayment))
}

func (r *PG) FetchOrdersByIDs(ctx context.Context, ids []string) ([]pos.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.queryOrders(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id = ANY($1) ORDER BY created_at`, ids)
}

func (r *PG) queryOrders(ctx context.Context, q string, args ...any) ([]pos.Order, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pos.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (pos.Order, error) {
	var (
		o                         pos.Order
		items                     []byte
		subtotal, discount, total pgtype.Numeric
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CreatedAt, &items, &subtotal, &discount, &total,
		&o.PaymentMethod, &o.Status, &o.KitchenStatus, &o.CustomerID, &o.PointsEarned,
		&o.PointsRedeemed, &o.SellerName, &o.UpdatedAt)
	if err != nil {
		return pos.Order{}, err
	}
	o.Subtotal = numericToDecimal(subtotal)
	o.Discount = numericToDecimal(discount)
	o.Total = numericToDecimal(total)
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return pos.Order{}, fmt.Errorf("order %s items: %w", o.ID, err)
		}
	}
	return o, nil
}

// UpsertOrder is keyed by the order's own client-generated id, so pushing a
// locally committed order after a reconnect never duplicates it.
func (r *PG) UpsertOrder(ctx context.Context, o pos.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO orders(id, order_number, created_at, items, subtotal, discount, total,
		  payment_method, status, kitchen_status, customer_id, points_earned, points_redeemed,
		  seller_name, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now())
		ON CONFLICT (id) DO UPDATE SET
		  order_number = excluded.order_number, items = excluded.items,
		  subtotal = excluded.subtotal, discount = excluded.discount, total = excluded.total,
		  payment_method = excluded.payment_method, status = excluded.status,
		  kitchen_status = excluded.kitchen_status, customer_id = excluded.customer_id,
		  points_earned = excluded.points_earned, points_redeemed = excluded.points_redeemed,
		  seller_name = excluded.seller_name, updated_at = now()
	`, o.ID, o.OrderNumber, o.CreatedAt, items, o.Subtotal.String(), o.Discount.String(),
		o.Total.String(), string(o.PaymentMethod), string(o.Status), string(o.KitchenStatus),
		o.CustomerID, o.PointsEarned, o.PointsRedeemed, o.SellerName)
	return err
}

func (r *PG) UpdateOrderStatus(ctx context.Context, id string, status pos.Status) error {
	ct, err := r.DB.Exec(ctx,
		`UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PG) UpdateKitchenStatus(ctx context.Context, id string, ks pos.KitchenStatus) error {
	ct, err := r.DB.Exec(ctx,
		`UPDATE orders SET kitchen_status=$2, updated_at=now() WHERE id=$1`, id, string(ks))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NextOrderNumber computes max+1 over today's numbers in a single statement.
// Narrows the race window between concurrent tills; does not close it.
func (r *PG) NextOrderNumber(ctx context.Context, dayStart time.Time) (string, error) {
	var next string
	err := r.DB.QueryRow(ctx, `
		SELECT (COALESCE(MAX(CASE WHEN order_number ~ '^[0-9]+$' THEN order_number::int ELSE 0 END), 0) + 1)::text
		FROM orders WHERE created_at >= $1
	`, dayStart).Scan(&next)
	return next, err
}

// ---- customers ----

func (r *PG) FetchCustomers(ctx context.Context) ([]pos.Customer, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT id, phone, name, points, created_at, updated_at FROM customers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pos.Customer
	for rows.Next() {
		var c pos.Customer
		if err := rows.Scan(&c.ID, &c.Phone, &c.Name, &c.Points, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PG) GetCustomer(ctx context.Context, id string) (pos.Customer, error) {
	return r.getCustomer(ctx, `WHERE id=$1`, id)
}

func (r *PG) GetCustomerByPhone(ctx context.Context, phone string) (pos.Customer, error) {
	return r.getCustomer(ctx, `WHERE phone=$1`, phone)
}

func (r *PG) getCustomer(ctx context.Context, where, arg string) (pos.Customer, error) {
	var c pos.Customer
	err := r.DB.QueryRow(ctx,
		`SELECT id, phone, name, points, created_at, updated_at FROM customers `+where, arg).
		Scan(&c.ID, &c.Phone, &c.Name, &c.Points, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return pos.Customer{}, ErrNotFound
	}
	return c, err
}

func (r *PG) CreateCustomer(ctx context.Context, c pos.Customer) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO customers(id, phone, name, points, created_at, updated_at)
		VALUES ($1,$2,$3,$4,now(),now())
		ON CONFLICT (id) DO NOTHING
	`, c.ID, c.Phone, c.Name, c.Points)
	return err
}

// UpdateCustomerPoints locks the row while writing so a single store never
// interleaves two balance writes; the caller's read-modify-write across
// actors remains best-effort.
func (r *PG) UpdateCustomerPoints(ctx context.Context, id string, points int64) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur int64
	if err := tx.QueryRow(ctx, `SELECT points FROM customers WHERE id=$1 FOR UPDATE`, id).Scan(&cur); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if points < 0 {
		return fmt.Errorf("negative balance for customer %s", id)
	}
	if _, err := tx.Exec(ctx, `UPDATE customers SET points=$2, updated_at=now() WHERE id=$1`, id, points); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	v, err := n.Value()
	if err != nil || v == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}
