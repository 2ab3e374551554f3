package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/user"
)

const orderColumns = `o.id, o.user_id, u.name, u.email, o.shipping_address, o.payment_method, o.payment_result,
	o.items_price, o.shipping_price, o.tax_price, o.total_price,
	o.is_paid, o.paid_at, o.is_delivered, o.delivered_at, o.created_at`

const (
	getOrderSQL = `SELECT ` + orderColumns + `
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE o.id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE OF o`

	orderItemsSQL = `SELECT order_id, product_id, name, slug, size, qty, image, price
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, name, size`

	insertOrderSQL = `INSERT INTO orders (id, user_id, shipping_address, payment_method, payment_result,
		items_price, shipping_price, tax_price, total_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, name, slug, size, qty, image, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	markOrderPaidSQL = `UPDATE orders SET is_paid = TRUE, paid_at = $2,
		payment_result = COALESCE($3, payment_result)
		WHERE id = $1`

	markOrderDeliveredSQL = `UPDATE orders SET is_delivered = TRUE, delivered_at = $2 WHERE id = $1`

	setPaymentResultSQL = `UPDATE orders SET payment_result = $2 WHERE id = $1 AND NOT is_paid`

	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	countUserOrdersSQL = `SELECT COUNT(*) FROM orders WHERE user_id = $1`

	listUserOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id
		LIMIT $2 OFFSET $3`

	countOrdersSQL = `SELECT COUNT(*) FROM orders o JOIN users u ON u.id = o.user_id
		WHERE ($1::text = '' OR u.name ILIKE '%' || $1::text || '%')`

	listOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE ($1::text = '' OR u.name ILIKE '%' || $1::text || '%')
		ORDER BY o.created_at DESC, o.id
		LIMIT $2 OFFSET $3`

	summaryCountsSQL = `SELECT
		(SELECT COUNT(*) FROM orders),
		(SELECT COUNT(*) FROM products),
		(SELECT COUNT(*) FROM users),
		(SELECT COALESCE(SUM(total_price), 0) FROM orders)`

	monthlySalesSQL = `SELECT to_char(date_trunc('month', created_at), 'MM/YY') AS month, SUM(total_price)
		FROM orders
		GROUP BY date_trunc('month', created_at)
		ORDER BY date_trunc('month', created_at)`

	latestOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders o JOIN users u ON u.id = o.user_id
		ORDER BY o.created_at DESC, o.id
		LIMIT $1`
)

var (
	_ order.Store = (*OrderRepository)(nil)
	_ order.Tx    = (*orderTx)(nil)
)

// OrderRepository implements order.Store backed by PostgreSQL. Order lines
// live in the order_items table.
type OrderRepository struct {
	pool *pgxpool.Pool
	db   DBTX
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool, db: pool}
}

// InTx runs fn inside a transaction.
func (r *OrderRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &orderTx{db: tx})
	})
}

// GetByID returns an order with its lines and customer.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, r.db, getOrderSQL, id)
}

// ListByUser returns one page of a user's orders and their total count.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, p order.Page) ([]order.Order, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, countUserOrdersSQL, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders of user %q: %w", userID, err)
	}
	orders, err := listOrders(ctx, r.db, listUserOrdersSQL, userID, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders of user %q: %w", userID, err)
	}
	return orders, total, nil
}

// List returns one page of all orders filtered by customer name.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, countOrdersSQL, f.Query).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}
	orders, err := listOrders(ctx, r.db, listOrdersSQL, f.Query, f.Limit, f.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, total, nil
}

// Delete removes an order and its lines.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// SetPaymentResult stores a provisional payment result on an unpaid order.
func (r *OrderRepository) SetPaymentResult(ctx context.Context, id string, res order.PaymentResult) error {
	b, err := marshalJSON(res)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, setPaymentResultSQL, id, b)
	if err != nil {
		return fmt.Errorf("setting payment result of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrAlreadyPaid
	}
	return nil
}

// Summary returns dashboard counts, monthly sales and the latest orders.
func (r *OrderRepository) Summary(ctx context.Context, latest int) (*order.Summary, error) {
	var s order.Summary
	err := r.db.QueryRow(ctx, summaryCountsSQL).Scan(&s.OrdersCount, &s.ProductsCount, &s.UsersCount, &s.TotalSales)
	if err != nil {
		return nil, fmt.Errorf("counting summary: %w", err)
	}

	rows, err := r.db.Query(ctx, monthlySalesSQL)
	if err != nil {
		return nil, fmt.Errorf("monthly sales: %w", err)
	}
	s.Monthly, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.MonthlySales, error) {
		var m order.MonthlySales
		err := row.Scan(&m.Month, &m.TotalSales)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("monthly sales: %w", err)
	}

	s.Latest, err = listOrders(ctx, r.db, latestOrdersSQL, latest)
	if err != nil {
		return nil, fmt.Errorf("latest orders: %w", err)
	}
	return &s, nil
}

// orderTx is the transaction-bound implementation of order.Tx.
type orderTx struct {
	db DBTX
}

func (t *orderTx) LockCart(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	return findCart(ctx, t.db, owner, true)
}

func (t *orderTx) ClearCart(ctx context.Context, cartID string, at time.Time) error {
	return clearCart(ctx, t.db, cartID, at)
}

func (t *orderTx) GetUser(ctx context.Context, id string) (*user.User, error) {
	return getUser(ctx, t.db, id)
}

func (t *orderTx) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, t.db, getOrderForUpdateSQL, id)
}

func (t *orderTx) Insert(ctx context.Context, o *order.Order) error {
	addr, err := marshalJSON(o.ShippingAddress)
	if err != nil {
		return err
	}
	var result []byte
	if o.PaymentResult != nil {
		if result, err = marshalJSON(o.PaymentResult); err != nil {
			return err
		}
	}

	batch := &pgx.Batch{}
	batch.Queue(insertOrderSQL,
		o.ID, o.UserID, addr, string(o.PaymentMethod), result,
		o.Prices.ItemsPrice, o.Prices.ShippingPrice, o.Prices.TaxPrice, o.Prices.TotalPrice,
		o.CreatedAt,
	)
	for _, it := range o.Items {
		batch.Queue(insertOrderItemSQL,
			o.ID, it.ProductID, it.Name, it.Slug, string(it.Size), it.Qty, it.Image, it.Price,
		)
	}
	if err := t.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func (t *orderTx) MarkPaid(ctx context.Context, id string, at time.Time, res *order.PaymentResult) error {
	var b []byte
	if res != nil {
		var err error
		if b, err = marshalJSON(res); err != nil {
			return err
		}
	}
	if _, err := t.db.Exec(ctx, markOrderPaidSQL, id, at, b); err != nil {
		return fmt.Errorf("marking order %q paid: %w", id, err)
	}
	return nil
}

func (t *orderTx) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	if _, err := t.db.Exec(ctx, markOrderDeliveredSQL, id, at); err != nil {
		return fmt.Errorf("marking order %q delivered: %w", id, err)
	}
	return nil
}

func (t *orderTx) DecrementStock(ctx context.Context, productID string, qty int) error {
	if _, err := t.db.Exec(ctx, decrementStockSQL, productID, qty); err != nil {
		return fmt.Errorf("decrementing stock of product %q: %w", productID, err)
	}
	return nil
}

func getOrder(ctx context.Context, db DBTX, sql, id string) (*order.Order, error) {
	rows, err := db.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := attachItems(ctx, db, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func listOrders(ctx context.Context, db DBTX, sql string, args ...any) ([]order.Order, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, err
	}
	if err := attachItems(ctx, db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the lines of all orders with one query.
func attachItems(ctx context.Context, db DBTX, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := db.Query(ctx, orderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("getting order items: %w", err)
	}
	var (
		orderID string
		it      order.Item
		size    string
	)
	_, err = pgx.ForEachRow(rows,
		[]any{&orderID, &it.ProductID, &it.Name, &it.Slug, &size, &it.Qty, &it.Image, &it.Price},
		func() error {
			it.Size = product.Size(size)
			o := byID[orderID]
			o.Items = append(o.Items, it)
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("getting order items: %w", err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		addr   []byte
		method string
		result []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Customer.Name, &o.Customer.Email, &addr, &method, &result,
		&o.Prices.ItemsPrice, &o.Prices.ShippingPrice, &o.Prices.TaxPrice, &o.Prices.TotalPrice,
		&o.IsPaid, &o.PaidAt, &o.IsDelivered, &o.DeliveredAt, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	o.PaymentMethod = user.PaymentMethod(method)
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("decoding address of order %q: %w", o.ID, err)
	}
	if result != nil {
		o.PaymentResult = &order.PaymentResult{}
		if err := json.Unmarshal(result, o.PaymentResult); err != nil {
			return o, fmt.Errorf("decoding payment result of order %q: %w", o.ID, err)
		}
	}
	return o, nil
}
