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
	"github.com/xenking/kart-storefront/internal/domain/product"
)

const cartColumns = `id, user_id, session_cart_id, items,
	items_price, shipping_price, tax_price, total_price, created_at, updated_at`

const (
	// A signed-in user's own cart wins over an unclaimed cart of the same
	// session.
	findUserCartSQL = `SELECT ` + cartColumns + ` FROM carts
		WHERE user_id = $1 OR (user_id IS NULL AND session_cart_id = $2)
		ORDER BY user_id NULLS LAST, updated_at DESC
		LIMIT 1`

	findSessionCartSQL = `SELECT ` + cartColumns + ` FROM carts
		WHERE user_id IS NULL AND session_cart_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`

	insertCartSQL = `INSERT INTO carts (` + cartColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	updateCartSQL = `UPDATE carts SET user_id = $2, items = $3,
		items_price = $4, shipping_price = $5, tax_price = $6, total_price = $7, updated_at = $8
		WHERE id = $1`

	clearCartSQL = `UPDATE carts SET items = '[]',
		items_price = 0, shipping_price = 0, tax_price = 0, total_price = 0, updated_at = $2
		WHERE id = $1`
)

var _ cart.Store = (*CartRepository)(nil)

// CartRepository implements cart.Store backed by PostgreSQL. Carts keep
// their lines in a JSONB column. Inside InTx cart and product reads lock
// their rows.
type CartRepository struct {
	pool   *pgxpool.Pool
	db     DBTX
	locked bool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool, db: pool}
}

// InTx runs fn with a repository bound to a new transaction.
func (r *CartRepository) InTx(ctx context.Context, fn func(ctx context.Context, repo cart.Repository) error) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &CartRepository{pool: r.pool, db: tx, locked: true})
	})
}

// FindCart returns the cart of owner.
func (r *CartRepository) FindCart(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	return findCart(ctx, r.db, owner, r.locked)
}

// CreateCart inserts a cart.
func (r *CartRepository) CreateCart(ctx context.Context, c *cart.Cart) error {
	items, err := marshalJSON(c.Items)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, insertCartSQL,
		c.ID, nullString(c.Owner.UserID), c.Owner.SessionCartID, items,
		c.Prices.ItemsPrice, c.Prices.ShippingPrice, c.Prices.TaxPrice, c.Prices.TotalPrice,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating cart %q: %w", c.ID, err)
	}
	return nil
}

// UpdateCart persists the owner, lines and prices of a cart.
func (r *CartRepository) UpdateCart(ctx context.Context, c *cart.Cart) error {
	items, err := marshalJSON(c.Items)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, updateCartSQL,
		c.ID, nullString(c.Owner.UserID), items,
		c.Prices.ItemsPrice, c.Prices.ShippingPrice, c.Prices.TaxPrice, c.Prices.TotalPrice,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating cart %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

// GetProductForUpdate loads a product, locking its row inside InTx.
func (r *CartRepository) GetProductForUpdate(ctx context.Context, id string) (*product.Product, error) {
	sql := getProductByIDSQL
	if r.locked {
		sql = getProductForUpdateSQL
	}
	return getProduct(ctx, r.db, sql, id)
}

// UpdateProductStock persists the aggregate and per-size stock of p.
func (r *CartRepository) UpdateProductStock(ctx context.Context, p *product.Product) error {
	return updateProductStock(ctx, r.db, p)
}

func findCart(ctx context.Context, db DBTX, owner cart.Owner, lock bool) (*cart.Cart, error) {
	sql, args := findSessionCartSQL, []any{owner.SessionCartID}
	if owner.UserID != "" {
		sql, args = findUserCartSQL, []any{owner.UserID, owner.SessionCartID}
	}
	if lock {
		sql += ` FOR UPDATE`
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("finding cart: %w", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("finding cart: %w", err)
	}
	return &c, nil
}

func clearCart(ctx context.Context, db DBTX, id string, at time.Time) error {
	if _, err := db.Exec(ctx, clearCartSQL, id, at); err != nil {
		return fmt.Errorf("clearing cart %q: %w", id, err)
	}
	return nil
}

func scanCart(row pgx.CollectableRow) (cart.Cart, error) {
	var (
		c      cart.Cart
		userID *string
		items  []byte
	)
	err := row.Scan(
		&c.ID, &userID, &c.Owner.SessionCartID, &items,
		&c.Prices.ItemsPrice, &c.Prices.ShippingPrice, &c.Prices.TaxPrice, &c.Prices.TotalPrice,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	if userID != nil {
		c.Owner.UserID = *userID
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return c, fmt.Errorf("decoding items of cart %q: %w", c.ID, err)
	}
	return c, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
