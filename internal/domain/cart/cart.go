package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/pricing"
	"github.com/xenking/kart-storefront/internal/domain/product"
)

var (
	// ErrNoSession is returned when the caller carries no session cart token.
	ErrNoSession = errors.New("cart session not found")
	// ErrNotFound is returned when the caller has no cart.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when removing a line the cart does not hold.
	ErrItemNotFound = errors.New("item not found in cart")
)

// OutOfStockError indicates the product is not offered in the requested size
// or that size has no stock left.
type OutOfStockError struct {
	ProductID string
	Size      product.Size
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s is out of stock in size %s", e.ProductID, e.Size)
}

// InsufficientStockError indicates the cart already holds as many units as
// the product has in stock.
type InsufficientStockError struct {
	ProductID string
	Size      product.Size
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product %s size %s", e.ProductID, e.Size)
}

// Owner identifies whose cart it is. A cart always has a session token and
// gains a UserID once its owner signs in.
type Owner struct {
	UserID        string
	SessionCartID string
}

// Item is a cart line. A cart holds at most one line per product and size.
// Qty units of the size are reserved from product stock while the line
// exists.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Size      product.Size    `json:"size"`
	Qty       int             `json:"qty"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
}

// Cart is a shopper's pending selection.
type Cart struct {
	ID     string
	Owner  Owner
	Items  []Item
	Prices pricing.Prices

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Quantity returns the number of units held across all lines.
func (c *Cart) Quantity() int {
	n := 0
	for _, it := range c.Items {
		n += it.Qty
	}
	return n
}

// Lines returns the cart lines in pricing form.
func (c *Cart) Lines() []pricing.Line {
	lines := make([]pricing.Line, len(c.Items))
	for i, it := range c.Items {
		lines[i] = pricing.Line{Price: it.Price, Qty: it.Qty}
	}
	return lines
}

// Reprice recomputes the derived prices from the lines.
func (c *Cart) Reprice() {
	c.Prices = pricing.Calculate(c.Lines())
}

// Clear empties the cart and zeroes its prices.
func (c *Cart) Clear() {
	c.Items = []Item{}
	c.Prices = pricing.Zero()
}

func (c *Cart) indexOf(productID string, size product.Size) int {
	for i, it := range c.Items {
		if it.ProductID == productID && it.Size == size {
			return i
		}
	}
	return -1
}

// Repository defines persistence operations used by cart mutations.
type Repository interface {
	// FindCart returns the cart of owner or ErrNotFound. For a signed-in
	// owner an unclaimed cart with the same session token is returned when
	// the user has none. Inside Store.InTx the cart row is locked.
	FindCart(ctx context.Context, owner Owner) (*Cart, error)
	CreateCart(ctx context.Context, c *Cart) error
	UpdateCart(ctx context.Context, c *Cart) error
	// GetProductForUpdate loads a product and locks it until the
	// surrounding transaction ends.
	GetProductForUpdate(ctx context.Context, id string) (*product.Product, error)
	UpdateProductStock(ctx context.Context, p *product.Product) error
}

// Store runs repository calls atomically.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
