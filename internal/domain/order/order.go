package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/pricing"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/user"
)

// Sentinel errors for order state transitions.
var (
	ErrNotFound            = errors.New("order not found")
	ErrAlreadyPaid         = errors.New("order is already paid")
	ErrNotPaid             = errors.New("order is not paid")
	ErrAlreadyDelivered    = errors.New("order is already delivered")
	ErrProviderUnavailable = errors.New("payment provider is not configured")
	ErrPaymentNotStarted   = errors.New("wallet payment was not started for this order")
)

// PreconditionError means checkout cannot proceed until the customer fixes
// something; RedirectTo names the step that fixes it.
type PreconditionError struct {
	Message    string
	RedirectTo string
}

func (e *PreconditionError) Error() string {
	return e.Message
}

// PaymentMismatchError means a provider capture does not match the order.
type PaymentMismatchError struct {
	OrderID string
	Reason  string
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payment for order %s does not match: %s", e.OrderID, e.Reason)
}

// PaymentResult is the provider confirmation recorded on an order.
type PaymentResult struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	EmailAddress string `json:"email_address"`
	PricePaid    string `json:"pricePaid"`
}

// Item is an order line. Name, price and image are snapshots taken when the
// order was placed.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Size      product.Size    `json:"size"`
	Qty       int             `json:"qty"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
}

// Customer is the name and email of the ordering user.
type Customer struct {
	Name  string
	Email string
}

// Order is a placed order. Payment and delivery flags only move from false
// to true, and delivery requires payment.
type Order struct {
	ID              string
	UserID          string
	Customer        Customer
	ShippingAddress user.ShippingAddress
	PaymentMethod   user.PaymentMethod
	PaymentResult   *PaymentResult
	Items           []Item
	Prices          pricing.Prices

	IsPaid      bool
	PaidAt      *time.Time
	IsDelivered bool
	DeliveredAt *time.Time
	CreatedAt   time.Time
}

// Lines returns the order lines in pricing form.
func (o *Order) Lines() []pricing.Line {
	lines := make([]pricing.Line, len(o.Items))
	for i, it := range o.Items {
		lines[i] = pricing.Line{Price: it.Price, Qty: it.Qty}
	}
	return lines
}

// Page selects one page of a listing.
type Page struct {
	Page  int
	Limit int
}

// Normalize fills defaults for page and limit.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = product.PageSize
	}
	return p
}

// Offset is the number of rows to skip.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ListFilter narrows the admin order listing by customer name.
type ListFilter struct {
	Page
	Query string
}

// MonthlySales is the revenue of one month, labelled MM/YY.
type MonthlySales struct {
	Month      string
	TotalSales decimal.Decimal
}

// Summary is the admin dashboard overview.
type Summary struct {
	OrdersCount   int
	ProductsCount int
	UsersCount    int
	TotalSales    decimal.Decimal
	Monthly       []MonthlySales
	Latest        []Order
}

// Repository defines read and admin operations on orders.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string, p Page) ([]Order, int, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	Delete(ctx context.Context, id string) error
	SetPaymentResult(ctx context.Context, id string, r PaymentResult) error
	Summary(ctx context.Context, latest int) (*Summary, error)
}

// Tx is the set of operations available inside Store.InTx. Rows read
// through it are locked until the transaction ends.
type Tx interface {
	// LockCart returns the owner's cart or cart.ErrNotFound.
	LockCart(ctx context.Context, owner cart.Owner) (*cart.Cart, error)
	ClearCart(ctx context.Context, cartID string, at time.Time) error
	GetUser(ctx context.Context, id string) (*user.User, error)

	Insert(ctx context.Context, o *Order) error
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	MarkPaid(ctx context.Context, id string, at time.Time, r *PaymentResult) error
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	DecrementStock(ctx context.Context, productID string, qty int) error
}

// Store runs Tx calls atomically.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Notifier sends customer emails about order progress.
type Notifier interface {
	PurchaseReceipt(ctx context.Context, o *Order) error
	ShippingReceipt(ctx context.Context, o *Order) error
}

// Capture is the outcome of capturing a wallet payment.
type Capture struct {
	ID         string
	Status     string
	PayerEmail string
	Amount     decimal.Decimal
}

// CaptureCompleted is the status of a successful wallet capture.
const CaptureCompleted = "COMPLETED"

// WalletProvider creates and captures wallet payments such as PayPal.
type WalletProvider interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal) (string, error)
	CaptureOrder(ctx context.Context, providerOrderID string) (*Capture, error)
}

// CardCharge is a succeeded card charge reported by the card provider.
type CardCharge struct {
	OrderID  string
	ChargeID string
	Email    string
	// AmountMinor is the charged amount in cents.
	AmountMinor int64
}

// SettlementPolicy decides what happens to stock when an order is paid.
type SettlementPolicy string

const (
	// SettleHold leaves stock alone: units were taken out when they entered
	// the cart and the order keeps them.
	SettleHold SettlementPolicy = "hold"
	// SettleDecrement subtracts the ordered quantities from aggregate stock
	// again when the order is paid.
	SettleDecrement SettlementPolicy = "decrement"
)

// ParseSettlementPolicy validates a configured policy name.
func ParseSettlementPolicy(s string) (SettlementPolicy, error) {
	switch SettlementPolicy(s) {
	case "", SettleHold:
		return SettleHold, nil
	case SettleDecrement:
		return SettleDecrement, nil
	default:
		return "", errors.Errorf("unknown settlement policy %q", s)
	}
}
