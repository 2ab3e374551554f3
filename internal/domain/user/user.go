package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/auth"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// PaymentMethod is how a customer settles an order.
type PaymentMethod string

const (
	PaymentPayPal         PaymentMethod = "PayPal"
	PaymentStripe         PaymentMethod = "Stripe"
	PaymentCashOnDelivery PaymentMethod = "CashOnDelivery"
)

// PaymentMethods lists the accepted payment methods.
var PaymentMethods = []PaymentMethod{PaymentPayPal, PaymentStripe, PaymentCashOnDelivery}

// ShippingAddress is where an order is delivered.
type ShippingAddress struct {
	FullName      string           `json:"fullName"`
	StreetAddress string           `json:"streetAddress"`
	City          string           `json:"city"`
	PostalCode    string           `json:"postalCode"`
	Country       string           `json:"country"`
	Lat           *decimal.Decimal `json:"lat,omitempty"`
	Lng           *decimal.Decimal `json:"lng,omitempty"`
}

// User is a registered customer or administrator.
type User struct {
	ID            string
	Name          string
	Email         string
	Role          auth.Role
	Address       *ShippingAddress
	PaymentMethod PaymentMethod
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PageSize is the default number of users per admin page.
const PageSize = 12

// ListFilter narrows the admin user listing.
type ListFilter struct {
	Query string
	Page  int
	Limit int
}

// Repository defines persistence operations for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	UpdateName(ctx context.Context, id, name string) error
	UpdateAddress(ctx context.Context, id string, addr ShippingAddress) error
	UpdatePaymentMethod(ctx context.Context, id string, method PaymentMethod) error
	UpdateNameRole(ctx context.Context, id, name string, role auth.Role) error
	List(ctx context.Context, f ListFilter) ([]User, int, error)
	Delete(ctx context.Context, id string) error
}
