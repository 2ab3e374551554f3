// Package notify publishes order receipts to Kafka and delivers them from
// there.
package notify

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/pricing"
	"github.com/xenking/kart-storefront/internal/domain/user"
)

// Kind tells which email a receipt becomes.
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindShipping Kind = "shipping"
)

// Line is one ordered product in a receipt.
type Line struct {
	Name  string          `json:"name"`
	Size  string          `json:"size"`
	Qty   int             `json:"qty"`
	Image string          `json:"image"`
	Price decimal.Decimal `json:"price"`
}

// Receipt is the self-contained payload of a receipt email.
type Receipt struct {
	Kind            Kind                 `json:"kind"`
	OrderID         string               `json:"orderId"`
	Name            string               `json:"name"`
	Email           string               `json:"email"`
	ShippingAddress user.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string               `json:"paymentMethod"`
	Lines           []Line               `json:"lines"`
	Prices          pricing.Prices       `json:"prices"`
	PaidAt          *time.Time           `json:"paidAt,omitempty"`
	DeliveredAt     *time.Time           `json:"deliveredAt,omitempty"`
	CreatedAt       time.Time            `json:"createdAt"`
}

// NewReceipt snapshots o into a receipt of the given kind.
func NewReceipt(kind Kind, o *order.Order) Receipt {
	lines := make([]Line, len(o.Items))
	for i, it := range o.Items {
		lines[i] = Line{
			Name:  it.Name,
			Size:  string(it.Size),
			Qty:   it.Qty,
			Image: it.Image,
			Price: it.Price,
		}
	}
	return Receipt{
		Kind:            kind,
		OrderID:         o.ID,
		Name:            o.Customer.Name,
		Email:           o.Customer.Email,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   string(o.PaymentMethod),
		Lines:           lines,
		Prices:          o.Prices,
		PaidAt:          o.PaidAt,
		DeliveredAt:     o.DeliveredAt,
		CreatedAt:       o.CreatedAt,
	}
}

// Subject is the email subject line of r.
func (r Receipt) Subject() string {
	switch r.Kind {
	case KindShipping:
		return "Your order " + r.OrderID + " is on its way"
	default:
		return "Order confirmation " + r.OrderID
	}
}
