// Package paypal adapts PayPal Orders v2 to order.WalletProvider.
package paypal

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/order"
)

// Currency is the currency every wallet payment is made in.
const Currency = "USD"

var _ order.WalletProvider = (*Wallet)(nil)

// Config holds PayPal REST credentials.
type Config struct {
	ClientID string
	Secret   string
	// APIBase defaults to the sandbox.
	APIBase string
}

// Wallet creates and captures PayPal orders.
type Wallet struct {
	client *paypal.Client
}

// New creates a Wallet. The access token is fetched lazily on first use.
func New(cfg Config) (*Wallet, error) {
	base := cfg.APIBase
	if base == "" {
		base = paypal.APIBaseSandBox
	}
	c, err := paypal.NewClient(cfg.ClientID, cfg.Secret, base)
	if err != nil {
		return nil, errors.Wrap(err, "create paypal client")
	}
	return &Wallet{client: c}, nil
}

// CreateOrder opens a PayPal order for amount and returns its id.
func (w *Wallet) CreateOrder(ctx context.Context, amount decimal.Decimal) (string, error) {
	o, err := w.client.CreateOrder(ctx, paypal.OrderIntentCapture,
		[]paypal.PurchaseUnitRequest{{
			Amount: &paypal.PurchaseUnitAmount{
				Currency: Currency,
				Value:    amount.StringFixed(2),
			},
		}},
		nil, nil,
	)
	if err != nil {
		return "", errors.Wrap(err, "create paypal order")
	}
	return o.ID, nil
}

// CaptureOrder captures an approved PayPal order.
func (w *Wallet) CaptureOrder(ctx context.Context, providerOrderID string) (*order.Capture, error) {
	res, err := w.client.CaptureOrder(ctx, providerOrderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return nil, errors.Wrapf(err, "capture paypal order %s", providerOrderID)
	}

	c := &order.Capture{ID: res.ID, Status: res.Status}
	if res.Payer != nil {
		c.PayerEmail = res.Payer.EmailAddress
	}
	for _, pu := range res.PurchaseUnits {
		if pu.Payments == nil || len(pu.Payments.Captures) == 0 {
			continue
		}
		amt := pu.Payments.Captures[0].Amount
		if amt == nil {
			continue
		}
		v, err := decimal.NewFromString(amt.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "parse captured amount %q", amt.Value)
		}
		c.Amount = v
		break
	}
	return c, nil
}
