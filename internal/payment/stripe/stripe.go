// Package stripe adapts Stripe payment intents and charge webhooks to the
// order domain.
package stripe

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/xenking/kart-storefront/internal/domain/order"
)

// MetadataOrderID is the intent metadata key carrying the storefront order id.
const MetadataOrderID = "orderId"

// ErrInvalidSignature is returned for webhook payloads that fail
// verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

var _ order.CardProvider = (*Card)(nil)

// Card creates payment intents for orders.
type Card struct {
	client *paymentintent.Client
}

// NewCard creates a Card using the secret key. backend may be nil to use
// the default Stripe API backend.
func NewCard(secretKey string, backend stripe.Backend) *Card {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Card{client: &paymentintent.Client{B: backend, Key: secretKey}}
}

// CreatePayment creates a USD payment intent tagged with orderID and returns
// its client secret.
func (c *Card) CreatePayment(ctx context.Context, orderID string, amountMinor int64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataOrderID, orderID)

	pi, err := c.client.New(params)
	if err != nil {
		return "", errors.Wrapf(err, "create payment intent for order %s", orderID)
	}
	return pi.ClientSecret, nil
}

// Webhook verifies Stripe webhook deliveries.
type Webhook struct {
	secret string
}

// NewWebhook creates a Webhook for the endpoint signing secret.
func NewWebhook(secret string) *Webhook {
	return &Webhook{secret: secret}
}

// Parse verifies payload against the Stripe-Signature header. It returns the
// succeeded charge, or nil for event types the storefront ignores.
func (w *Webhook) Parse(payload []byte, signature string) (*order.CardCharge, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, w.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	if ev.Type != stripe.EventTypeChargeSucceeded {
		return nil, nil
	}
	if ev.Data == nil {
		return nil, errors.New("charge event without data")
	}

	var ch stripe.Charge
	if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
		return nil, errors.Wrap(err, "decode charge")
	}

	out := &order.CardCharge{
		OrderID:     ch.Metadata[MetadataOrderID],
		ChargeID:    ch.ID,
		Email:       ch.ReceiptEmail,
		AmountMinor: ch.Amount,
	}
	if ch.BillingDetails != nil && ch.BillingDetails.Email != "" {
		out.Email = ch.BillingDetails.Email
	}
	return out, nil
}
