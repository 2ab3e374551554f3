package mail

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/xenking/kart-storefront/internal/domain/pricing"
	"github.com/xenking/kart-storefront/internal/domain/user"
	"github.com/xenking/kart-storefront/internal/notify"
)

type mockDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *mockDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func testReceipt(kind notify.Kind) notify.Receipt {
	paid := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	return notify.Receipt{
		Kind:    kind,
		OrderID: "o1",
		Name:    "Ada",
		Email:   "ada@example.com",
		ShippingAddress: user.ShippingAddress{
			FullName:      "Ada Lovelace",
			StreetAddress: "1 Main St",
			City:          "London",
			PostalCode:    "1234",
			Country:       "UK",
		},
		PaymentMethod: "PayPal",
		Lines: []notify.Line{
			{Name: "Polo <Shirt>", Size: "M", Qty: 2, Price: decimal.RequireFromString("25")},
		},
		Prices:      pricing.Calculate([]pricing.Line{{Price: decimal.RequireFromString("25"), Qty: 2}}),
		PaidAt:      &paid,
		DeliveredAt: &paid,
	}
}

func TestSender_Render(t *testing.T) {
	s, err := NewSender(&mockDialer{}, "shop@example.com")
	require.NoError(t, err)

	body, err := s.Render(testReceipt(notify.KindPurchase))
	require.NoError(t, err)
	assert.Contains(t, body, "Order <strong>o1</strong>")
	assert.Contains(t, body, "Mar 5, 2024")
	assert.Contains(t, body, "Polo &lt;Shirt&gt;")
	assert.Contains(t, body, "Total: $67.50")
	assert.Contains(t, body, "Ada Lovelace")

	body, err = s.Render(testReceipt(notify.KindShipping))
	require.NoError(t, err)
	assert.Contains(t, body, "on its way")
	assert.Contains(t, body, "2 x Polo &lt;Shirt&gt; (M)")

	_, err = s.Render(notify.Receipt{Kind: "refund"})
	require.Error(t, err)
}

func TestSender_Send(t *testing.T) {
	d := &mockDialer{}
	s, err := NewSender(d, "shop@example.com")
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), testReceipt(notify.KindShipping)))
	require.Len(t, d.sent, 1)
	m := d.sent[0]
	assert.Equal(t, []string{"shop@example.com"}, m.GetHeader("From"))
	assert.Equal(t, []string{`"Ada" <ada@example.com>`}, m.GetHeader("To"))
	assert.Equal(t, []string{"Your order o1 is on its way"}, m.GetHeader("Subject"))
}

func TestSender_Send_DialError(t *testing.T) {
	d := &mockDialer{err: errors.New("connection refused")}
	s, err := NewSender(d, "shop@example.com")
	require.NoError(t, err)

	err = s.Send(context.Background(), testReceipt(notify.KindPurchase))
	require.ErrorContains(t, err, "connection refused")
}
