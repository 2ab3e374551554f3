// Package pricing computes the derived price fields shared by carts and
// orders.
package pricing

import "github.com/shopspring/decimal"

var (
	freeShippingOver = decimal.NewFromInt(100)
	flatShipping     = decimal.NewFromInt(10)
	taxRate          = decimal.RequireFromString("0.15")
)

// Line is a unit price and quantity pair.
type Line struct {
	Price decimal.Decimal
	Qty   int
}

// Prices holds the four derived totals of a cart or order. Each field is
// rounded to two decimal places on its own, so ItemsPrice+ShippingPrice+TaxPrice
// may differ from TotalPrice by a cent.
type Prices struct {
	ItemsPrice    decimal.Decimal `json:"itemsPrice"`
	ShippingPrice decimal.Decimal `json:"shippingPrice"`
	TaxPrice      decimal.Decimal `json:"taxPrice"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
}

// Zero returns all-zero prices, used for an emptied cart.
func Zero() Prices {
	return Prices{
		ItemsPrice:    decimal.Zero,
		ShippingPrice: decimal.Zero,
		TaxPrice:      decimal.Zero,
		TotalPrice:    decimal.Zero,
	}
}

// Calculate prices the given lines. Shipping is free when the items price
// exceeds 100, tax is 15% of the items price.
func Calculate(lines []Line) Prices {
	items := decimal.Zero
	for _, l := range lines {
		items = items.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Qty))))
	}
	items = round2(items)

	shipping := flatShipping
	if items.GreaterThan(freeShippingOver) {
		shipping = decimal.Zero
	}
	shipping = round2(shipping)

	tax := round2(items.Mul(taxRate))
	total := round2(items.Add(shipping).Add(tax))

	return Prices{
		ItemsPrice:    items,
		ShippingPrice: shipping,
		TaxPrice:      tax,
		TotalPrice:    total,
	}
}

// Format renders d with exactly two decimal places.
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// round2 rounds half away from zero, which is half-up for the non-negative
// amounts handled here.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
