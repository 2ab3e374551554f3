package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/pricing"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/user"
)

// money renders an amount as a string with two decimals, e.g. "126.50".
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + decimal.Decimal(m).StringFixed(2) + `"`), nil
}

type pricesDTO struct {
	ItemsPrice    money `json:"itemsPrice"`
	ShippingPrice money `json:"shippingPrice"`
	TaxPrice      money `json:"taxPrice"`
	TotalPrice    money `json:"totalPrice"`
}

func toPrices(p pricing.Prices) pricesDTO {
	return pricesDTO{
		ItemsPrice:    money(p.ItemsPrice),
		ShippingPrice: money(p.ShippingPrice),
		TaxPrice:      money(p.TaxPrice),
		TotalPrice:    money(p.TotalPrice),
	}
}

type productDTO struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Slug        string              `json:"slug"`
	Category    string              `json:"category"`
	Brand       string              `json:"brand"`
	Description string              `json:"description"`
	Images      []string            `json:"images"`
	IsFeatured  bool                `json:"isFeatured"`
	Banner      string              `json:"banner,omitempty"`
	Price       money               `json:"price"`
	Rating      string              `json:"rating"`
	NumReviews  int                 `json:"numReviews"`
	Stock       int                 `json:"stock"`
	Sizes       []product.SizeStock `json:"sizes"`
	CreatedAt   time.Time           `json:"createdAt"`
}

func toProduct(p *product.Product) productDTO {
	return productDTO{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Category:    p.Category,
		Brand:       p.Brand,
		Description: p.Description,
		Images:      nonNil(p.Images),
		IsFeatured:  p.IsFeatured,
		Banner:      p.Banner,
		Price:       money(p.Price),
		Rating:      p.Rating.StringFixed(1),
		NumReviews:  p.NumReviews,
		Stock:       p.Stock,
		Sizes:       nonNil(p.Sizes),
		CreatedAt:   p.CreatedAt,
	}
}

func toProducts(ps []product.Product) []productDTO {
	out := make([]productDTO, len(ps))
	for i := range ps {
		out[i] = toProduct(&ps[i])
	}
	return out
}

type lineDTO struct {
	ProductID string       `json:"productId"`
	Name      string       `json:"name"`
	Slug      string       `json:"slug"`
	Size      product.Size `json:"size"`
	Qty       int          `json:"qty"`
	Image     string       `json:"image"`
	Price     money        `json:"price"`
}

type cartDTO struct {
	ID            string    `json:"id,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	SessionCartID string    `json:"sessionCartId"`
	Items         []lineDTO `json:"items"`
	pricesDTO
}

func toCart(c *cart.Cart) cartDTO {
	items := make([]lineDTO, len(c.Items))
	for i, it := range c.Items {
		items[i] = lineDTO{
			ProductID: it.ProductID,
			Name:      it.Name,
			Slug:      it.Slug,
			Size:      it.Size,
			Qty:       it.Qty,
			Image:     it.Image,
			Price:     money(it.Price),
		}
	}
	return cartDTO{
		ID:            c.ID,
		UserID:        c.Owner.UserID,
		SessionCartID: c.Owner.SessionCartID,
		Items:         items,
		pricesDTO:     toPrices(c.Prices),
	}
}

type customerDTO struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type orderDTO struct {
	ID              string               `json:"id"`
	UserID          string               `json:"userId"`
	User            customerDTO          `json:"user"`
	ShippingAddress user.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   user.PaymentMethod   `json:"paymentMethod"`
	PaymentResult   *order.PaymentResult `json:"paymentResult,omitempty"`
	Items           []lineDTO            `json:"orderItems"`
	pricesDTO
	IsPaid      bool       `json:"isPaid"`
	PaidAt      *time.Time `json:"paidAt"`
	IsDelivered bool       `json:"isDelivered"`
	DeliveredAt *time.Time `json:"deliveredAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toOrder(o *order.Order) orderDTO {
	items := make([]lineDTO, len(o.Items))
	for i, it := range o.Items {
		items[i] = lineDTO{
			ProductID: it.ProductID,
			Name:      it.Name,
			Slug:      it.Slug,
			Size:      it.Size,
			Qty:       it.Qty,
			Image:     it.Image,
			Price:     money(it.Price),
		}
	}
	return orderDTO{
		ID:              o.ID,
		UserID:          o.UserID,
		User:            customerDTO{Name: o.Customer.Name, Email: o.Customer.Email},
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		PaymentResult:   o.PaymentResult,
		Items:           items,
		pricesDTO:       toPrices(o.Prices),
		IsPaid:          o.IsPaid,
		PaidAt:          o.PaidAt,
		IsDelivered:     o.IsDelivered,
		DeliveredAt:     o.DeliveredAt,
		CreatedAt:       o.CreatedAt,
	}
}

func toOrders(os []order.Order) []orderDTO {
	out := make([]orderDTO, len(os))
	for i := range os {
		out[i] = toOrder(&os[i])
	}
	return out
}

type userDTO struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	Email         string                `json:"email"`
	Role          string                `json:"role"`
	Address       *user.ShippingAddress `json:"address,omitempty"`
	PaymentMethod user.PaymentMethod    `json:"paymentMethod,omitempty"`
	CreatedAt     time.Time             `json:"createdAt"`
}

func toUser(u *user.User) userDTO {
	return userDTO{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          string(u.Role),
		Address:       u.Address,
		PaymentMethod: u.PaymentMethod,
		CreatedAt:     u.CreatedAt,
	}
}

type pageDTO[T any] struct {
	Data       []T `json:"data"`
	TotalPages int `json:"totalPages"`
}

type monthlyDTO struct {
	Month      string `json:"month"`
	TotalSales money  `json:"totalSales"`
}

type summaryDTO struct {
	OrdersCount   int          `json:"ordersCount"`
	ProductsCount int          `json:"productsCount"`
	UsersCount    int          `json:"usersCount"`
	TotalSales    money        `json:"totalSales"`
	SalesData     []monthlyDTO `json:"salesData"`
	LatestSales   []orderDTO   `json:"latestSales"`
}

func toSummary(s *order.Summary) summaryDTO {
	monthly := make([]monthlyDTO, len(s.Monthly))
	for i, m := range s.Monthly {
		monthly[i] = monthlyDTO{Month: m.Month, TotalSales: money(m.TotalSales)}
	}
	return summaryDTO{
		OrdersCount:   s.OrdersCount,
		ProductsCount: s.ProductsCount,
		UsersCount:    s.UsersCount,
		TotalSales:    money(s.TotalSales),
		SalesData:     monthly,
		LatestSales:   toOrders(s.Latest),
	}
}

// okDTO is the success envelope of mutations.
type okDTO struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(msg string) okDTO {
	return okDTO{Success: true, Message: msg}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
