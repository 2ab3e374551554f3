// Package handler exposes the storefront over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/user"
)

// Catalog administers products.
type Catalog interface {
	Create(ctx context.Context, in product.Input) (*product.Product, error)
	Update(ctx context.Context, id string, in product.Input) (*product.Product, error)
	Delete(ctx context.Context, id string) error
}

// Carts mutates shopping carts.
type Carts interface {
	Get(ctx context.Context, id auth.Identity) (*cart.Cart, error)
	AddItem(ctx context.Context, id auth.Identity, in cart.ItemInput) (*cart.Result, error)
	RemoveItem(ctx context.Context, id auth.Identity, productID string, size product.Size) (*cart.Result, error)
}

// Orders places and settles orders.
type Orders interface {
	Create(ctx context.Context, id auth.Identity) (*order.Order, error)
	Get(ctx context.Context, id auth.Identity, orderID string) (*order.Order, error)
	ListMine(ctx context.Context, id auth.Identity, p order.Page) ([]order.Order, int, error)
	List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error)
	Delete(ctx context.Context, orderID string) error
	Summary(ctx context.Context) (*order.Summary, error)
	MarkPaid(ctx context.Context, orderID string, r *order.PaymentResult) error
	MarkDelivered(ctx context.Context, orderID string) error
	CreateWalletPayment(ctx context.Context, id auth.Identity, orderID string) (string, error)
	ApproveWalletPayment(ctx context.Context, id auth.Identity, orderID, providerOrderID string) error
	CreateCardPayment(ctx context.Context, id auth.Identity, orderID string) (string, error)
	HandleCardCharge(ctx context.Context, ch order.CardCharge) error
}

// Users manages profiles.
type Users interface {
	Me(ctx context.Context, id auth.Identity) (*user.User, error)
	UpdateProfile(ctx context.Context, id auth.Identity, in user.ProfileInput) error
	SaveAddress(ctx context.Context, id auth.Identity, in user.AddressInput) (*user.ShippingAddress, error)
	SavePaymentMethod(ctx context.Context, id auth.Identity, in user.PaymentMethodInput) (user.PaymentMethod, error)
	List(ctx context.Context, f user.ListFilter) ([]user.User, int, error)
	Update(ctx context.Context, userID string, in user.AdminUpdateInput) error
	Delete(ctx context.Context, id auth.Identity, userID string) error
}

// TokenVerifier resolves bearer tokens to identities.
type TokenVerifier interface {
	Verify(raw string) (auth.Identity, error)
}

// WebhookParser verifies and decodes card provider webhooks. A nil charge
// means the event is not one the storefront acts on.
type WebhookParser interface {
	Parse(payload []byte, signature string) (*order.CardCharge, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// SessionCookie names the anonymous cart cookie.
	SessionCookie string
	// SessionTTL is the lifetime of a newly issued cart cookie.
	SessionTTL time.Duration
	// SecureCookies marks cookies Secure, for HTTPS deployments.
	SecureCookies bool
}

const (
	defaultSessionCookie = "sessionCartId"
	defaultSessionTTL    = 30 * 24 * time.Hour
)

// Deps are the services the Handler delegates to. Webhook may be nil when
// card payments are disabled.
type Deps struct {
	Products product.Repository
	Catalog  Catalog
	Carts    Carts
	Orders   Orders
	Users    Users
	Tokens   TokenVerifier
	Webhook  WebhookParser
}

// Handler serves the storefront JSON API.
type Handler struct {
	products product.Repository
	catalog  Catalog
	carts    Carts
	orders   Orders
	users    Users
	tokens   TokenVerifier
	webhook  WebhookParser

	cookie string
	ttl    time.Duration
	secure bool
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, d Deps) *Handler {
	h := &Handler{
		products: d.Products,
		catalog:  d.Catalog,
		carts:    d.Carts,
		orders:   d.Orders,
		users:    d.Users,
		tokens:   d.Tokens,
		webhook:  d.Webhook,
		cookie:   cfg.SessionCookie,
		ttl:      cfg.SessionTTL,
		secure:   cfg.SecureCookies,
	}
	if h.cookie == "" {
		h.cookie = defaultSessionCookie
	}
	if h.ttl <= 0 {
		h.ttl = defaultSessionTTL
	}
	return h
}

// Routes returns the API router, meant to be mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Provider callbacks carry no session and are authenticated by signature.
	r.Post("/webhooks/stripe", h.stripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(h.Session, h.Authenticate)

		r.Get("/products", h.searchProducts)
		r.Get("/products/latest", h.latestProducts)
		r.Get("/products/featured", h.featuredProducts)
		r.Get("/products/{slug}", h.getProduct)
		r.Get("/categories", h.listCategories)

		r.Get("/cart", h.getCart)
		r.Post("/cart/items", h.addCartItem)
		r.Delete("/cart/items/{productId}/{size}", h.removeCartItem)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)

			r.Get("/me", h.getMe)
			r.Put("/me", h.updateMe)
			r.Put("/me/address", h.saveAddress)
			r.Put("/me/payment-method", h.savePaymentMethod)

			r.Post("/orders", h.createOrder)
			r.Get("/orders", h.listMyOrders)
			r.Get("/orders/{id}", h.getOrder)
			r.Post("/orders/{id}/paypal", h.createWalletPayment)
			r.Post("/orders/{id}/paypal/capture", h.captureWalletPayment)
			r.Post("/orders/{id}/stripe", h.createCardPayment)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)

			r.Get("/summary", h.summary)
			r.Get("/orders", h.listOrders)
			r.Put("/orders/{id}/paid", h.markPaid)
			r.Put("/orders/{id}/delivered", h.markDelivered)
			r.Delete("/orders/{id}", h.deleteOrder)

			r.Post("/products", h.createProduct)
			r.Put("/products/{id}", h.updateProduct)
			r.Delete("/products/{id}", h.deleteProduct)

			r.Get("/users", h.listUsers)
			r.Put("/users/{id}", h.updateUser)
			r.Delete("/users/{id}", h.deleteUser)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	})
	return r
}
