package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/validate"
)

// ItemInput is the add-to-cart payload. Price is validated but the line is
// always priced from the catalog.
type ItemInput struct {
	ProductID string `json:"productId" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Slug      string `json:"slug" validate:"required"`
	Qty       int    `json:"qty" validate:"gte=0"`
	Image     string `json:"image" validate:"required"`
	Price     string `json:"price" validate:"required,money"`
	Size      string `json:"size" validate:"required,oneof=XS S M L XL XXL XXXL"`
}

// Result is the outcome of a cart mutation.
type Result struct {
	Cart    *Cart
	Message string
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the tracer provider used for mutation spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("kart/cart") }
}

// WithMeterProvider sets the meter provider used for mutation counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter("kart/cart") }
}

// Service implements cart mutations. Every mutation runs in one transaction
// that locks the product row before the cart row, so the cart's line
// quantities and the product's stock change together.
type Service struct {
	store Store
	cache product.CacheInvalidator
	now   func() time.Time

	tracer    trace.Tracer
	meter     metric.Meter
	mutations metric.Int64Counter
}

// NewService creates a cart Service. cache may be nil.
func NewService(store Store, cache product.CacheInvalidator, opts ...Option) (*Service, error) {
	s := &Service{
		store:  store,
		cache:  cache,
		now:    time.Now,
		tracer: tracenoop.NewTracerProvider().Tracer("kart/cart"),
		meter:  metricnoop.NewMeterProvider().Meter("kart/cart"),
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	s.mutations, err = s.meter.Int64Counter("kart.cart.mutations",
		metric.WithDescription("Cart mutations by operation and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create mutations counter")
	}
	return s, nil
}

func ownerOf(id auth.Identity) (Owner, error) {
	if id.SessionCartID == "" {
		return Owner{}, ErrNoSession
	}
	return Owner{UserID: id.UserID, SessionCartID: id.SessionCartID}, nil
}

// claim attaches an anonymous cart to the signed-in owner.
func claim(c *Cart, owner Owner) bool {
	if owner.UserID == "" || c.Owner.UserID != "" {
		return false
	}
	c.Owner.UserID = owner.UserID
	return true
}

// Get returns the caller's cart or ErrNotFound. It never writes; an
// anonymous cart found for a signed-in caller is claimed by the next
// AddItem or RemoveItem.
func (s *Service) Get(ctx context.Context, id auth.Identity) (*Cart, error) {
	owner, err := ownerOf(id)
	if err != nil {
		if id.IsAuthenticated() {
			owner = Owner{UserID: id.UserID}
		} else {
			return nil, err
		}
	}

	c, err := s.store.FindCart(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "find cart")
	}
	return c, nil
}

// AddItem adds one unit of the input's product and size to the caller's
// cart, creating the cart if needed, and reserves that unit from stock.
func (s *Service) AddItem(ctx context.Context, id auth.Identity, in ItemInput) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "cart.AddItem",
		trace.WithAttributes(attribute.String("product.id", in.ProductID), attribute.String("product.size", in.Size)),
	)
	defer func() { s.finish(ctx, span, "add", rerr) }()

	owner, err := ownerOf(id)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	size := product.Size(in.Size)

	var (
		res  Result
		slug string
	)
	err = s.store.InTx(ctx, func(ctx context.Context, repo Repository) error {
		p, err := repo.GetProductForUpdate(ctx, in.ProductID)
		if err != nil {
			return errors.Wrap(err, "get product")
		}
		slug = p.Slug

		c, err := repo.FindCart(ctx, owner)
		switch {
		case errors.Is(err, ErrNotFound):
			c = nil
		case err != nil:
			return errors.Wrap(err, "find cart")
		}

		sizeQty, ok := p.SizeQuantity(size)
		if !ok || sizeQty < 1 {
			return &OutOfStockError{ProductID: p.ID, Size: size}
		}

		now := s.now()
		if c == nil {
			if err := p.Reserve(size); err != nil {
				return err
			}
			c = &Cart{
				ID:        uuid.New().String(),
				Owner:     owner,
				Items:     []Item{newItem(p, size, in)},
				CreatedAt: now,
				UpdatedAt: now,
			}
			c.Reprice()
			if err := repo.UpdateProductStock(ctx, p); err != nil {
				return errors.Wrap(err, "update product stock")
			}
			if err := repo.CreateCart(ctx, c); err != nil {
				return errors.Wrap(err, "create cart")
			}
			res = Result{Cart: c, Message: fmt.Sprintf("%s added to cart", p.Name)}
			return nil
		}

		claim(c, owner)
		msg := fmt.Sprintf("%s added to cart", p.Name)
		if i := c.indexOf(p.ID, size); i >= 0 {
			if p.Stock < c.Items[i].Qty+1 || sizeQty < 1 {
				return &InsufficientStockError{ProductID: p.ID, Size: size, Available: p.Stock}
			}
			c.Items[i].Qty++
			msg = fmt.Sprintf("%s updated in cart", p.Name)
		} else {
			if p.Stock < 1 {
				return &InsufficientStockError{ProductID: p.ID, Size: size, Available: p.Stock}
			}
			c.Items = append(c.Items, newItem(p, size, in))
		}

		if err := p.Reserve(size); err != nil {
			return err
		}
		c.Reprice()
		c.UpdatedAt = now
		if err := repo.UpdateProductStock(ctx, p); err != nil {
			return errors.Wrap(err, "update product stock")
		}
		if err := repo.UpdateCart(ctx, c); err != nil {
			return errors.Wrap(err, "update cart")
		}
		res = Result{Cart: c, Message: msg}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, slug)
	return &res, nil
}

// RemoveItem removes one unit of productID in size from the caller's cart
// and returns it to stock. The line is dropped when its quantity reaches
// zero.
func (s *Service) RemoveItem(ctx context.Context, id auth.Identity, productID string, size product.Size) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "cart.RemoveItem",
		trace.WithAttributes(attribute.String("product.id", productID), attribute.String("product.size", string(size))),
	)
	defer func() { s.finish(ctx, span, "remove", rerr) }()

	owner, err := ownerOf(id)
	if err != nil {
		return nil, err
	}

	var (
		res  Result
		slug string
	)
	err = s.store.InTx(ctx, func(ctx context.Context, repo Repository) error {
		p, err := repo.GetProductForUpdate(ctx, productID)
		if err != nil {
			return errors.Wrap(err, "get product")
		}
		slug = p.Slug

		c, err := repo.FindCart(ctx, owner)
		if err != nil {
			return errors.Wrap(err, "find cart")
		}
		i := c.indexOf(productID, size)
		if i < 0 {
			return ErrItemNotFound
		}

		p.Release(size)
		if c.Items[i].Qty <= 1 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		} else {
			c.Items[i].Qty--
		}
		claim(c, owner)
		c.Reprice()
		c.UpdatedAt = s.now()

		if err := repo.UpdateProductStock(ctx, p); err != nil {
			return errors.Wrap(err, "update product stock")
		}
		if err := repo.UpdateCart(ctx, c); err != nil {
			return errors.Wrap(err, "update cart")
		}
		res = Result{Cart: c, Message: fmt.Sprintf("%s was removed from cart", p.Name)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, slug)
	return &res, nil
}

// newItem snapshots the catalog product into a cart line holding one unit.
func newItem(p *product.Product, size product.Size, in ItemInput) Item {
	image := p.FirstImage()
	if image == "" {
		image = in.Image
	}
	return Item{
		ProductID: p.ID,
		Name:      p.Name,
		Slug:      p.Slug,
		Size:      size,
		Qty:       1,
		Image:     image,
		Price:     p.Price.Round(2),
	}
}

func (s *Service) invalidate(ctx context.Context, slug string) {
	if s.cache == nil || slug == "" {
		return
	}
	if err := s.cache.InvalidateProduct(ctx, slug); err != nil {
		zctx.From(ctx).Warn("Product cache invalidation failed",
			zap.String("slug", slug),
			zap.Error(err),
		)
	}
}

func (s *Service) finish(ctx context.Context, span trace.Span, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
	}
	s.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
	span.End()
}
