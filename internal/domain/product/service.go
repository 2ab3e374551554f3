package product

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/validate"
)

// Input is the admin payload for creating or updating a product.
type Input struct {
	Name        string      `json:"name" validate:"required,min=3"`
	Slug        string      `json:"slug" validate:"required,min=3"`
	Category    string      `json:"category" validate:"required,min=3"`
	Brand       string      `json:"brand" validate:"required,min=3"`
	Description string      `json:"description" validate:"required,min=3"`
	Images      []string    `json:"images" validate:"required,min=1,dive,required"`
	IsFeatured  bool        `json:"isFeatured"`
	Banner      string      `json:"banner"`
	Price       string      `json:"price" validate:"required,money"`
	Sizes       []SizeInput `json:"sizes" validate:"required,min=1,unique=Size,dive"`
}

// SizeInput is the stock of one size in an Input.
type SizeInput struct {
	Size     string `json:"size" validate:"required,oneof=XS S M L XL XXL XXXL"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

// Service implements catalog administration on top of a Store.
type Service struct {
	store Store
	cache CacheInvalidator
	now   func() time.Time
}

// NewService creates a product Service. cache may be nil.
func NewService(store Store, cache CacheInvalidator) *Service {
	return &Service{
		store: store,
		cache: cache,
		now:   time.Now,
	}
}

// Create validates in and persists a new product. Aggregate stock is the sum
// of the size quantities.
func (s *Service) Create(ctx context.Context, in Input) (*Product, error) {
	p, err := FromInput(in, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// Update replaces the editable fields of product id.
func (s *Service) Update(ctx context.Context, id string, in Input) (*Product, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	oldSlug := p.Slug
	if err := apply(p, in); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	s.invalidate(ctx, oldSlug)
	if p.Slug != oldSlug {
		s.invalidate(ctx, p.Slug)
	}
	return p, nil
}

// Delete removes product id.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return errors.Wrap(err, "get product")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete product")
	}
	s.invalidate(ctx, p.Slug)
	return nil
}

func (s *Service) invalidate(ctx context.Context, slug string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProduct(ctx, slug); err != nil {
		zctx.From(ctx).Warn("Product cache invalidation failed",
			zap.String("slug", slug),
			zap.Error(err),
		)
	}
}

// FromInput validates in and builds a new unrated product with a fresh id.
func FromInput(in Input, createdAt time.Time) (*Product, error) {
	p := &Product{
		ID:        uuid.New().String(),
		Rating:    decimal.Zero,
		CreatedAt: createdAt,
	}
	if err := apply(p, in); err != nil {
		return nil, err
	}
	return p, nil
}

func apply(p *Product, in Input) error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	price, err := decimal.NewFromString(in.Price)
	if err != nil {
		return errors.Wrap(err, "parse price")
	}

	sizes := make([]SizeStock, 0, len(in.Sizes))
	stock := 0
	for _, si := range in.Sizes {
		size, err := ParseSize(si.Size)
		if err != nil {
			return err
		}
		sizes = append(sizes, SizeStock{Size: size, Quantity: si.Quantity})
		stock += si.Quantity
	}

	p.Name = in.Name
	p.Slug = strings.ToLower(in.Slug)
	p.Category = in.Category
	p.Brand = in.Brand
	p.Description = in.Description
	p.Images = in.Images
	p.IsFeatured = in.IsFeatured
	p.Banner = in.Banner
	p.Price = price.Round(2)
	p.Sizes = sizes
	p.Stock = stock
	return nil
}
