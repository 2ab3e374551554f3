package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// ErrSlugTaken is returned when creating or renaming a product onto an
// existing slug.
var ErrSlugTaken = errors.New("product slug already exists")

// Size is a garment size a product is stocked in.
type Size string

const (
	SizeXS   Size = "XS"
	SizeS    Size = "S"
	SizeM    Size = "M"
	SizeL    Size = "L"
	SizeXL   Size = "XL"
	SizeXXL  Size = "XXL"
	SizeXXXL Size = "XXXL"
)

// Sizes lists every size in display order.
var Sizes = []Size{SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL, SizeXXXL}

// ParseSize returns the Size named by s.
func ParseSize(s string) (Size, error) {
	for _, size := range Sizes {
		if string(size) == s {
			return size, nil
		}
	}
	return "", fmt.Errorf("unknown size %q", s)
}

// SizeStock is the per-size stock count of a product.
type SizeStock struct {
	Size     Size `json:"size"`
	Quantity int  `json:"quantity"`
}

// Product represents a catalog item available for purchase.
//
// Stock is the aggregate available count. While a unit sits in a cart it is
// subtracted from both Stock and the matching size quantity.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	IsFeatured  bool            `json:"isFeatured"`
	Banner      string          `json:"banner,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Rating      decimal.Decimal `json:"rating"`
	NumReviews  int             `json:"numReviews"`
	Stock       int             `json:"stock"`
	Sizes       []SizeStock     `json:"sizes"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// SizeQuantity reports the stock held for size and whether the product is
// offered in that size at all.
func (p *Product) SizeQuantity(size Size) (int, bool) {
	for _, s := range p.Sizes {
		if s.Size == size {
			return s.Quantity, true
		}
	}
	return 0, false
}

// Reserve takes one unit of size out of stock.
func (p *Product) Reserve(size Size) error {
	for i := range p.Sizes {
		if p.Sizes[i].Size != size {
			continue
		}
		if p.Sizes[i].Quantity < 1 || p.Stock < 1 {
			return errors.Errorf("product %s size %s has no stock to reserve", p.ID, size)
		}
		p.Sizes[i].Quantity--
		p.Stock--
		return nil
	}
	return errors.Errorf("product %s is not offered in size %s", p.ID, size)
}

// Release puts one unit of size back into stock. A size that was removed
// from the product since the unit was reserved is re-added.
func (p *Product) Release(size Size) {
	p.Stock++
	for i := range p.Sizes {
		if p.Sizes[i].Size == size {
			p.Sizes[i].Quantity++
			return
		}
	}
	p.Sizes = append(p.Sizes, SizeStock{Size: size, Quantity: 1})
}

// FirstImage returns the primary image or an empty string.
func (p *Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Category is a product category with the number of products in it.
type Category struct {
	Name  string
	Count int
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	Latest(ctx context.Context, limit int) ([]Product, error)
	Featured(ctx context.Context, limit int) ([]Product, error)
	Search(ctx context.Context, f Filter) (*Page, error)
	Categories(ctx context.Context) ([]Category, error)
}

// Store extends Repository with catalog administration.
type Store interface {
	Repository
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}

// CacheInvalidator drops cached copies of a product after it changes.
type CacheInvalidator interface {
	InvalidateProduct(ctx context.Context, slug string) error
}
