package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

const productColumns = `id, name, slug, category, brand, description, images, is_featured, banner,
	price, rating, num_reviews, stock, sizes, created_at`

const (
	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductBySlugSQL = `SELECT ` + productColumns + ` FROM products WHERE slug = $1`

	getProductForUpdateSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	latestProductsSQL = `SELECT ` + productColumns + ` FROM products
		ORDER BY created_at DESC, id LIMIT $1`

	featuredProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE is_featured ORDER BY created_at DESC, id LIMIT $1`

	categoriesSQL = `SELECT category, COUNT(*) FROM products GROUP BY category ORDER BY category`

	insertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	updateProductSQL = `UPDATE products SET name = $2, slug = $3, category = $4, brand = $5,
		description = $6, images = $7, is_featured = $8, banner = $9, price = $10,
		stock = $11, sizes = $12
		WHERE id = $1`

	updateProductStockSQL = `UPDATE products SET stock = $2, sizes = $3 WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	listProductSlugsSQL = `SELECT slug FROM products`

	productSlugsExistSQL = `SELECT slug FROM products WHERE slug = ANY($1)`
)

var _ product.Store = (*ProductRepository)(nil)

// ProductRepository implements product.Store backed by PostgreSQL.
type ProductRepository struct {
	db DBTX
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{db: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	return getProduct(ctx, r.db, getProductByIDSQL, id)
}

// GetBySlug returns a single product by its slug.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	return getProduct(ctx, r.db, getProductBySlugSQL, slug)
}

// Latest returns the newest products.
func (r *ProductRepository) Latest(ctx context.Context, limit int) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, latestProductsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing latest products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Featured returns the newest featured products.
func (r *ProductRepository) Featured(ctx context.Context, limit int) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, featuredProductsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing featured products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Search returns one page of products matching f.
func (r *ProductRepository) Search(ctx context.Context, f product.Filter) (*product.Page, error) {
	f = f.Normalize()

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Query != "" {
		add("name ILIKE '%%' || $%d || '%%'", f.Query)
	}
	if f.Category != "" && f.Category != "all" {
		add("category = $%d", f.Category)
	}
	if f.PriceMin != nil {
		add("price >= $%d", *f.PriceMin)
	}
	if f.PriceMax != nil {
		add("price <= $%d", *f.PriceMax)
	}
	if f.MinRating != nil {
		add("rating >= $%d", *f.MinRating)
	}

	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+cond, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting products: %w", err)
	}

	q := `SELECT ` + productColumns + ` FROM products` + cond +
		` ORDER BY ` + orderBy(f.Sort) +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, q, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}

	return &product.Page{
		Products:   products,
		Total:      total,
		TotalPages: product.TotalPages(total, f.Limit),
	}, nil
}

func orderBy(s product.Sort) string {
	switch s {
	case product.SortLowest:
		return "price ASC, id"
	case product.SortHighest:
		return "price DESC, id"
	case product.SortRating:
		return "rating DESC, id"
	default:
		return "created_at DESC, id"
	}
}

// Categories returns every category with its product count.
func (r *ProductRepository) Categories(ctx context.Context) ([]product.Category, error) {
	rows, err := r.db.Query(ctx, categoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Category, error) {
		var c product.Category
		err := row.Scan(&c.Name, &c.Count)
		return c, err
	})
}

// Create inserts a product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	sizes, err := marshalJSON(p.Sizes)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, insertProductSQL,
		p.ID, p.Name, p.Slug, p.Category, p.Brand, p.Description, p.Images, p.IsFeatured, p.Banner,
		p.Price, p.Rating, p.NumReviews, p.Stock, sizes, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return product.ErrSlugTaken
		}
		return fmt.Errorf("creating product %q: %w", p.Slug, err)
	}
	return nil
}

// Update replaces the editable fields of a product.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	sizes, err := marshalJSON(p.Sizes)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Slug, p.Category, p.Brand, p.Description, p.Images, p.IsFeatured, p.Banner,
		p.Price, p.Stock, sizes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return product.ErrSlugTaken
		}
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Slugs returns every product slug in the catalog.
func (r *ProductRepository) Slugs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, listProductSlugsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing product slugs: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ExistingSlugs returns the subset of slugs already in the catalog.
func (r *ProductRepository) ExistingSlugs(ctx context.Context, slugs []string) ([]string, error) {
	rows, err := r.db.Query(ctx, productSlugsExistSQL, slugs)
	if err != nil {
		return nil, fmt.Errorf("checking product slugs: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// CreateBatch inserts products in a single round trip.
func (r *ProductRepository) CreateBatch(ctx context.Context, products []product.Product) error {
	batch := &pgx.Batch{}
	for i := range products {
		p := &products[i]
		sizes, err := marshalJSON(p.Sizes)
		if err != nil {
			return err
		}
		batch.Queue(insertProductSQL,
			p.ID, p.Name, p.Slug, p.Category, p.Brand, p.Description, p.Images, p.IsFeatured, p.Banner,
			p.Price, p.Rating, p.NumReviews, p.Stock, sizes, p.CreatedAt,
		)
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting %d products: %w", len(products), err)
	}
	return nil
}

func getProduct(ctx context.Context, db DBTX, sql, arg string) (*product.Product, error) {
	rows, err := db.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", arg, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", arg, err)
	}
	return &p, nil
}

func updateProductStock(ctx context.Context, db DBTX, p *product.Product) error {
	sizes, err := marshalJSON(p.Sizes)
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, updateProductStockSQL, p.ID, p.Stock, sizes); err != nil {
		return fmt.Errorf("updating stock of product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		sizes []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Category, &p.Brand, &p.Description, &p.Images, &p.IsFeatured, &p.Banner,
		&p.Price, &p.Rating, &p.NumReviews, &p.Stock, &sizes, &p.CreatedAt,
	)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(sizes, &p.Sizes); err != nil {
		return p, fmt.Errorf("decoding sizes of product %q: %w", p.ID, err)
	}
	return p, nil
}
