package product

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/validate"
)

func TestProduct_ReserveRelease(t *testing.T) {
	p := &Product{
		ID:    "p1",
		Stock: 3,
		Sizes: []SizeStock{{Size: SizeM, Quantity: 2}, {Size: SizeL, Quantity: 1}},
	}

	require.NoError(t, p.Reserve(SizeM))
	assert.Equal(t, 2, p.Stock)
	qty, ok := p.SizeQuantity(SizeM)
	require.True(t, ok)
	assert.Equal(t, 1, qty)

	require.NoError(t, p.Reserve(SizeL))
	require.Error(t, p.Reserve(SizeL), "size L is exhausted")
	require.Error(t, p.Reserve(SizeXS), "size XS is not offered")
	assert.Equal(t, 1, p.Stock)

	p.Release(SizeL)
	qty, _ = p.SizeQuantity(SizeL)
	assert.Equal(t, 1, qty)
	assert.Equal(t, 2, p.Stock)
}

func TestProduct_ReleaseUnknownSize(t *testing.T) {
	p := &Product{Stock: 0}
	p.Release(SizeXL)

	qty, ok := p.SizeQuantity(SizeXL)
	require.True(t, ok)
	assert.Equal(t, 1, qty)
	assert.Equal(t, 1, p.Stock)
}

func TestParseSize(t *testing.T) {
	s, err := ParseSize("XXL")
	require.NoError(t, err)
	assert.Equal(t, SizeXXL, s)

	_, err = ParseSize("xxl")
	require.Error(t, err)
}

func TestParsePriceRange(t *testing.T) {
	tests := []struct {
		in     string
		lo, hi string
	}{
		{in: "1-50", lo: "1", hi: "50"},
		{in: "51-100", lo: "51", hi: "100"},
		{in: "all"},
		{in: ""},
		{in: "abc"},
		{in: "1-x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lo, hi := ParsePriceRange(tt.in)
			if tt.lo == "" {
				assert.Nil(t, lo)
				assert.Nil(t, hi)
				return
			}
			require.NotNil(t, lo)
			require.NotNil(t, hi)
			assert.True(t, decimal.RequireFromString(tt.lo).Equal(*lo))
			assert.True(t, decimal.RequireFromString(tt.hi).Equal(*hi))
		})
	}
}

func TestFilter_Normalize(t *testing.T) {
	f := Filter{}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, PageSize, f.Limit)
	assert.Equal(t, SortNewest, f.Sort)
	assert.Equal(t, 0, f.Offset())

	f = Filter{Page: 3, Limit: 10}.Normalize()
	assert.Equal(t, 20, f.Offset())

	assert.Equal(t, 0, TotalPages(0, 12))
	assert.Equal(t, 1, TotalPages(12, 12))
	assert.Equal(t, 2, TotalPages(13, 12))
	assert.Equal(t, SortRating, ParseSort("rating"))
	assert.Equal(t, SortNewest, ParseSort("bogus"))
}

// --- Service ---

type mockStore struct {
	byID    map[string]*Product
	created *Product
	updated *Product
	deleted string
	err     error
}

func (m *mockStore) GetByID(_ context.Context, id string) (*Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) GetBySlug(context.Context, string) (*Product, error)   { return nil, ErrNotFound }
func (m *mockStore) Latest(context.Context, int) ([]Product, error)         { return nil, nil }
func (m *mockStore) Featured(context.Context, int) ([]Product, error)       { return nil, nil }
func (m *mockStore) Search(context.Context, Filter) (*Page, error)          { return &Page{}, nil }
func (m *mockStore) Categories(context.Context) ([]Category, error)         { return nil, nil }
func (m *mockStore) Create(_ context.Context, p *Product) error             { m.created = p; return m.err }
func (m *mockStore) Update(_ context.Context, p *Product) error             { m.updated = p; return m.err }
func (m *mockStore) Delete(_ context.Context, id string) error              { m.deleted = id; return m.err }

type mockCache struct {
	slugs []string
}

func (m *mockCache) InvalidateProduct(_ context.Context, slug string) error {
	m.slugs = append(m.slugs, slug)
	return nil
}

func validInput() Input {
	return Input{
		Name:        "Polo Shirt",
		Slug:        "Polo-Shirt",
		Category:    "Men's Shirts",
		Brand:       "Polo",
		Description: "A shirt",
		Images:      []string{"/images/p1.jpg"},
		Price:       "59.99",
		Sizes: []SizeInput{
			{Size: "M", Quantity: 3},
			{Size: "L", Quantity: 2},
		},
	}
}

func TestService_Create(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store, nil)

	p, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.Same(t, p, store.created)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "polo-shirt", p.Slug)
	assert.Equal(t, 5, p.Stock)
	assert.True(t, decimal.RequireFromString("59.99").Equal(p.Price))
}

func TestService_CreateInvalid(t *testing.T) {
	in := validInput()
	in.Price = "12.345"
	in.Sizes[0].Size = "XM"
	in.Name = "ab"

	_, err := NewService(&mockStore{}, nil).Create(context.Background(), in)

	var vErr *validate.Error
	require.ErrorAs(t, err, &vErr)
	fields := make([]string, 0, len(vErr.Fields))
	for _, f := range vErr.Fields {
		fields = append(fields, f.Field)
	}
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "price")
	assert.Contains(t, fields, "size")
}

func TestService_CreateDuplicateSize(t *testing.T) {
	in := validInput()
	in.Sizes = []SizeInput{{Size: "M", Quantity: 1}, {Size: "M", Quantity: 2}}
	store := &mockStore{}

	_, err := NewService(store, nil).Create(context.Background(), in)

	var vErr *validate.Error
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Fields, 1)
	assert.Equal(t, "sizes", vErr.Fields[0].Field)
	assert.Equal(t, "unique", vErr.Fields[0].Rule)
	assert.Nil(t, store.created)
}

func TestService_UpdateInvalidatesOldAndNewSlug(t *testing.T) {
	store := &mockStore{byID: map[string]*Product{
		"p1": {ID: "p1", Slug: "old-slug"},
	}}
	cache := &mockCache{}
	svc := NewService(store, cache)

	in := validInput()
	in.Slug = "new-slug"
	p, err := svc.Update(context.Background(), "p1", in)
	require.NoError(t, err)
	assert.Equal(t, "new-slug", p.Slug)
	assert.Equal(t, []string{"old-slug", "new-slug"}, cache.slugs)
}

func TestService_DeleteNotFound(t *testing.T) {
	svc := NewService(&mockStore{byID: map[string]*Product{}}, nil)

	err := svc.Delete(context.Background(), "missing")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestRecord_Product(t *testing.T) {
	r := Record{Input: validInput(), Rating: "4.5", NumReviews: 10}
	p, err := r.Product(time.Unix(0, 0))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.True(t, p.Rating.Equal(decimal.RequireFromString("4.5")))
	assert.Equal(t, 10, p.NumReviews)

	r.Rating = "high"
	_, err = r.Product(time.Unix(0, 0))
	assert.ErrorContains(t, err, "parse rating")

	r.Rating = ""
	r.Input.Price = "free"
	_, err = r.Product(time.Unix(0, 0))
	var vErr *validate.Error
	require.ErrorAs(t, err, &vErr)
}
