package product

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PageSize is the default number of products per catalog page.
const PageSize = 12

// Sort orders a catalog search.
type Sort string

const (
	SortNewest  Sort = "newest"
	SortLowest  Sort = "lowest"
	SortHighest Sort = "highest"
	SortRating  Sort = "rating"
)

// ParseSort maps a query value onto a Sort, defaulting to newest.
func ParseSort(s string) Sort {
	switch Sort(s) {
	case SortLowest, SortHighest, SortRating:
		return Sort(s)
	default:
		return SortNewest
	}
}

// Filter narrows a catalog search. Zero values mean "no constraint".
type Filter struct {
	Query     string
	Category  string
	PriceMin  *decimal.Decimal
	PriceMax  *decimal.Decimal
	MinRating *decimal.Decimal
	Sort      Sort
	Page      int
	Limit     int
}

// Normalize fills defaults for page and limit.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = PageSize
	}
	if f.Sort == "" {
		f.Sort = SortNewest
	}
	return f
}

// Offset is the number of rows to skip for the current page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Page is one page of search results.
type Page struct {
	Products   []Product
	Total      int
	TotalPages int
}

// TotalPages returns how many pages of limit fit total rows.
func TotalPages(total, limit int) int {
	if limit < 1 || total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// ParsePriceRange parses "lo-hi" into bounds. "all" or an empty string
// yields no bounds. Malformed input is ignored.
func ParsePriceRange(s string) (lo, hi *decimal.Decimal) {
	if s == "" || s == "all" {
		return nil, nil
	}
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return nil, nil
	}
	l, err := decimal.NewFromString(a)
	if err != nil {
		return nil, nil
	}
	h, err := decimal.NewFromString(b)
	if err != nil {
		return nil, nil
	}
	return &l, &h
}

// ParseRating parses a minimum rating, ignoring "all" and malformed values.
func ParseRating(s string) *decimal.Decimal {
	if s == "" || s == "all" {
		return nil
	}
	r, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &r
}
