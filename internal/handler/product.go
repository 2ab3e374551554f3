package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

// latestLimit is how many products the home page lists.
const latestLimit = 4

func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lo, hi := product.ParsePriceRange(q.Get("price"))
	f := product.Filter{
		Query:     all(q.Get("query")),
		Category:  all(q.Get("category")),
		PriceMin:  lo,
		PriceMax:  hi,
		MinRating: product.ParseRating(q.Get("rating")),
		Sort:      product.ParseSort(q.Get("sort")),
		Page:      intParam(q.Get("page")),
	}

	page, err := h.products.Search(r.Context(), f)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		pageDTO[productDTO]
		Total int `json:"total"`
	}{
		pageDTO: pageDTO[productDTO]{Data: toProducts(page.Products), TotalPages: page.TotalPages},
		Total:   page.Total,
	})
}

func (h *Handler) latestProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.products.Latest(r.Context(), latestLimit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProducts(ps))
}

func (h *Handler) featuredProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.products.Featured(r.Context(), latestLimit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProducts(ps))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProduct(p))
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.products.Categories(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	type categoryDTO struct {
		Category string `json:"category"`
		Count    int    `json:"count"`
	}
	out := make([]categoryDTO, len(cats))
	for i, c := range cats {
		out[i] = categoryDTO{Category: c.Name, Count: c.Count}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in product.Input
	if err := decode(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	p, err := h.catalog.Create(r.Context(), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		okDTO
		Product productDTO `json:"product"`
	}{ok("Product created successfully"), toProduct(p)})
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in product.Input
	if err := decode(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	p, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		okDTO
		Product productDTO `json:"product"`
	}{ok("Product updated successfully"), toProduct(p)})
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Product deleted successfully"))
}

// all treats the storefront's "all" filter value as no filter.
func all(s string) string {
	if s == "all" {
		return ""
	}
	return s
}

// intParam parses a positive integer query value, returning 0 otherwise.
func intParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
