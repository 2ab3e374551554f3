package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/pricing"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/validate"
)

type cartResponse struct {
	okDTO
	Cart cartDTO `json:"cart"`
}

// getCart returns the caller's cart, or an empty one if none exists yet.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	c, err := h.carts.Get(r.Context(), id)
	if errors.Is(err, cart.ErrNotFound) {
		c = &cart.Cart{
			Owner:  cart.Owner{UserID: id.UserID, SessionCartID: id.SessionCartID},
			Items:  []cart.Item{},
			Prices: pricing.Zero(),
		}
		err = nil
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(c))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var in cart.ItemInput
	if err := decode(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	res, err := h.carts.AddItem(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{ok(res.Message), toCart(res.Cart)})
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	size, err := product.ParseSize(chi.URLParam(r, "size"))
	if err != nil {
		handleError(w, r, validate.Var("size", chi.URLParam(r, "size"), "oneof=XS S M L XL XXL XXXL"))
		return
	}
	res, err := h.carts.RemoveItem(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "productId"), size)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{ok(res.Message), toCart(res.Cart)})
}
