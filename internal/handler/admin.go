package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-storefront/internal/domain/order"
)

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.orders.Summary(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummary(s))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, pages, err := h.orders.List(r.Context(), order.ListFilter{
		Page:  order.Page{Page: intParam(q.Get("page"))},
		Query: all(q.Get("query")),
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageDTO[orderDTO]{Data: toOrders(orders), TotalPages: pages})
}

// markPaid settles cash on delivery orders.
func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.MarkPaid(r.Context(), chi.URLParam(r, "id"), nil); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Order marked as paid"))
}

func (h *Handler) markDelivered(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.MarkDelivered(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Order marked as delivered"))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Order deleted successfully"))
}
