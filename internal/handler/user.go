package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/user"
)

func (h *Handler) getMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Me(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(u))
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var in user.ProfileInput
	if err := decode(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	if err := h.users.UpdateProfile(r.Context(), auth.FromContext(r.Context()), in); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("User updated successfully"))
}

func (h *Handler) saveAddress(w http.ResponseWriter, r *http.Request) {
	var in user.AddressInput
	if err := decode(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	addr, err := h.users.SaveAddress(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		okDTO
		Address *user.ShippingAddress `json:"address"`
	}{ok("User updated successfully"), addr})
}

func (h *Handler) savePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var in user.PaymentMethodInput
	if err := decode(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	method, err := h.users.SavePaymentMethod(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		okDTO
		PaymentMethod user.PaymentMethod `json:"paymentMethod"`
	}{ok("User updated successfully"), method})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	users, pages, err := h.users.List(r.Context(), user.ListFilter{
		Query: all(q.Get("query")),
		Page:  intParam(q.Get("page")),
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	out := make([]userDTO, len(users))
	for i := range users {
		out[i] = toUser(&users[i])
	}
	writeJSON(w, http.StatusOK, pageDTO[userDTO]{Data: out, TotalPages: pages})
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var in user.AdminUpdateInput
	if err := decode(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	if err := h.users.Update(r.Context(), chi.URLParam(r, "id"), in); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("User updated successfully"))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("User deleted successfully"))
}
