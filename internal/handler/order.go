package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/validate"
)

// createOrder places an order from the caller's cart.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Create(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, struct {
		okDTO
		RedirectTo string   `json:"redirectTo"`
		Order      orderDTO `json:"order"`
	}{ok("Order created"), "/order/" + o.ID, toOrder(o)})
}

func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, pages, err := h.orders.ListMine(r.Context(), auth.FromContext(r.Context()), order.Page{
		Page: intParam(r.URL.Query().Get("page")),
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageDTO[orderDTO]{Data: toOrders(orders), TotalPages: pages})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *Handler) createWalletPayment(w http.ResponseWriter, r *http.Request) {
	providerID, err := h.orders.CreateWalletPayment(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		okDTO
		Data string `json:"data"`
	}{ok("Item order created successfully"), providerID})
}

func (h *Handler) captureWalletPayment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OrderID string `json:"orderID"`
	}
	if err := decode(w, r, &in); err != nil {
		handleError(w, r, err)
		return
	}
	if err := validate.Var("orderID", in.OrderID, "required"); err != nil {
		handleError(w, r, err)
		return
	}
	if err := h.orders.ApproveWalletPayment(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"), in.OrderID); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok("Your order has been paid"))
}

func (h *Handler) createCardPayment(w http.ResponseWriter, r *http.Request) {
	secret, err := h.orders.CreateCardPayment(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		okDTO
		ClientSecret string `json:"clientSecret"`
	}{ok("Payment started"), secret})
}

// stripeWebhook settles orders from verified charge.succeeded events.
// Events the storefront ignores are acknowledged so the provider stops
// retrying them.
func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhook == nil {
		handleError(w, r, order.ErrProviderUnavailable)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		handleError(w, r, errors.Wrap(errBadBody, err.Error()))
		return
	}
	ch, err := h.webhook.Parse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if ch == nil {
		writeJSON(w, http.StatusOK, ok("Event ignored"))
		return
	}

	ctx := zctx.With(r.Context(), zap.String("order_id", ch.OrderID), zap.String("charge_id", ch.ChargeID))
	if err := h.orders.HandleCardCharge(ctx, *ch); err != nil {
		var mismatch *order.PaymentMismatchError
		switch {
		case errors.Is(err, order.ErrAlreadyPaid):
			// Redelivered event for a settled order.
			writeJSON(w, http.StatusOK, ok("Order already paid"))
		case errors.Is(err, order.ErrNotFound), errors.As(err, &mismatch):
			// Redelivery cannot fix these; acknowledge so Stripe stops retrying.
			zctx.From(ctx).Warn("Stripe charge not applied", zap.Error(err))
			writeJSON(w, http.StatusOK, ok("Event not applied"))
		default:
			handleError(w, r.WithContext(ctx), err)
		}
		return
	}
	writeJSON(w, http.StatusOK, ok("Order paid"))
}
