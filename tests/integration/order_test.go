//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"testing"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestCreateOrder_NoAuth(t *testing.T) {
	resp := doPost(t, "/api/orders", nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)

	body := decodeJSON[errorResponse](t, resp)
	if body.RedirectTo != "/sign-in" {
		t.Errorf("redirectTo: got %q, want %q", body.RedirectTo, "/sign-in")
	}
}

func TestCreateOrder_InvalidToken(t *testing.T) {
	resp := do(t, httpClient, http.MethodPost, "/api/orders", "not-a-jwt", nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestAdmin_RequiresAdmin(t *testing.T) {
	resp := doGet(t, "/api/admin/summary")
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusUnauthorized)
}

// TestOrderFlow walks one order from cart to delivery. The steps share the
// admin user's cart, so they run in sequence.
func TestOrderFlow(t *testing.T) {
	shopper := newShopper(t)
	p := getProduct(t, "polo-ralph-lauren-oxford-shirt")

	call := func(t *testing.T, method, path string, body any, status int) *http.Response {
		t.Helper()
		resp := do(t, shopper, method, path, adminToken, body)
		expectStatus(t, resp, status)
		return resp
	}

	t.Run("empty cart", func(t *testing.T) {
		resp := call(t, http.MethodPost, "/api/orders", nil, http.StatusUnprocessableEntity)
		defer resp.Body.Close()

		if body := decodeJSON[errorResponse](t, resp); body.RedirectTo != "/cart" {
			t.Errorf("redirectTo: got %q, want %q", body.RedirectTo, "/cart")
		}
	})

	t.Run("fill cart", func(t *testing.T) {
		call(t, http.MethodPost, "/api/cart/items", cartItem(p, "L"), http.StatusOK).Body.Close()
		call(t, http.MethodPost, "/api/cart/items", cartItem(p, "XXL"), http.StatusOK).Body.Close()
	})

	t.Run("no address", func(t *testing.T) {
		resp := call(t, http.MethodPost, "/api/orders", nil, http.StatusUnprocessableEntity)
		defer resp.Body.Close()

		if body := decodeJSON[errorResponse](t, resp); body.RedirectTo != "/shipping-address" {
			t.Errorf("redirectTo: got %q, want %q", body.RedirectTo, "/shipping-address")
		}
	})

	t.Run("invalid address", func(t *testing.T) {
		resp := call(t, http.MethodPut, "/api/me/address", map[string]string{
			"fullName": "Admin", "streetAddress": "1 Main St", "city": "Oslo", "postalCode": "12", "country": "Norway",
		}, http.StatusUnprocessableEntity)
		defer resp.Body.Close()

		body := decodeJSON[errorResponse](t, resp)
		if len(body.Errors) != 1 || body.Errors[0].Field != "postalCode" {
			t.Errorf("expected a postalCode field error, got %+v", body.Errors)
		}
	})

	t.Run("save checkout details", func(t *testing.T) {
		call(t, http.MethodPut, "/api/me/address", map[string]string{
			"fullName": "Admin", "streetAddress": "1 Main St", "city": "Oslo", "postalCode": "0150", "country": "Norway",
		}, http.StatusOK).Body.Close()
		call(t, http.MethodPut, "/api/me/payment-method", map[string]string{"type": "PayPal"}, http.StatusOK).Body.Close()
	})

	var orderID string
	t.Run("create", func(t *testing.T) {
		resp := call(t, http.MethodPost, "/api/orders", nil, http.StatusCreated)
		defer resp.Body.Close()

		created := decodeJSON[createOrderResponse](t, resp)
		orderID = created.Order.ID
		if !uuidPattern.MatchString(orderID) {
			t.Fatalf("order ID %q is not a valid UUID", orderID)
		}
		if created.RedirectTo != "/order/"+orderID {
			t.Errorf("redirectTo: got %q", created.RedirectTo)
		}
		if len(created.Order.Items) != 2 {
			t.Errorf("items: got %d, want 2", len(created.Order.Items))
		}
		want := prices{ItemsPrice: "159.98", ShippingPrice: "0.00", TaxPrice: "24.00", TotalPrice: "183.98"}
		if created.Order.prices != want {
			t.Errorf("prices: got %+v, want %+v", created.Order.prices, want)
		}
		if created.Order.PaymentMethod != "PayPal" {
			t.Errorf("paymentMethod: got %q", created.Order.PaymentMethod)
		}
	})
	if orderID == "" {
		t.FailNow()
	}

	t.Run("cart cleared", func(t *testing.T) {
		resp := call(t, http.MethodGet, "/api/cart", nil, http.StatusOK)
		defer resp.Body.Close()

		if c := decodeJSON[cartBody](t, resp); len(c.Items) != 0 || c.TotalPrice != "0.00" {
			t.Errorf("cart not cleared: %+v", c)
		}
	})

	t.Run("wallet provider not configured", func(t *testing.T) {
		call(t, http.MethodPost, "/api/orders/"+orderID+"/paypal", nil, http.StatusServiceUnavailable).Body.Close()
	})

	t.Run("deliver before paid", func(t *testing.T) {
		call(t, http.MethodPut, "/api/admin/orders/"+orderID+"/delivered", nil, http.StatusConflict).Body.Close()
	})

	t.Run("mark paid", func(t *testing.T) {
		call(t, http.MethodPut, "/api/admin/orders/"+orderID+"/paid", nil, http.StatusOK).Body.Close()
		call(t, http.MethodPut, "/api/admin/orders/"+orderID+"/paid", nil, http.StatusConflict).Body.Close()
	})

	t.Run("mark delivered", func(t *testing.T) {
		call(t, http.MethodPut, "/api/admin/orders/"+orderID+"/delivered", nil, http.StatusOK).Body.Close()
	})

	t.Run("get", func(t *testing.T) {
		resp := call(t, http.MethodGet, "/api/orders/"+orderID, nil, http.StatusOK)
		defer resp.Body.Close()

		o := decodeJSON[orderBody](t, resp)
		if !o.IsPaid || !o.IsDelivered {
			t.Errorf("isPaid=%v isDelivered=%v, want both true", o.IsPaid, o.IsDelivered)
		}
	})

	t.Run("listed", func(t *testing.T) {
		resp := call(t, http.MethodGet, "/api/orders", nil, http.StatusOK)
		defer resp.Body.Close()

		page := decodeJSON[struct {
			Data       []orderBody `json:"data"`
			TotalPages int         `json:"totalPages"`
		}](t, resp)
		var found bool
		for _, o := range page.Data {
			found = found || o.ID == orderID
		}
		if !found {
			t.Errorf("order %s not in my orders", orderID)
		}
	})

	t.Run("summary", func(t *testing.T) {
		resp := call(t, http.MethodGet, "/api/admin/summary", nil, http.StatusOK)
		defer resp.Body.Close()

		sum := decodeJSON[map[string]any](t, resp)
		if _, ok := sum["salesData"]; !ok {
			t.Errorf("summary without salesData: %v", sum)
		}
	})
}
