//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestGetCart_NewSession(t *testing.T) {
	shopper := newShopper(t)

	resp := do(t, shopper, http.MethodGet, "/api/cart", "", nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	c := decodeJSON[cartBody](t, resp)
	if len(c.Items) != 0 {
		t.Errorf("expected empty cart, got %d items", len(c.Items))
	}
	if c.TotalPrice != "0.00" {
		t.Errorf("totalPrice: got %q, want %q", c.TotalPrice, "0.00")
	}

	var cookie bool
	for _, ck := range resp.Cookies() {
		if ck.Name == "sessionCartId" && uuidPattern.MatchString(ck.Value) {
			cookie = true
		}
	}
	if !cookie {
		t.Error("sessionCartId cookie not issued")
	}
}

func TestCart_AddAndRemove(t *testing.T) {
	shopper := newShopper(t)
	p := getProduct(t, "polo-sporting-stretch-shirt")

	resp := do(t, shopper, http.MethodPost, "/api/cart/items", "", cartItem(p, "M"))
	expectStatus(t, resp, http.StatusOK)
	added := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()

	if !added.Success {
		t.Error("success should be true")
	}
	if len(added.Cart.Items) != 1 || added.Cart.Items[0].Qty != 1 {
		t.Fatalf("unexpected items: %+v", added.Cart.Items)
	}
	want := prices{ItemsPrice: "59.99", ShippingPrice: "10.00", TaxPrice: "9.00", TotalPrice: "78.99"}
	if added.Cart.prices != want {
		t.Errorf("prices: got %+v, want %+v", added.Cart.prices, want)
	}

	// Same product and size again bumps the quantity and crosses the free
	// shipping threshold.
	resp = do(t, shopper, http.MethodPost, "/api/cart/items", "", cartItem(p, "M"))
	expectStatus(t, resp, http.StatusOK)
	again := decodeJSON[cartResponse](t, resp)
	resp.Body.Close()

	if again.Cart.Items[0].Qty != 2 {
		t.Errorf("qty: got %d, want 2", again.Cart.Items[0].Qty)
	}
	want = prices{ItemsPrice: "119.98", ShippingPrice: "0.00", TaxPrice: "18.00", TotalPrice: "137.98"}
	if again.Cart.prices != want {
		t.Errorf("prices: got %+v, want %+v", again.Cart.prices, want)
	}

	for _, wantQty := range []int{1, 0} {
		resp = do(t, shopper, http.MethodDelete, "/api/cart/items/"+p.ID+"/M", "", nil)
		expectStatus(t, resp, http.StatusOK)
		removed := decodeJSON[cartResponse](t, resp)
		resp.Body.Close()

		var qty int
		for _, it := range removed.Cart.Items {
			qty += it.Qty
		}
		if qty != wantQty {
			t.Errorf("qty after remove: got %d, want %d", qty, wantQty)
		}
	}
}

func TestCart_SessionsAreIsolated(t *testing.T) {
	a, b := newShopper(t), newShopper(t)
	p := getProduct(t, "calvin-klein-slim-fit-stretch-shirt")

	resp := do(t, a, http.MethodPost, "/api/cart/items", "", cartItem(p, "XS"))
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = do(t, b, http.MethodGet, "/api/cart", "", nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusOK)

	if c := decodeJSON[cartBody](t, resp); len(c.Items) != 0 {
		t.Errorf("second session sees %d items", len(c.Items))
	}

	resp = do(t, a, http.MethodDelete, "/api/cart/items/"+p.ID+"/XS", "", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestCart_AddErrors(t *testing.T) {
	soldOut := getProduct(t, "tommy-hilfiger-classic-fit-dress-shirt")
	polo := getProduct(t, "polo-sporting-stretch-shirt")

	badSize := cartItem(polo, "M")
	badSize.Size = "XXXXL"

	badPrice := cartItem(polo, "M")
	badPrice.Price = "cheap"

	unknown := cartItem(polo, "M")
	unknown.ProductID = "00000000-0000-0000-0000-000000000000"

	tests := []struct {
		name   string
		body   cartItemRequest
		status int
	}{
		{"size sold out", cartItem(soldOut, "L"), http.StatusConflict},
		{"size not offered", cartItem(polo, "XL"), http.StatusConflict},
		{"invalid size", badSize, http.StatusUnprocessableEntity},
		{"invalid price", badPrice, http.StatusUnprocessableEntity},
		{"unknown product", unknown, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, newShopper(t), http.MethodPost, "/api/cart/items", "", tt.body)
			defer resp.Body.Close()
			expectStatus(t, resp, tt.status)

			if body := decodeJSON[errorResponse](t, resp); body.Success || body.Message == "" {
				t.Errorf("unexpected envelope: %+v", body)
			}
		})
	}
}

func TestCart_RemoveWithoutCart(t *testing.T) {
	p := getProduct(t, "polo-sporting-stretch-shirt")

	resp := do(t, newShopper(t), http.MethodDelete, "/api/cart/items/"+p.ID+"/M", "", nil)
	defer resp.Body.Close()
	expectStatus(t, resp, http.StatusNotFound)
}
