package order

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/pricing"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/user"
)

// --- Mock implementations ---

type memStore struct {
	mu        sync.Mutex
	carts     map[string]*cart.Cart
	users     map[string]*user.User
	orders    map[string]*Order
	stock     map[string]int
	failClear bool
}

func newMemStore() *memStore {
	return &memStore{
		carts:  make(map[string]*cart.Cart),
		users:  make(map[string]*user.User),
		orders: make(map[string]*Order),
		stock:  make(map[string]int),
	}
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	if o.PaymentResult != nil {
		r := *o.PaymentResult
		cp.PaymentResult = &r
	}
	return &cp
}

func cloneCart(c *cart.Cart) *cart.Cart {
	cp := *c
	cp.Items = slices.Clone(c.Items)
	return &cp
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	carts := make(map[string]*cart.Cart, len(m.carts))
	for k, v := range m.carts {
		carts[k] = cloneCart(v)
	}
	orders := make(map[string]*Order, len(m.orders))
	for k, v := range m.orders {
		orders[k] = cloneOrder(v)
	}
	stock := make(map[string]int, len(m.stock))
	for k, v := range m.stock {
		stock[k] = v
	}

	if err := fn(ctx, (*memTx)(m)); err != nil {
		m.carts, m.orders, m.stock = carts, orders, stock
		return err
	}
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memStore) ListByUser(_ context.Context, userID string, p Page) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	return out, len(out), nil
}

func (m *memStore) List(context.Context, ListFilter) ([]Order, int, error) { return nil, 0, nil }

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *memStore) SetPaymentResult(_ context.Context, id string, r PaymentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.PaymentResult = &r
	return nil
}

func (m *memStore) Summary(context.Context, int) (*Summary, error) {
	return &Summary{OrdersCount: len(m.orders)}, nil
}

type memTx memStore

func (m *memTx) LockCart(_ context.Context, owner cart.Owner) (*cart.Cart, error) {
	for _, c := range m.carts {
		if c.Owner.UserID == owner.UserID {
			return cloneCart(c), nil
		}
	}
	return nil, cart.ErrNotFound
}

func (m *memTx) ClearCart(_ context.Context, cartID string, at time.Time) error {
	if m.failClear {
		return errors.New("clear failed")
	}
	c := m.carts[cartID]
	c.Clear()
	c.UpdatedAt = at
	return nil
}

func (m *memTx) GetUser(_ context.Context, id string) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memTx) Insert(_ context.Context, o *Order) error {
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *memTx) GetForUpdate(_ context.Context, id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *memTx) MarkPaid(_ context.Context, id string, at time.Time, r *PaymentResult) error {
	o := m.orders[id]
	o.IsPaid = true
	o.PaidAt = &at
	if r != nil {
		cp := *r
		o.PaymentResult = &cp
	}
	return nil
}

func (m *memTx) MarkDelivered(_ context.Context, id string, at time.Time) error {
	o := m.orders[id]
	o.IsDelivered = true
	o.DeliveredAt = &at
	return nil
}

func (m *memTx) DecrementStock(_ context.Context, productID string, qty int) error {
	m.stock[productID] -= qty
	return nil
}

type mockNotifier struct {
	mu        sync.Mutex
	purchases []string
	shipments []string
	err       error
}

func (m *mockNotifier) PurchaseReceipt(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases = append(m.purchases, o.ID)
	return m.err
}

func (m *mockNotifier) ShippingReceipt(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shipments = append(m.shipments, o.ID)
	return m.err
}

type mockWallet struct {
	createdFor decimal.Decimal
	capture    *Capture
	err        error
}

func (m *mockWallet) CreateOrder(_ context.Context, amount decimal.Decimal) (string, error) {
	m.createdFor = amount
	return "PAYPAL-1", m.err
}

func (m *mockWallet) CaptureOrder(_ context.Context, _ string) (*Capture, error) {
	return m.capture, m.err
}

type mockCard struct {
	orderID string
	amount  int64
}

func (m *mockCard) CreatePayment(_ context.Context, orderID string, amountMinor int64) (string, error) {
	m.orderID, m.amount = orderID, amountMinor
	return "pi_secret", nil
}

// --- Helpers ---

var (
	customer = auth.Identity{UserID: "u1", Role: auth.RoleUser, SessionCartID: "sess-1"}
	fixedAt  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func seedCheckout(m *memStore) {
	m.users["u1"] = &user.User{
		ID:    "u1",
		Name:  "Jane Doe",
		Email: "jane@example.com",
		Address: &user.ShippingAddress{
			FullName:      "Jane Doe",
			StreetAddress: "1 Main St",
			City:          "Springfield",
			PostalCode:    "1234",
			Country:       "USA",
		},
		PaymentMethod: user.PaymentPayPal,
	}
	c := &cart.Cart{
		ID:    "c1",
		Owner: cart.Owner{UserID: "u1", SessionCartID: "sess-1"},
		Items: []cart.Item{
			{ProductID: "p1", Name: "Polo", Slug: "polo", Size: product.SizeM, Qty: 2, Price: d("25.00")},
			{ProductID: "p2", Name: "Jeans", Slug: "jeans", Size: product.SizeL, Qty: 1, Price: d("60.00")},
		},
	}
	c.Reprice()
	m.carts[c.ID] = c
	m.stock["p1"], m.stock["p2"] = 10, 10
}

func seedOrder(m *memStore, paid bool) *Order {
	o := &Order{
		ID:     "o1",
		UserID: "u1",
		Items: []Item{
			{ProductID: "p1", Slug: "p1-shirt", Size: product.SizeM, Qty: 2, Price: d("25.00")},
		},
		Prices:        pricing.Calculate([]pricing.Line{{Price: d("25.00"), Qty: 2}}),
		PaymentMethod: user.PaymentPayPal,
		IsPaid:        paid,
	}
	m.orders[o.ID] = o
	m.stock["p1"] = 10
	return o
}

func newTestService(t *testing.T, store *memStore, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(store, opts...)
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedAt }
	return svc
}

// --- Create ---

func TestCreate(t *testing.T) {
	store := newMemStore()
	seedCheckout(store)
	svc := newTestService(t, store)

	o, err := svc.Create(context.Background(), customer)
	require.NoError(t, err)

	require.Len(t, o.Items, 2)
	assert.Equal(t, "Jane Doe", o.Customer.Name)
	assert.Equal(t, user.PaymentPayPal, o.PaymentMethod)
	assert.Equal(t, "Springfield", o.ShippingAddress.City)
	assert.Equal(t, "110.00", pricing.Format(o.Prices.ItemsPrice))
	assert.Equal(t, "0.00", pricing.Format(o.Prices.ShippingPrice))
	assert.Equal(t, "16.50", pricing.Format(o.Prices.TaxPrice))
	assert.Equal(t, "126.50", pricing.Format(o.Prices.TotalPrice))
	assert.False(t, o.IsPaid)
	assert.Equal(t, fixedAt, o.CreatedAt)

	c := store.carts["c1"]
	assert.Empty(t, c.Items)
	assert.True(t, c.Prices.TotalPrice.IsZero())
	assert.Contains(t, store.orders, o.ID)
}

func TestCreate_Preconditions(t *testing.T) {
	tests := []struct {
		name     string
		id       auth.Identity
		mutate   func(m *memStore)
		redirect string
	}{
		{
			name:     "anonymous",
			id:       auth.Identity{SessionCartID: "sess-1"},
			redirect: "/cart",
		},
		{
			name:     "no cart",
			id:       customer,
			mutate:   func(m *memStore) { delete(m.carts, "c1") },
			redirect: "/cart",
		},
		{
			name:     "empty cart",
			id:       customer,
			mutate:   func(m *memStore) { m.carts["c1"].Clear() },
			redirect: "/cart",
		},
		{
			name:     "no address",
			id:       customer,
			mutate:   func(m *memStore) { m.users["u1"].Address = nil },
			redirect: "/shipping-address",
		},
		{
			name:     "no payment method",
			id:       customer,
			mutate:   func(m *memStore) { m.users["u1"].PaymentMethod = "" },
			redirect: "/payment-method",
		},
		{
			name: "empty cart wins over missing address",
			id:   customer,
			mutate: func(m *memStore) {
				m.carts["c1"].Clear()
				m.users["u1"].Address = nil
			},
			redirect: "/cart",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			seedCheckout(store)
			if tt.mutate != nil {
				tt.mutate(store)
			}
			svc := newTestService(t, store)

			_, err := svc.Create(context.Background(), tt.id)

			var pErr *PreconditionError
			require.ErrorAs(t, err, &pErr)
			assert.Equal(t, tt.redirect, pErr.RedirectTo)
			assert.Empty(t, store.orders)
		})
	}
}

func TestCreate_RollsBackWhenCartClearFails(t *testing.T) {
	store := newMemStore()
	seedCheckout(store)
	store.failClear = true
	svc := newTestService(t, store)

	_, err := svc.Create(context.Background(), customer)
	require.Error(t, err)
	assert.Empty(t, store.orders)
	assert.Len(t, store.carts["c1"].Items, 2)
}

// --- Settlement ---

func TestMarkPaid(t *testing.T) {
	store := newMemStore()
	seedOrder(store, false)
	n := &mockNotifier{}
	svc := newTestService(t, store, WithNotifier(n))

	err := svc.MarkPaid(context.Background(), "o1", &PaymentResult{ID: "pay-1", Status: "COMPLETED"})
	require.NoError(t, err)
	svc.Wait()

	o := store.orders["o1"]
	assert.True(t, o.IsPaid)
	require.NotNil(t, o.PaidAt)
	assert.Equal(t, fixedAt, *o.PaidAt)
	assert.Equal(t, "pay-1", o.PaymentResult.ID)
	assert.Equal(t, []string{"o1"}, n.purchases)
	assert.Equal(t, 10, store.stock["p1"], "hold policy leaves stock alone")

	err = svc.MarkPaid(context.Background(), "o1", nil)
	require.ErrorIs(t, err, ErrAlreadyPaid)
	svc.Wait()
	assert.Len(t, n.purchases, 1)
}

type mockCache struct {
	mu    sync.Mutex
	slugs []string
}

func (m *mockCache) InvalidateProduct(_ context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slugs = append(m.slugs, slug)
	return nil
}

func TestMarkPaid_DecrementPolicy(t *testing.T) {
	store := newMemStore()
	seedOrder(store, false)
	cache := &mockCache{}
	svc := newTestService(t, store, WithSettlementPolicy(SettleDecrement), WithProductCache(cache))

	require.NoError(t, svc.MarkPaid(context.Background(), "o1", nil))
	assert.Equal(t, 8, store.stock["p1"])
	assert.Equal(t, []string{"p1-shirt"}, cache.slugs)
}

func TestMarkPaid_HoldPolicyKeepsCache(t *testing.T) {
	store := newMemStore()
	seedOrder(store, false)
	cache := &mockCache{}
	svc := newTestService(t, store, WithProductCache(cache))

	require.NoError(t, svc.MarkPaid(context.Background(), "o1", nil))
	assert.Equal(t, 10, store.stock["p1"])
	assert.Empty(t, cache.slugs)
}

func TestMarkPaid_NotFound(t *testing.T) {
	svc := newTestService(t, newMemStore())
	require.ErrorIs(t, svc.MarkPaid(context.Background(), "missing", nil), ErrNotFound)
}

func TestMarkPaid_NotifierFailureDoesNotFail(t *testing.T) {
	store := newMemStore()
	seedOrder(store, false)
	n := &mockNotifier{err: errors.New("smtp down")}
	svc := newTestService(t, store, WithNotifier(n))

	require.NoError(t, svc.MarkPaid(context.Background(), "o1", nil))
	svc.Wait()
	assert.True(t, store.orders["o1"].IsPaid)
}

func TestMarkPaid_ConcurrentOnlyOneWins(t *testing.T) {
	store := newMemStore()
	seedOrder(store, false)
	svc := newTestService(t, store, WithSettlementPolicy(SettleDecrement))

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		alreadyPaid int
	)
	for range 5 {
		wg.Go(func() {
			if err := svc.MarkPaid(context.Background(), "o1", nil); errors.Is(err, ErrAlreadyPaid) {
				mu.Lock()
				alreadyPaid++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 4, alreadyPaid)
	assert.Equal(t, 8, store.stock["p1"])
}

func TestMarkDelivered(t *testing.T) {
	ctx := context.Background()

	t.Run("requires payment", func(t *testing.T) {
		store := newMemStore()
		seedOrder(store, false)
		svc := newTestService(t, store)
		require.ErrorIs(t, svc.MarkDelivered(ctx, "o1"), ErrNotPaid)
		assert.False(t, store.orders["o1"].IsDelivered)
	})

	t.Run("paid order", func(t *testing.T) {
		store := newMemStore()
		seedOrder(store, true)
		n := &mockNotifier{}
		svc := newTestService(t, store, WithNotifier(n))

		require.NoError(t, svc.MarkDelivered(ctx, "o1"))
		svc.Wait()
		assert.True(t, store.orders["o1"].IsDelivered)
		assert.Equal(t, []string{"o1"}, n.shipments)

		require.ErrorIs(t, svc.MarkDelivered(ctx, "o1"), ErrAlreadyDelivered)
	})

	t.Run("not found", func(t *testing.T) {
		svc := newTestService(t, newMemStore())
		require.ErrorIs(t, svc.MarkDelivered(ctx, "missing"), ErrNotFound)
	})
}

// --- Wallet ---

func TestWalletPayment(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	o := seedOrder(store, false)
	wallet := &mockWallet{}
	svc := newTestService(t, store, WithWallet(wallet))

	providerID, err := svc.CreateWalletPayment(ctx, customer, "o1")
	require.NoError(t, err)
	assert.Equal(t, "PAYPAL-1", providerID)
	assert.True(t, o.Prices.TotalPrice.Equal(wallet.createdFor))
	assert.Equal(t, "PAYPAL-1", store.orders["o1"].PaymentResult.ID)

	wallet.capture = &Capture{
		ID:         "PAYPAL-1",
		Status:     CaptureCompleted,
		PayerEmail: "buyer@example.com",
		Amount:     o.Prices.TotalPrice,
	}
	require.NoError(t, svc.ApproveWalletPayment(ctx, customer, "o1", "PAYPAL-1"))

	paid := store.orders["o1"]
	assert.True(t, paid.IsPaid)
	assert.Equal(t, "buyer@example.com", paid.PaymentResult.EmailAddress)
	assert.Equal(t, pricing.Format(o.Prices.TotalPrice), paid.PaymentResult.PricePaid)
}

func TestApproveWalletPayment_Mismatch(t *testing.T) {
	tests := []struct {
		name    string
		capture func(total decimal.Decimal) *Capture
	}{
		{
			name: "different id",
			capture: func(total decimal.Decimal) *Capture {
				return &Capture{ID: "OTHER", Status: CaptureCompleted, Amount: total}
			},
		},
		{
			name: "not completed",
			capture: func(total decimal.Decimal) *Capture {
				return &Capture{ID: "PAYPAL-1", Status: "PENDING", Amount: total}
			},
		},
		{
			name: "short amount",
			capture: func(total decimal.Decimal) *Capture {
				return &Capture{ID: "PAYPAL-1", Status: CaptureCompleted, Amount: total.Sub(d("1"))}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newMemStore()
			o := seedOrder(store, false)
			wallet := &mockWallet{}
			svc := newTestService(t, store, WithWallet(wallet))

			_, err := svc.CreateWalletPayment(ctx, customer, "o1")
			require.NoError(t, err)

			wallet.capture = tt.capture(o.Prices.TotalPrice)
			err = svc.ApproveWalletPayment(ctx, customer, "o1", "PAYPAL-1")

			var mErr *PaymentMismatchError
			require.ErrorAs(t, err, &mErr)
			assert.False(t, store.orders["o1"].IsPaid)
		})
	}
}

func TestWalletPayment_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("not configured", func(t *testing.T) {
		svc := newTestService(t, newMemStore())
		_, err := svc.CreateWalletPayment(ctx, customer, "o1")
		require.ErrorIs(t, err, ErrProviderUnavailable)
	})
	t.Run("other user's order", func(t *testing.T) {
		store := newMemStore()
		seedOrder(store, false)
		svc := newTestService(t, store, WithWallet(&mockWallet{}))
		_, err := svc.CreateWalletPayment(ctx, auth.Identity{UserID: "u2", Role: auth.RoleUser}, "o1")
		require.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("already paid", func(t *testing.T) {
		store := newMemStore()
		seedOrder(store, true)
		svc := newTestService(t, store, WithWallet(&mockWallet{}))
		_, err := svc.CreateWalletPayment(ctx, customer, "o1")
		require.ErrorIs(t, err, ErrAlreadyPaid)
	})
	t.Run("approve before create", func(t *testing.T) {
		store := newMemStore()
		seedOrder(store, false)
		svc := newTestService(t, store, WithWallet(&mockWallet{}))
		err := svc.ApproveWalletPayment(ctx, customer, "o1", "PAYPAL-1")
		require.ErrorIs(t, err, ErrPaymentNotStarted)
	})
}

// --- Card ---

func TestCardPayment(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	o := seedOrder(store, false) // total 67.50
	card := &mockCard{}
	n := &mockNotifier{}
	svc := newTestService(t, store, WithCard(card), WithNotifier(n))

	secret, err := svc.CreateCardPayment(ctx, customer, "o1")
	require.NoError(t, err)
	assert.Equal(t, "pi_secret", secret)
	assert.Equal(t, "o1", card.orderID)
	assert.Equal(t, int64(6750), card.amount)

	err = svc.HandleCardCharge(ctx, CardCharge{
		OrderID:     "o1",
		ChargeID:    "ch_1",
		Email:       "jane@example.com",
		AmountMinor: MinorUnits(o.Prices.TotalPrice),
	})
	require.NoError(t, err)
	svc.Wait()

	paid := store.orders["o1"]
	assert.True(t, paid.IsPaid)
	assert.Equal(t, "ch_1", paid.PaymentResult.ID)
	assert.Equal(t, CaptureCompleted, paid.PaymentResult.Status)
	assert.Equal(t, "67.50", paid.PaymentResult.PricePaid)
	assert.Equal(t, []string{"o1"}, n.purchases)

	err = svc.HandleCardCharge(ctx, CardCharge{OrderID: "o1", ChargeID: "ch_2", AmountMinor: 6750})
	require.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestHandleCardCharge_Errors(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedOrder(store, false)
	svc := newTestService(t, store)

	var mErr *PaymentMismatchError
	require.ErrorAs(t, svc.HandleCardCharge(ctx, CardCharge{ChargeID: "ch_1"}), &mErr)
	require.ErrorAs(t, svc.HandleCardCharge(ctx, CardCharge{OrderID: "o1", AmountMinor: 100}), &mErr)
	require.ErrorIs(t, svc.HandleCardCharge(ctx, CardCharge{OrderID: "missing", AmountMinor: 100}), ErrNotFound)
	assert.False(t, store.orders["o1"].IsPaid)
}

// --- Queries ---

func TestGet_Access(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	seedOrder(store, false)
	svc := newTestService(t, store)

	_, err := svc.Get(ctx, customer, "o1")
	require.NoError(t, err)

	_, err = svc.Get(ctx, auth.Identity{UserID: "admin", Role: auth.RoleAdmin}, "o1")
	require.NoError(t, err)

	_, err = svc.Get(ctx, auth.Identity{UserID: "u2", Role: auth.RoleUser}, "o1")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Get(ctx, auth.Identity{}, "o1")
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
}

func TestListMine_Pages(t *testing.T) {
	store := newMemStore()
	seedOrder(store, false)
	svc := newTestService(t, store)

	orders, totalPages, err := svc.ListMine(context.Background(), customer, Page{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Equal(t, 1, totalPages)
}

func TestParseSettlementPolicy(t *testing.T) {
	p, err := ParseSettlementPolicy("")
	require.NoError(t, err)
	assert.Equal(t, SettleHold, p)

	p, err = ParseSettlementPolicy("decrement")
	require.NoError(t, err)
	assert.Equal(t, SettleDecrement, p)

	_, err = ParseSettlementPolicy("refund")
	require.Error(t, err)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(12650), MinorUnits(d("126.50")))
	assert.Equal(t, int64(1), MinorUnits(d("0.005")))
	assert.Equal(t, int64(0), MinorUnits(decimal.Zero))
}
