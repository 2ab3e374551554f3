package order

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/pricing"
	"github.com/xenking/kart-storefront/internal/domain/product"
)

// LatestOrders is how many recent orders the admin summary shows.
const LatestOrders = 6

// CardProvider starts card payments such as Stripe payment intents.
type CardProvider interface {
	CreatePayment(ctx context.Context, orderID string, amountMinor int64) (clientSecret string, err error)
}

// Option configures a Service.
type Option func(*Service)

// WithSettlementPolicy sets the stock policy applied when orders are paid.
func WithSettlementPolicy(p SettlementPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithWallet enables wallet payments.
func WithWallet(w WalletProvider) Option {
	return func(s *Service) { s.wallet = w }
}

// WithCard enables card payment creation.
func WithCard(c CardProvider) Option {
	return func(s *Service) { s.card = c }
}

// WithNotifier sets where receipts are sent.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithProductCache drops cached products whose stock a settlement changed.
func WithProductCache(c product.CacheInvalidator) Option {
	return func(s *Service) { s.cache = c }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("kart/order") }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter("kart/order") }
}

// Service encapsulates checkout and settlement business logic.
type Service struct {
	store    Store
	wallet   WalletProvider
	card     CardProvider
	notifier Notifier
	cache    product.CacheInvalidator
	policy   SettlementPolicy
	now      func() time.Time

	// notifications tracks receipt deliveries still running.
	notifications sync.WaitGroup

	tracer  trace.Tracer
	meter   metric.Meter
	created metric.Int64Counter
	settled metric.Int64Counter
}

// NewService creates an order Service.
func NewService(store Store, opts ...Option) (*Service, error) {
	s := &Service{
		store:  store,
		policy: SettleHold,
		now:    time.Now,
		tracer: tracenoop.NewTracerProvider().Tracer("kart/order"),
		meter:  metricnoop.NewMeterProvider().Meter("kart/order"),
	}
	for _, o := range opts {
		o(s)
	}

	var err error
	if s.created, err = s.meter.Int64Counter("kart.orders.created",
		metric.WithDescription("Orders placed from carts"),
	); err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	if s.settled, err = s.meter.Int64Counter("kart.orders.settled",
		metric.WithDescription("Orders marked paid, by source"),
	); err != nil {
		return nil, errors.Wrap(err, "create settled counter")
	}
	return s, nil
}

// Wait blocks until in-flight receipt notifications finish.
func (s *Service) Wait() {
	s.notifications.Wait()
}

// Create turns the caller's cart into an order and empties the cart in one
// transaction.
func (s *Service) Create(ctx context.Context, id auth.Identity) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer func() { endSpan(span, rerr) }()

	if !id.IsAuthenticated() {
		return nil, &PreconditionError{Message: "user is not authenticated", RedirectTo: "/cart"}
	}
	owner := cart.Owner{UserID: id.UserID, SessionCartID: id.SessionCartID}

	var o *Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := tx.LockCart(ctx, owner)
		switch {
		case errors.Is(err, cart.ErrNotFound):
			return &PreconditionError{Message: "your cart is empty", RedirectTo: "/cart"}
		case err != nil:
			return errors.Wrap(err, "lock cart")
		case c.IsEmpty():
			return &PreconditionError{Message: "your cart is empty", RedirectTo: "/cart"}
		}

		u, err := tx.GetUser(ctx, id.UserID)
		if err != nil {
			return errors.Wrap(err, "get user")
		}
		if u.Address == nil {
			return &PreconditionError{Message: "no shipping address", RedirectTo: "/shipping-address"}
		}
		if u.PaymentMethod == "" {
			return &PreconditionError{Message: "no payment method", RedirectTo: "/payment-method"}
		}

		now := s.now()
		o = &Order{
			ID:              uuid.New().String(),
			UserID:          u.ID,
			Customer:        Customer{Name: u.Name, Email: u.Email},
			ShippingAddress: *u.Address,
			PaymentMethod:   u.PaymentMethod,
			Items:           make([]Item, len(c.Items)),
			Prices:          c.Prices,
			CreatedAt:       now,
		}
		for i, it := range c.Items {
			o.Items[i] = Item{
				ProductID: it.ProductID,
				Name:      it.Name,
				Slug:      it.Slug,
				Size:      it.Size,
				Qty:       it.Qty,
				Image:     it.Image,
				Price:     it.Price,
			}
		}

		if err := tx.Insert(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.ClearCart(ctx, c.ID, now); err != nil {
			return errors.Wrap(err, "clear cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.created.Add(ctx, 1)
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("total", pricing.Format(o.Prices.TotalPrice)),
	)
	return o, nil
}

// Get returns an order the caller owns, or any order for administrators.
func (s *Service) Get(ctx context.Context, id auth.Identity, orderID string) (*Order, error) {
	if !id.IsAuthenticated() {
		return nil, auth.ErrUnauthenticated
	}
	o, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	if !id.CanAccess(o.UserID) {
		// Hide the existence of other users' orders.
		return nil, ErrNotFound
	}
	return o, nil
}

// ListMine returns a page of the caller's orders, newest first, and the
// total number of pages.
func (s *Service) ListMine(ctx context.Context, id auth.Identity, p Page) ([]Order, int, error) {
	if !id.IsAuthenticated() {
		return nil, 0, auth.ErrUnauthenticated
	}
	p = p.Normalize()
	orders, total, err := s.store.ListByUser(ctx, id.UserID, p)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return orders, pages(total, p.Limit), nil
}

// List returns a page of all orders for administrators and the total number
// of pages.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	f.Page = f.Page.Normalize()
	orders, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return orders, pages(total, f.Limit), nil
}

// Delete removes an order.
func (s *Service) Delete(ctx context.Context, orderID string) error {
	if err := s.store.Delete(ctx, orderID); err != nil {
		return errors.Wrap(err, "delete order")
	}
	return nil
}

// Summary returns the admin dashboard overview.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	sum, err := s.store.Summary(ctx, LatestOrders)
	if err != nil {
		return nil, errors.Wrap(err, "order summary")
	}
	return sum, nil
}

// MarkPaid settles an order. r may be nil for cash on delivery.
func (s *Service) MarkPaid(ctx context.Context, orderID string, r *PaymentResult) error {
	return s.settle(ctx, "manual", orderID, r, nil)
}

// MarkDelivered records delivery of a paid order.
func (s *Service) MarkDelivered(ctx context.Context, orderID string) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.MarkDelivered",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer func() { endSpan(span, rerr) }()

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetForUpdate(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		if !o.IsPaid {
			return ErrNotPaid
		}
		if o.IsDelivered {
			return ErrAlreadyDelivered
		}
		if err := tx.MarkDelivered(ctx, orderID, s.now()); err != nil {
			return errors.Wrap(err, "mark delivered")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx, orderID, shippingReceipt)
	return nil
}

// CreateWalletPayment opens a wallet payment for the order total and stores
// the provider order id as the provisional payment result.
func (s *Service) CreateWalletPayment(ctx context.Context, id auth.Identity, orderID string) (string, error) {
	if s.wallet == nil {
		return "", ErrProviderUnavailable
	}
	o, err := s.Get(ctx, id, orderID)
	if err != nil {
		return "", err
	}
	if o.IsPaid {
		return "", ErrAlreadyPaid
	}

	providerID, err := s.wallet.CreateOrder(ctx, o.Prices.TotalPrice)
	if err != nil {
		return "", errors.Wrap(err, "create wallet order")
	}
	if err := s.store.SetPaymentResult(ctx, o.ID, PaymentResult{ID: providerID}); err != nil {
		return "", errors.Wrap(err, "store provisional payment")
	}
	return providerID, nil
}

// ApproveWalletPayment captures a wallet payment and settles the order when
// the capture matches the provisional payment.
func (s *Service) ApproveWalletPayment(ctx context.Context, id auth.Identity, orderID, providerOrderID string) error {
	if s.wallet == nil {
		return ErrProviderUnavailable
	}
	o, err := s.Get(ctx, id, orderID)
	if err != nil {
		return err
	}
	if o.IsPaid {
		return ErrAlreadyPaid
	}
	if o.PaymentResult == nil || o.PaymentResult.ID == "" {
		return ErrPaymentNotStarted
	}

	capture, err := s.wallet.CaptureOrder(ctx, providerOrderID)
	if err != nil {
		return errors.Wrap(err, "capture wallet order")
	}
	if capture.ID != o.PaymentResult.ID {
		return &PaymentMismatchError{OrderID: orderID, Reason: "capture id differs from the started payment"}
	}
	if capture.Status != CaptureCompleted {
		return &PaymentMismatchError{OrderID: orderID, Reason: "capture status is " + capture.Status}
	}

	return s.settle(ctx, "wallet", orderID, &PaymentResult{
		ID:           capture.ID,
		Status:       capture.Status,
		EmailAddress: capture.PayerEmail,
		PricePaid:    pricing.Format(capture.Amount),
	}, expectAmount(capture.Amount))
}

// CreateCardPayment starts a card payment for the order total and returns
// the client secret the browser confirms it with.
func (s *Service) CreateCardPayment(ctx context.Context, id auth.Identity, orderID string) (string, error) {
	if s.card == nil {
		return "", ErrProviderUnavailable
	}
	o, err := s.Get(ctx, id, orderID)
	if err != nil {
		return "", err
	}
	if o.IsPaid {
		return "", ErrAlreadyPaid
	}
	secret, err := s.card.CreatePayment(ctx, o.ID, MinorUnits(o.Prices.TotalPrice))
	if err != nil {
		return "", errors.Wrap(err, "create card payment")
	}
	return secret, nil
}

// HandleCardCharge settles the order a verified card charge belongs to.
func (s *Service) HandleCardCharge(ctx context.Context, ch CardCharge) error {
	if ch.OrderID == "" {
		return &PaymentMismatchError{Reason: "charge carries no order id"}
	}
	paid := decimal.New(ch.AmountMinor, -2)
	return s.settle(ctx, "card", ch.OrderID, &PaymentResult{
		ID:           ch.ChargeID,
		Status:       CaptureCompleted,
		EmailAddress: ch.Email,
		PricePaid:    pricing.Format(paid),
	}, expectAmount(paid))
}

// MinorUnits converts an amount to cents.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func expectAmount(paid decimal.Decimal) func(*Order) error {
	return func(o *Order) error {
		if !paid.Equal(o.Prices.TotalPrice) {
			return &PaymentMismatchError{
				OrderID: o.ID,
				Reason:  "paid " + pricing.Format(paid) + ", expected " + pricing.Format(o.Prices.TotalPrice),
			}
		}
		return nil
	}
}

// settle marks the order paid under a row lock, applying the settlement
// policy, and dispatches the purchase receipt after commit.
func (s *Service) settle(ctx context.Context, source, orderID string, r *PaymentResult, check func(*Order) error) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.MarkPaid",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("payment.source", source),
		),
	)
	defer func() { endSpan(span, rerr) }()

	var decremented []Item
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetForUpdate(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		if o.IsPaid {
			return ErrAlreadyPaid
		}
		if check != nil {
			if err := check(o); err != nil {
				return err
			}
		}
		if s.policy == SettleDecrement {
			for _, it := range o.Items {
				if err := tx.DecrementStock(ctx, it.ProductID, it.Qty); err != nil {
					return errors.Wrapf(err, "decrement stock of %s", it.ProductID)
				}
			}
			decremented = o.Items
		}
		if err := tx.MarkPaid(ctx, orderID, s.now(), r); err != nil {
			return errors.Wrap(err, "mark paid")
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, it := range decremented {
		s.invalidate(ctx, it.Slug)
	}
	s.settled.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	s.notify(ctx, orderID, purchaseReceipt)
	return nil
}

func (s *Service) invalidate(ctx context.Context, slug string) {
	if s.cache == nil || slug == "" {
		return
	}
	if err := s.cache.InvalidateProduct(ctx, slug); err != nil {
		zctx.From(ctx).Warn("Product cache invalidation failed",
			zap.String("slug", slug),
			zap.Error(err),
		)
	}
}

type receipt string

const (
	purchaseReceipt receipt = "purchase"
	shippingReceipt receipt = "shipping"
)

// notify reloads the order and sends a receipt in the background. Failures
// are logged and never reach the caller.
func (s *Service) notify(ctx context.Context, orderID string, kind receipt) {
	if s.notifier == nil {
		return
	}
	send := s.notifier.PurchaseReceipt
	if kind == shippingReceipt {
		send = s.notifier.ShippingReceipt
	}
	lg := zctx.From(ctx).With(
		zap.String("order_id", orderID),
		zap.String("receipt", string(kind)),
	)
	ctx = context.WithoutCancel(ctx)

	s.notifications.Go(func() {
		o, err := s.store.GetByID(ctx, orderID)
		if err != nil {
			lg.Warn("Load order for receipt failed", zap.Error(err))
			return
		}
		if err := send(ctx, o); err != nil {
			lg.Warn("Send receipt failed", zap.Error(err))
		}
	})
}

func pages(total, limit int) int {
	if limit < 1 || total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
