package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/product"
)

type mockWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *mockWriter) Close() error { return nil }

func testOrder() *order.Order {
	return &order.Order{
		ID:       "o1",
		Customer: order.Customer{Name: "Ada", Email: "ada@example.com"},
		Items: []order.Item{
			{ProductID: "p1", Name: "Polo", Size: product.SizeM, Qty: 2, Price: decimal.RequireFromString("25")},
		},
	}
}

func TestProducer_PurchaseReceipt(t *testing.T) {
	w := &mockWriter{}
	p := NewProducer(w)

	require.NoError(t, p.PurchaseReceipt(context.Background(), testOrder()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "o1", string(w.msgs[0].Key))

	var r Receipt
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &r))
	assert.Equal(t, KindPurchase, r.Kind)
	assert.Equal(t, "ada@example.com", r.Email)
	require.Len(t, r.Lines, 1)
	assert.Equal(t, "M", r.Lines[0].Size)
	assert.True(t, r.Lines[0].Price.Equal(decimal.RequireFromString("25")))
}

func TestProducer_Errors(t *testing.T) {
	o := testOrder()
	o.Customer.Email = ""
	require.Error(t, NewProducer(&mockWriter{}).ShippingReceipt(context.Background(), o))

	w := &mockWriter{err: errors.New("broker down")}
	err := NewProducer(w).ShippingReceipt(context.Background(), testOrder())
	require.ErrorContains(t, err, "broker down")
}

func TestReceipt_Subject(t *testing.T) {
	o := testOrder()
	assert.Equal(t, "Order confirmation o1", NewReceipt(KindPurchase, o).Subject())
	assert.Equal(t, "Your order o1 is on its way", NewReceipt(KindShipping, o).Subject())
}

// mockReader serves queued messages, then blocks until ctx is done.
type mockReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *mockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *mockReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *mockReader) Close() error { return nil }

func (r *mockReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type mockSender struct {
	mu       sync.Mutex
	sent     []Receipt
	failures int
}

func (s *mockSender) Send(_ context.Context, r Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("smtp unavailable")
	}
	s.sent = append(s.sent, r)
	return nil
}

func (s *mockSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func encode(t *testing.T, r Receipt) []byte {
	t.Helper()
	b, err := json.Marshal(r)
	require.NoError(t, err)
	return b
}

func TestConsumer_Run(t *testing.T) {
	valid := NewReceipt(KindPurchase, testOrder())
	r := &mockReader{queue: []kafka.Message{
		{Offset: 1, Value: encode(t, valid)},
		{Offset: 2, Value: []byte("{broken")},
		{Offset: 3, Value: encode(t, Receipt{Kind: KindPurchase, OrderID: "o2"})},
		{Offset: 4, Value: encode(t, valid)},
	}}
	s := &mockSender{failures: 1}

	c := NewConsumer(r, s, zap.NewNop())
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(r.committedOffsets()) == 4 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3, 4}, r.committedOffsets())
	assert.Equal(t, 2, s.count(), "undecodable and incomplete receipts are dropped")
}

func TestConsumer_GivesUp(t *testing.T) {
	r := &mockReader{queue: []kafka.Message{
		{Offset: 7, Value: encode(t, NewReceipt(KindShipping, testOrder()))},
	}}
	s := &mockSender{failures: 100}

	c := NewConsumer(r, s, zap.NewNop())
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(r.committedOffsets()) == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, s.count())
}
