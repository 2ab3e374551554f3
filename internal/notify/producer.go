package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/order"
)

// DefaultTopic is the Kafka topic receipts are published to.
const DefaultTopic = "kart.receipts"

// Writer is the subset of *kafka.Writer used by Producer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var (
	_ Writer         = (*kafka.Writer)(nil)
	_ order.Notifier = (*Producer)(nil)
	_ order.Notifier = Log{}
)

// Producer publishes receipts to Kafka keyed by order id.
type Producer struct {
	w Writer
}

// NewWriter creates a synchronous kafka.Writer for receipts.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            5,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// NewProducer creates a Producer on top of w.
func NewProducer(w Writer) *Producer {
	return &Producer{w: w}
}

// PurchaseReceipt publishes a purchase receipt for a paid order.
func (p *Producer) PurchaseReceipt(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, NewReceipt(KindPurchase, o))
}

// ShippingReceipt publishes a shipping receipt for a delivered order.
func (p *Producer) ShippingReceipt(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, NewReceipt(KindShipping, o))
}

func (p *Producer) publish(ctx context.Context, r Receipt) error {
	if r.Email == "" {
		return errors.Errorf("order %s has no customer email", r.OrderID)
	}
	b, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "encode receipt")
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(r.OrderID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(r.Kind)},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "publish %s receipt for order %s", r.Kind, r.OrderID)
	}
	zctx.From(ctx).Debug("Receipt published",
		zap.String("order_id", r.OrderID),
		zap.String("kind", string(r.Kind)),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.w.Close()
}

// Log is a Notifier that only logs receipts. It is used when no broker is
// configured.
type Log struct{}

func (Log) PurchaseReceipt(ctx context.Context, o *order.Order) error {
	logReceipt(ctx, NewReceipt(KindPurchase, o))
	return nil
}

func (Log) ShippingReceipt(ctx context.Context, o *order.Order) error {
	logReceipt(ctx, NewReceipt(KindShipping, o))
	return nil
}

func logReceipt(ctx context.Context, r Receipt) {
	zctx.From(ctx).Info("Receipt not delivered, no broker configured",
		zap.String("order_id", r.OrderID),
		zap.String("kind", string(r.Kind)),
		zap.String("email", r.Email),
	)
}
