package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reader is the subset of *kafka.Reader used by Consumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Reader = (*kafka.Reader)(nil)

// Sender delivers a receipt to its customer.
type Sender interface {
	Send(ctx context.Context, r Receipt) error
}

// NewReader creates a consumer-group reader for receipts.
func NewReader(brokers []string, groupID, topic string) *kafka.Reader {
	if topic == "" {
		topic = DefaultTopic
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		Topic:             topic,
		MinBytes:          1,
		MaxBytes:          10e6,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	})
}

// Consumer reads receipts and hands them to a Sender. A message is committed
// once it was delivered or found undeliverable; failed deliveries are
// retried.
type Consumer struct {
	r       Reader
	s       Sender
	lg      *zap.Logger
	retries int
	backoff time.Duration
}

// NewConsumer creates a Consumer.
func NewConsumer(r Reader, s Sender, lg *zap.Logger) *Consumer {
	return &Consumer{r: r, s: s, lg: lg, retries: 3, backoff: time.Second}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.lg.Info("Receipt consumer started")
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}

		c.handle(ctx, m)

		if err := c.r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit message")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	lg := c.lg.With(zap.Int64("offset", m.Offset), zap.Int("partition", m.Partition))

	var r Receipt
	if err := json.Unmarshal(m.Value, &r); err != nil {
		lg.Error("Dropping undecodable receipt", zap.ByteString("value", m.Value), zap.Error(err))
		return
	}
	if r.Email == "" || r.OrderID == "" {
		lg.Warn("Dropping incomplete receipt", zap.String("order_id", r.OrderID))
		return
	}
	lg = lg.With(zap.String("order_id", r.OrderID), zap.String("kind", string(r.Kind)))

	for attempt := 1; ; attempt++ {
		err := c.s.Send(ctx, r)
		if err == nil {
			lg.Info("Receipt sent", zap.String("to", r.Email))
			return
		}
		if attempt > c.retries || ctx.Err() != nil {
			lg.Error("Receipt delivery failed", zap.Int("attempts", attempt), zap.Error(err))
			return
		}
		lg.Warn("Receipt delivery failed, retrying", zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.r.Close()
}
