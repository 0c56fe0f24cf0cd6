package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/anh26092005/web-thu-c-sub000/internal/services"
)

// NotificationConsumer receives order confirmation jobs and hands them to the
// notification service. Failed deliveries are nacked so Pub/Sub redelivers them.
type NotificationConsumer struct {
	sub         *pubsub.Subscription
	sender      services.NotificationService
	maxAttempts int
	logger      *zap.Logger
	onDropped   func(ctx context.Context)
}

// ConsumerOption customises a NotificationConsumer.
type ConsumerOption func(*NotificationConsumer)

// WithConsumerLogger sets the logger.
func WithConsumerLogger(logger *zap.Logger) ConsumerOption {
	return func(c *NotificationConsumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxAttempts acks messages once Pub/Sub reports this many delivery
// attempts. Attempts are only reported on subscriptions with a dead-letter policy.
func WithMaxAttempts(n int) ConsumerOption {
	return func(c *NotificationConsumer) {
		c.maxAttempts = n
	}
}

// WithDroppedHook is invoked for every message acked without delivery.
func WithDroppedHook(fn func(ctx context.Context)) ConsumerOption {
	return func(c *NotificationConsumer) {
		c.onDropped = fn
	}
}

// NewNotificationConsumer constructs a consumer bound to sub.
func NewNotificationConsumer(sub *pubsub.Subscription, sender services.NotificationService, opts ...ConsumerOption) (*NotificationConsumer, error) {
	if sub == nil {
		return nil, errors.New("notification consumer: subscription is required")
	}
	if sender == nil {
		return nil, errors.New("notification consumer: notification service is required")
	}
	c := &NotificationConsumer{
		sub:    sub,
		sender: sender,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Run blocks receiving messages until ctx is cancelled.
func (c *NotificationConsumer) Run(ctx context.Context) error {
	err := c.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// process reports whether msg should be acked.
func (c *NotificationConsumer) process(ctx context.Context, msg *pubsub.Message) bool {
	if kind := msg.Attributes["kind"]; kind != "" && kind != KindOrderConfirmation {
		c.logger.Warn("notification consumer: unexpected message kind", zap.String("kind", kind), zap.String("messageId", msg.ID))
		return true
	}

	var payload OrderConfirmationMessage
	if err := json.Unmarshal(msg.Data, &payload); err != nil || strings.TrimSpace(payload.OrderID) == "" {
		c.logger.Error("notification consumer: malformed message", zap.String("messageId", msg.ID), zap.Error(err))
		c.dropped(ctx)
		return true
	}

	err := c.sender.SendOrderConfirmation(ctx, payload.OrderID)
	if err == nil {
		return true
	}

	fields := []zap.Field{
		zap.String("orderId", payload.OrderID),
		zap.String("messageId", msg.ID),
		zap.Error(err),
	}
	if errors.Is(err, services.ErrOrderNotFound) || errors.Is(err, services.ErrNotificationInvalidInput) {
		c.logger.Error("notification consumer: dropping job for unknown order", fields...)
		c.dropped(ctx)
		return true
	}
	if attempt := msg.DeliveryAttempt; attempt != nil && c.maxAttempts > 0 && *attempt >= c.maxAttempts {
		c.logger.Error("notification consumer: giving up after max attempts", append(fields, zap.Int("attempt", *attempt))...)
		c.dropped(ctx)
		return true
	}
	c.logger.Warn("notification consumer: delivery failed, will retry", fields...)
	return false
}

func (c *NotificationConsumer) dropped(ctx context.Context) {
	if c.onDropped != nil {
		c.onDropped(ctx)
	}
}
