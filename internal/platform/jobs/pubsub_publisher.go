package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/anh26092005/web-thu-c-sub000/internal/services"
)

// KindOrderConfirmation tags order confirmation messages.
const KindOrderConfirmation = "order_confirmation"

// OrderConfirmationMessage is the payload delivered to the notifier via Pub/Sub.
type OrderConfirmationMessage struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	Email       string    `json:"email,omitempty"`
	QueuedAt    time.Time `json:"queuedAt"`
}

// PubSubNotificationPublisher publishes order confirmation jobs to a Pub/Sub topic.
type PubSubNotificationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.NotificationQueue = (*PubSubNotificationPublisher)(nil)

// NewPubSubNotificationPublisher constructs a Pub/Sub backed notification queue.
func NewPubSubNotificationPublisher(topic *pubsub.Topic) (*PubSubNotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	return &PubSubNotificationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderConfirmation enqueues a confirmation job and waits for the server ack.
func (p *PubSubNotificationPublisher) PublishOrderConfirmation(ctx context.Context, job services.OrderConfirmationJob) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub notification publisher: not initialised")
	}
	if strings.TrimSpace(job.OrderID) == "" {
		return errors.New("pubsub notification publisher: order id is required")
	}

	data, err := p.marshal(OrderConfirmationMessage{
		OrderID:     job.OrderID,
		OrderNumber: job.OrderNumber,
		Email:       job.Email,
		QueuedAt:    job.QueuedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal order confirmation: %w", err)
	}

	attrs := map[string]string{"kind": KindOrderConfirmation}
	setAttr(attrs, "orderId", job.OrderID)
	setAttr(attrs, "orderNumber", job.OrderNumber)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order confirmation: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
