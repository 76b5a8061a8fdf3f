package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/orchidmarket/api/internal/domain"
)

// PubSubPublisher publishes order notifications to a Pub/Sub topic consumed by
// the downstream e-mail and QR rendering workers.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a Pub/Sub backed order notification publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	return &PubSubPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// Publish enqueues the notification on the configured topic and waits for the
// server-assigned message id.
func (p *PubSubPublisher) Publish(ctx context.Context, notification domain.OrderNotification) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub notification publisher: not initialised")
	}

	data, err := p.marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal order notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "event", notification.Event)
	setAttr(attrs, "orderId", notification.OrderID)
	setAttr(attrs, "orderNumber", notification.OrderNumber)
	setAttr(attrs, "status", string(notification.Status))

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order notification: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
