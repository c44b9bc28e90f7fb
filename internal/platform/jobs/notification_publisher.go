package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	domain "github.com/cardapio-field/api/internal/domain"
)

// NotificationMessage is the Pub/Sub payload announcing a new order to staff devices.
type NotificationMessage struct {
	RestaurantID string              `json:"restaurantId"`
	Notification domain.Notification `json:"notification"`
}

// PubSubNotificationPublisher fans new-order notifications out over a Pub/Sub topic.
type PubSubNotificationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubNotificationPublisher constructs a publisher bound to topic.
func NewPubSubNotificationPublisher(topic *pubsub.Topic) (*PubSubNotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	return &PubSubNotificationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishNotification publishes n and waits for the server ack. Messages are ordered per
// restaurant when the topic has ordering enabled.
func (p *PubSubNotificationPublisher) PublishNotification(ctx context.Context, restaurantID string, n domain.Notification) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub notification publisher: not initialised")
	}

	data, err := p.marshal(NotificationMessage{RestaurantID: restaurantID, Notification: n})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "restaurantId", restaurantID)
	setAttr(attrs, "notificationId", n.ID)
	setAttr(attrs, "orderId", n.OrderID)
	setAttr(attrs, "type", n.Type)

	msg := &pubsub.Message{Data: data, Attributes: attrs}
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = restaurantID
	}

	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubNotificationPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
