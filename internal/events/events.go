// Package events publishes order status changes for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// OrderStatusChanged is emitted after an order leaves the pending state
type OrderStatusChanged struct {
	OrderID    int64     `json:"order_id"`
	ShortCode  string    `json:"short_code"`
	Status     string    `json:"status"`
	TotalCents int64     `json:"total_cents"`
	PaymentID  string    `json:"payment_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers order events
type Publisher interface {
	PublishOrderStatus(ctx context.Context, event OrderStatusChanged) error
	Close()
}

// KafkaPublisher writes events to a Kafka topic keyed by order id
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects a producer to brokers
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

func (p *KafkaPublisher) PublishOrderStatus(ctx context.Context, event OrderStatusChanged) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode order event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(event.OrderID, 10)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte("order.status_changed")},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce order event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// Nop drops every event
type Nop struct{}

func (Nop) PublishOrderStatus(context.Context, OrderStatusChanged) error { return nil }
func (Nop) Close()                                                      {}

// New returns a Kafka publisher when brokers are configured and Nop otherwise
func New(brokers []string, topic string) (Publisher, error) {
	if len(brokers) == 0 {
		slog.Info("no kafka brokers configured, order events disabled")
		return Nop{}, nil
	}
	return NewKafkaPublisher(brokers, topic)
}
