// Package events publishes marketplace lifecycle events to Kafka for
// downstream consumers such as fulfilment and analytics.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/config"
	"github.com/segmentio/kafka-go"
)

type Type string

const (
	OrderPlaced    Type = "order_placed"
	OrderUpdated   Type = "order_updated"
	OrderCancelled Type = "order_cancelled"
	DealAccepted   Type = "deal_accepted"
	DealRejected   Type = "deal_rejected"
)

type Event struct {
	Type        Type      `json:"type"`
	AggregateID string    `json:"aggregate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Data        any       `json:"data"`
}

func New(t Type, aggregateID string, data any) Event {
	return Event{Type: t, AggregateID: aggregateID, OccurredAt: time.Now().UTC(), Data: data}
}

// Key is the aggregate id. The writer hashes keys, so every event of one
// order or negotiation lands on the same partition in publish order.
func (e Event) Key() string {
	return e.AggregateID
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Writer is the subset of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(cfg config.Kafka) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
	}
}

type KafkaPublisher struct {
	writer Writer
}

func NewKafkaPublisher(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.Key()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", ev.Type, err)
	}

	middleware.LoggerFromContext(ctx).Debug("Event published",
		slog.String("type", string(ev.Type)),
		slog.String("aggregateId", ev.AggregateID))

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, ev Event) error {
	middleware.LoggerFromContext(ctx).Debug("Event publishing disabled", slog.String("type", string(ev.Type)))
	return nil
}

func (NoopPublisher) Close() error { return nil }

func NewPublisher(cfg config.Kafka) Publisher {
	if len(cfg.Brokers) == 0 {
		return NoopPublisher{}
	}

	return NewKafkaPublisher(NewKafkaWriter(cfg))
}
