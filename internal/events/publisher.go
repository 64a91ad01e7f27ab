package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event types; each is published to the topic of the same name (plus prefix)
const (
	BookingConfirmed = "booking.confirmed"
	BookingCancelled = "booking.cancelled"
	CheckoutRefunded = "checkout.refunded"
)

const envelopeVersion = 1

// Envelope is the wire format of every published event
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Event is what services hand to a Publisher
type Event struct {
	Type          string
	Key           string // partition key, usually the booking id
	CorrelationID string
	Payload       interface{}
}

// BookingPayload describes a booking state change
type BookingPayload struct {
	BookingID        string    `json:"booking_id"`
	BookingReference string    `json:"booking_reference,omitempty"`
	ListingID        int64     `json:"listing_id"`
	UserID           string    `json:"user_id,omitempty"`
	CheckIn          time.Time `json:"check_in"`
	CheckOut         time.Time `json:"check_out"`
	TotalPrice       float64   `json:"total_price"`
	Status           string    `json:"status"`
	PaymentStatus    string    `json:"payment_status"`
}

// RefundPayload describes a payment returned because its dates were taken
type RefundPayload struct {
	SessionID        string    `json:"session_id"`
	PaymentReference string    `json:"payment_reference"`
	ListingID        int64     `json:"listing_id"`
	CheckIn          time.Time `json:"check_in"`
	CheckOut         time.Time `json:"check_out"`
	TotalPrice       float64   `json:"total_price"`
}

// Publisher emits domain events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NewEnvelope wraps an event for the wire
func NewEnvelope(producer string, event Event) (Envelope, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", event.Type, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     event.Type,
		EventVersion:  envelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: event.CorrelationID,
		Payload:       payload,
	}, nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes envelopes to Kafka, one topic per event type
type KafkaPublisher struct {
	w           messageWriter
	topicPrefix string
	producer    string
}

// NewKafkaPublisher creates a synchronous publisher. Messages with the same
// key land on the same partition.
func NewKafkaPublisher(brokers []string, topicPrefix, producer string) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		topicPrefix: topicPrefix,
		producer:    producer,
	}
}

// Publish implements Publisher
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	env, err := NewEnvelope(p.producer, event)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Topic: p.topicPrefix + event.Type,
		Key:   []byte(event.Key),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(env.EventID)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes pending writes
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NopPublisher drops events; used when no brokers are configured
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close implements Publisher
func (NopPublisher) Close() error { return nil }
