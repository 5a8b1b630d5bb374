// Package events publishes job lifecycle notifications to Kafka. Publishing
// is best-effort from the pipeline's point of view: a broker outage must
// never fail or stall a review job, so callers log publish errors and move
// on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/review-generation-service/internal/domain"
)

const defaultWriteTimeout = 5 * time.Second

// Publisher sends JobEvents to a Kafka topic, keyed by job ID so all events
// for one job land on the same partition in order.
type Publisher interface {
	Publish(ctx context.Context, event domain.JobEvent) error
	Close() error
}

// kafkaWriter is the subset of kafka.Writer used by the publisher, extracted
// for testing.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds Kafka publisher settings.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the topic for job lifecycle events.
	Topic string
	// WriteTimeout is the maximum time to wait for a publish.
	WriteTimeout time.Duration
}

// KafkaPublisher publishes lifecycle events via a kafka-go writer.
type KafkaPublisher struct {
	writer       kafkaWriter
	writeTimeout time.Duration
	logger       zerolog.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(cfg Config, logger zerolog.Logger) *KafkaPublisher {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: writeTimeout,
		BatchTimeout: 50 * time.Millisecond,
	}

	return &KafkaPublisher{
		writer:       writer,
		writeTimeout: writeTimeout,
		logger:       logger.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish sends one lifecycle event. The event gets an ID and timestamp if
// the caller left them zero.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.JobEvent) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.JobID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID.String())},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write job event %s: %w", event.EventType, err)
	}

	p.logger.Debug().
		Str("event_type", event.EventType).
		Str("job_id", event.JobID.String()).
		Msg("published job event")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards events. Used when event publishing is disabled.
type NopPublisher struct{}

var _ Publisher = (*NopPublisher)(nil)

// Publish discards the event.
func (NopPublisher) Publish(context.Context, domain.JobEvent) error { return nil }

// Close is a no-op.
func (NopPublisher) Close() error { return nil }
