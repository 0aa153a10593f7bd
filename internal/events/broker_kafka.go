package events

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// MessageWriter is the subset of *kafka.Writer the broker uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaBroker writes envelopes to a Kafka topic keyed by aggregate id, so
// events for one aggregate stay ordered within a partition.
type KafkaBroker struct {
	writer MessageWriter
}

// NewKafkaBroker creates a broker backed by a kafka-go Writer.
func NewKafkaBroker(brokers []string, topic string) *KafkaBroker {
	if topic == "" {
		topic = DefaultTopic
	}
	return NewKafkaBrokerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	})
}

// NewKafkaBrokerWithWriter wraps an existing writer.
func NewKafkaBrokerWithWriter(w MessageWriter) *KafkaBroker {
	return &KafkaBroker{writer: w}
}

// Publish writes one message. Trace context travels in the message headers.
func (b *KafkaBroker) Publish(ctx context.Context, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := []kafka.Header{
		{Key: "content-type", Value: []byte(CloudEventsContentType)},
		{Key: "ce_type", Value: []byte(env.Type)},
	}
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Key:     []byte(env.Data.AggregateID.String()),
		Value:   value,
		Headers: headers,
		Time:    env.Time,
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish failed: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (b *KafkaBroker) Close() error {
	return b.writer.Close()
}
