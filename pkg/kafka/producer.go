package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
)

// HeaderEventType names the Go type carried in a message value so consumers
// on a shared topic can skip events they do not understand.
const HeaderEventType = "event-type"

// Event is one message to publish. Key selects the partition; all events for
// a field land on the same partition and are therefore seen in order.
type Event struct {
	Key   string
	Value any
}

// Publisher is the producer side used by the index builder.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON-encoded events to one topic and waits for every
// in-sync replica to acknowledge them.
type Producer struct {
	writer messageWriter
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            5,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newProducer(w, topic)
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish blocks until the event is acknowledged or ctx ends.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish failed", "key", event.Key, "error", err)
		return fmt.Errorf("publishing %s event: %w", event.Key, err)
	}
	p.logger.Info("event published",
		"key", event.Key,
		"type", string(msg.Headers[0].Value),
		"bytes", len(msg.Value),
		"took", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encode(event Event) (kafka.Message, error) {
	if event.Key == "" {
		return kafka.Message{}, fmt.Errorf("event of type %T has no key", event.Value)
	}
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding %s event: %w", event.Key, err)
	}
	return kafka.Message{
		Key:     []byte(event.Key),
		Value:   value,
		Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte(fmt.Sprintf("%T", event.Value))}},
	}, nil
}
