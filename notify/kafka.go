package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-payments/core"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaNotifier publishes resolution events keyed by intent id so every
// event for an intent lands on the same partition.
type KafkaNotifier struct {
	writer MessageWriter
	topic  string
}

func NewKafkaNotifier(cfg KafkaConfig) (*KafkaNotifier, error) {
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, fmt.Errorf("notify: kafka topic is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("notify: kafka brokers are required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}
	return &KafkaNotifier{writer: writer, topic: topic}, nil
}

func NewKafkaNotifierWithWriter(writer MessageWriter, topic string) (*KafkaNotifier, error) {
	if writer == nil {
		return nil, fmt.Errorf("notify: kafka writer is required")
	}
	return &KafkaNotifier{writer: writer, topic: strings.TrimSpace(topic)}, nil
}

func (n *KafkaNotifier) Name() string {
	return "kafka"
}

func (n *KafkaNotifier) Notify(ctx context.Context, event core.ResolutionEvent) error {
	data, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("notify: encode kafka event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.IntentID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventType(event))},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("notify: write kafka message to %s: %w", n.topic, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	if n == nil || n.writer == nil {
		return nil
	}
	return n.writer.Close()
}

var (
	_ core.Notifier      = (*KafkaNotifier)(nil)
	_ core.NamedNotifier = (*KafkaNotifier)(nil)
	_ MessageWriter      = (*kafka.Writer)(nil)
)
