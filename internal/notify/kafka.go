package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"equity-scanner/internal/config"
)

// messageWriter is the part of *kafka.Writer the channel uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaChannel publishes notifications as JSON messages keyed by type.
type KafkaChannel struct {
	writer messageWriter
	topic  string
}

// NewKafkaChannel creates a publisher for the configured brokers and topic.
func NewKafkaChannel(cfg config.KafkaConfig) (*KafkaChannel, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 100 * time.Millisecond,
	}
	return &KafkaChannel{writer: writer, topic: cfg.Topic}, nil
}

// Name returns the name of the notifier.
func (k *KafkaChannel) Name() string {
	return "kafka"
}

// IsEnabled returns whether the notifier is enabled.
func (k *KafkaChannel) IsEnabled() bool {
	return k.writer != nil
}

// Send publishes the notification.
func (k *KafkaChannel) Send(ctx context.Context, n Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(n.Type),
		Value: value,
		Time:  n.Timestamp,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaChannel) Close() error {
	if k.writer != nil {
		return k.writer.Close()
	}
	return nil
}
