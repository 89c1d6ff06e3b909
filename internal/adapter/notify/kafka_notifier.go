package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rl1809/stockledger/internal/core/domain"
)

const (
	EventLowStock       = "LowStockAlert"
	EventLowStockDigest = "LowStockDigest"

	batchTimeout = 10 * time.Millisecond
	batchSize    = 100
)

// Producer is the subset of *kafka.Writer the notifier needs.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes alert events as JSON. Alerts are keyed by item ID
// so all events of one item stay on one partition.
type KafkaNotifier struct {
	producer Producer
	logger   *zap.Logger
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		BatchSize:              batchSize,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaNotifier(producer Producer, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, logger: logger}
}

func (n *KafkaNotifier) NotifyLowStock(ctx context.Context, alert domain.LowStockAlert) error {
	return n.publish(ctx, EventLowStock, alert.ItemID, alert)
}

func (n *KafkaNotifier) NotifyDigest(ctx context.Context, digest domain.LowStockDigest) error {
	return n.publish(ctx, EventLowStockDigest, "digest", digest)
}

func (n *KafkaNotifier) publish(ctx context.Context, eventType, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
		},
	}
	if err := n.producer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	n.logger.Debug("event published", zap.String("event_type", eventType), zap.String("key", key))
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}
