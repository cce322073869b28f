package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaNotifier publishes messages to a Kafka topic keyed by SID; cmd/worker
// consumes the topic and performs delivery.
type KafkaNotifier struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaNotifier returns nil when brokers or topic are empty. Call Close when shutting down.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaNotifier{writer: writer, topic: topic}
}

// Notify serializes msg as JSON and writes it to the topic with a 5s timeout.
func (k *KafkaNotifier) Notify(ctx context.Context, msg Message) error {
	if k == nil || k.writer == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return k.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(msg.SID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(msg.Event)},
		},
	})
}

// Close closes the Kafka writer. Safe to call on a nil notifier.
func (k *KafkaNotifier) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// DecodeMessage parses a Kafka message value written by KafkaNotifier.
func DecodeMessage(value []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(value, &m)
	return m, err
}
