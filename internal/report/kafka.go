package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Juuiko/cross-chain-arbitrage-monitor/internal/domain"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer for topic. Messages with the same key land
// on the same partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// KafkaSink publishes each opportunity as a JSON message keyed by symbol.
type KafkaSink struct {
	writer MessageWriter
}

func NewKafkaSink(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Report(ctx context.Context, res domain.CycleResult) error {
	if len(res.Opportunities) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(res.Opportunities))
	for _, o := range res.Recorded() {
		v, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("kafka: marshal opportunity: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(o.Symbol),
			Value: v,
			Time:  o.RecordedAt,
		})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka: write %d messages: %w", len(msgs), err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
