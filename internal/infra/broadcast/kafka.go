package broadcast

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink produces with segmentio/kafka-go, waiting for all in-sync replicas.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func toKafkaMessages(batch []Message) ([]kafka.Message, error) {
	out := make([]kafka.Message, 0, len(batch))
	for _, m := range batch {
		key, value, err := m.Encode()
		if err != nil {
			return nil, err
		}
		out = append(out, kafka.Message{Key: key, Value: value})
	}
	return out, nil
}

func (s *KafkaSink) Send(ctx context.Context, batch []Message) error {
	msgs, err := toKafkaMessages(batch)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
