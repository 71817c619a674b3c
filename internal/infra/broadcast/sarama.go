package broadcast

import (
	"context"

	"github.com/IBM/sarama"
)

// SaramaSink produces with IBM/sarama's SyncProducer.
type SaramaSink struct {
	producer sarama.SyncProducer
	topic    string
}

func NewSaramaSink(brokers []string, topic string) (*SaramaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewSaramaSinkFromProducer(producer, topic), nil
}

// NewSaramaSinkFromProducer wraps an existing producer.
func NewSaramaSinkFromProducer(p sarama.SyncProducer, topic string) *SaramaSink {
	return &SaramaSink{producer: p, topic: topic}
}

// Send ignores ctx: SyncProducer has its own timeouts.
func (s *SaramaSink) Send(ctx context.Context, batch []Message) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(batch))
	for _, m := range batch {
		key, value, err := m.Encode()
		if err != nil {
			return err
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: s.topic,
			Key:   sarama.ByteEncoder(key),
			Value: sarama.ByteEncoder(value),
		})
	}
	return s.producer.SendMessages(msgs)
}

func (s *SaramaSink) Close() error {
	return s.producer.Close()
}
