package kafka

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"

	"captain-dispatch/internal/domain"
)

var newSyncProducer = sarama.NewSyncProducer

// StatusProducer publishes order transitions to a topic keyed by order id,
// so every transition of one order lands on the same partition.
type StatusProducer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewStatusProducer returns nil, nil when Kafka is not configured.
func NewStatusProducer(brokers []string, topic string) (*StatusProducer, error) {
	if len(brokers) == 0 || strings.TrimSpace(topic) == "" {
		return nil, nil
	}
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3

	p, err := newSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "kafka: new sync producer")
	}
	return NewStatusProducerWith(p, topic), nil
}

// NewStatusProducerWith wraps an existing producer.
func NewStatusProducerWith(p sarama.SyncProducer, topic string) *StatusProducer {
	return &StatusProducer{producer: p, topic: topic}
}

// PublishStatus sends c. A nil producer drops the change.
func (p *StatusProducer) PublishStatus(ctx context.Context, c domain.StatusChange) error {
	if p == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(FromStatusChange(c))
	if err != nil {
		return errors.Wrap(err, "kafka: marshal status event")
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(c.OrderID),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return errors.Wrapf(err, "kafka: publish status of order %s", c.OrderID)
	}
	return nil
}

func (p *StatusProducer) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
