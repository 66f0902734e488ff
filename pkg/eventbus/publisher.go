package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/retailops/orderflow/pkg/tracing"
)

// Publisher emits one envelope to the channel. At-least-once delivery is
// the channel's guarantee, not the publisher's.
type Publisher interface {
	Publish(ctx context.Context, env Envelope, key string) error
}

// Producer is satisfied by *kafka.Writer.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Topics maps each detail type to its dedicated topic. The external channel
// routes one detail type to exactly one stage; topic-per-detail-type is that
// routing.
type Topics map[string]string

// KafkaPublisher writes envelopes to the topic registered for their detail
// type, keyed by order id so redeliveries for one order land on one partition.
type KafkaPublisher struct {
	log      *slog.Logger
	producer Producer
	topics   Topics
}

func NewKafkaPublisher(log *slog.Logger, producer Producer, topics Topics) *KafkaPublisher {
	return &KafkaPublisher{log: log, producer: producer, topics: topics}
}

func (p *KafkaPublisher) Publish(ctx context.Context, env Envelope, key string) error {
	topic, ok := p.topics[env.DetailType]
	if !ok {
		return fmt.Errorf("no topic registered for detail type %q", env.DetailType)
	}

	value, err := json.Marshal(env)
	if err != nil {
		return err
	}

	headers := []kafka.Header{{Key: "event_type", Value: []byte(env.DetailType)}}
	headers = tracing.InjectKafkaHeaders(ctx, headers)

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: headers,
	}
	if err := p.producer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("publish failed", "detail_type", env.DetailType, "key", key, "err", err)
		return err
	}
	p.log.Info("event published", "detail_type", env.DetailType, "key", key)
	return nil
}

func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
}
