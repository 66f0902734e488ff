package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/retailops/orderflow/pkg/eventbus"
	"github.com/retailops/orderflow/pkg/idempotency"
	"github.com/retailops/orderflow/pkg/metrics"
	"github.com/retailops/orderflow/pkg/tracing"
)

// Handler processes one delivered envelope. Returning an error leaves the
// message in the channel's hands: it is redelivered with backoff until the
// attempt budget runs out, then diverted to the dead-letter topic. Handlers
// must therefore be safe to re-run on the same input.
type Handler func(ctx context.Context, env eventbus.Envelope) error

// Fetcher is satisfied by *kafka.Reader.
type Fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Deduper is satisfied by *idempotency.Store. Seen must be a pure read;
// the consumer calls Mark only after the message has been handled and
// committed, so a Seen hit always means "handled before".
type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type Config struct {
	Brokers     []string
	Topic       string
	Group       string
	Concurrency int
	MaxAttempts int
	Backoff     time.Duration
	// DeadLetterTopic receives messages that exhaust MaxAttempts. Empty
	// disables diversion and the failing message is logged and dropped.
	DeadLetterTopic string
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * time.Second
	}
}

// Consumer is the in-process face of the at-least-once channel: it fetches,
// retries with backoff, dead-letters, and only then commits. The redelivery
// policy lives here so stage handlers stay pure state-transition functions.
type Consumer struct {
	log      *slog.Logger
	cfg      Config
	reader   Fetcher
	producer eventbus.Producer
	handler  Handler
	idem     Deduper
	tracer   trace.Tracer
}

func NewConsumer(log *slog.Logger, cfg Config, handler Handler, idem *idempotency.Store, producer eventbus.Producer) *Consumer {
	cfg.defaults()
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.Group,
	})
	var d Deduper
	if idem != nil {
		d = idem
	}
	return newConsumer(log, cfg, r, handler, d, producer)
}

func newConsumer(log *slog.Logger, cfg Config, reader Fetcher, handler Handler, idem Deduper, producer eventbus.Producer) *Consumer {
	cfg.defaults()
	return &Consumer{
		log:      log,
		cfg:      cfg,
		reader:   reader,
		producer: producer,
		handler:  handler,
		idem:     idem,
		tracer:   otel.Tracer(cfg.Group),
	}
}

// Run blocks until ctx is cancelled or the reader fails, fanning fetches
// across the configured number of handler goroutines.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Concurrency; i++ {
		g.Go(func() error {
			return c.loop(ctx)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Consumer) loop(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	var idemKey string
	if c.idem != nil {
		idemKey = c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
		seen, err := c.idem.Seen(ctx, idemKey)
		if err != nil {
			// Redis down must not stall the stage; the guarded status
			// updates still make redelivery safe.
			c.log.Error("idempotency check failed", "err", err)
		} else if seen {
			// The key is written only after a successful handle and
			// commit, so this delivery was fully processed before.
			c.log.Info("duplicate message skipped", "key", idemKey)
			metrics.DuplicatesSkipped.WithLabelValues(c.cfg.Group).Inc()
			c.commit(ctx, msg)
			return
		}
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "Consume "+c.cfg.Topic)
	defer span.End()

	var env eventbus.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		c.log.Error("malformed envelope, dead-lettering", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		c.deadLetter(ctx, msg)
		c.commit(ctx, msg)
		return
	}

	for attempt := 1; ; attempt++ {
		err := c.handler(msgCtx, env)
		if err == nil {
			metrics.MessagesHandled.WithLabelValues(c.cfg.Group).Inc()
			c.commit(ctx, msg)
			c.markHandled(ctx, idemKey)
			return
		}
		metrics.MessagesFailed.WithLabelValues(c.cfg.Group).Inc()
		c.log.Error("handler error", "detail_type", env.DetailType, "attempt", attempt, "err", err)
		if attempt >= c.cfg.MaxAttempts {
			c.deadLetter(ctx, msg)
			c.commit(ctx, msg)
			return
		}

		select {
		case <-ctx.Done():
			// Uncommitted: the message is redelivered after restart.
			return
		case <-time.After(c.cfg.Backoff):
		}
	}
}

// markHandled records the dedup key once the message is handled and
// committed. A crash before this point leaves the key unset, so the
// redelivery runs the handler again instead of being skipped.
func (c *Consumer) markHandled(ctx context.Context, key string) {
	if c.idem == nil || key == "" {
		return
	}
	if err := c.idem.Mark(ctx, key); err != nil {
		c.log.Error("idempotency mark failed", "key", key, "err", err)
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message) {
	metrics.MessagesDeadLettered.WithLabelValues(c.cfg.Group).Inc()
	if c.producer == nil || c.cfg.DeadLetterTopic == "" {
		return
	}
	dl := kafka.Message{
		Topic:   c.cfg.DeadLetterTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: append(msg.Headers, kafka.Header{Key: "dlq_source_topic", Value: []byte(msg.Topic)}),
	}
	if err := c.producer.WriteMessages(ctx, dl); err != nil {
		c.log.Error("dead-letter write failed", "topic", msg.Topic, "offset", msg.Offset, "err", err)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.log.Error("commit failed", "topic", msg.Topic, "offset", msg.Offset, "err", err)
	}
}
