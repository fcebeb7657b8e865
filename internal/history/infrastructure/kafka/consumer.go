package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tripvana/travel-booking-system/internal/history/application"
	"github.com/tripvana/travel-booking-system/pkg/idempotency"
	"github.com/tripvana/travel-booking-system/pkg/tracing"
)

// messageReader is the slice of kafka.Reader the loop needs; tests
// substitute an in-memory feed.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Consumer reads the bookings topic. Kafka's key-per-booking
// partitioning gives per-booking ordering; the redis store drops
// within-TTL duplicates cheaply and the service's upsert handles
// everything older. Poison messages are counted and skipped, never
// allowed to wedge the partition.
//
// Group commits are per-partition high-water marks: committing offset
// N+1 implicitly commits everything below it. A message that fails to
// apply therefore cannot be left behind while the loop moves on — it is
// retried in place until it lands or turns out to be poison.
type Consumer struct {
	log       *slog.Logger
	reader    messageReader
	svc       *application.Service
	idem      deduper
	tracer    trace.Tracer
	retryBase time.Duration
	retryMax  time.Duration
	poison    atomic.Int64
	skipped   atomic.Int64
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, svc *application.Service, idem *idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return newConsumer(log, r, svc, idem)
}

func newConsumer(log *slog.Logger, reader messageReader, svc *application.Service, idem deduper) *Consumer {
	return &Consumer{
		log:       log,
		reader:    reader,
		svc:       svc,
		idem:      idem,
		tracer:    otel.Tracer("history-consumer"),
		retryBase: 200 * time.Millisecond,
		retryMax:  10 * time.Second,
	}
}

// PoisonCount reports how many undecodable messages were skipped.
func (c *Consumer) PoisonCount() int64 { return c.poison.Load() }

// SkippedCount reports how many duplicate deliveries the dedupe store
// absorbed.
func (c *Consumer) SkippedCount() int64 { return c.skipped.Load() }

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		if err := c.process(ctx, msg); err != nil {
			return err
		}
	}
}

// process applies one message and commits its offset. It returns an
// error only when the context ends; everything else resolves here.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		// Dedupe store down: fall through, the upsert is idempotent.
		c.log.Error("idempotency check failed", "err", err)
	} else if seen {
		c.skipped.Add(1)
		c.log.Info("duplicate message skipped", "key", key)
		c.commit(ctx, msg)
		return nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeBookingEvent")
	defer span.End()

	backoff := c.retryBase
	for {
		err := c.svc.Apply(msgCtx, msg.Value)
		if err == nil {
			break
		}
		if errors.Is(err, application.ErrMalformedEvent) {
			c.poison.Add(1)
			c.log.Error("poison message skipped",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"poison_total", c.poison.Load(),
				"err", err,
			)
			break
		}

		// A restart inside the retry window must not mistake this
		// message for a duplicate, so unmark it before waiting.
		if forgetErr := c.idem.Forget(ctx, key); forgetErr != nil {
			c.log.Error("idempotency forget failed", "key", key, "err", forgetErr)
		}
		c.log.Error("apply failed, retrying in place",
			"offset", msg.Offset,
			"backoff", backoff.String(),
			"err", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > c.retryMax {
			backoff = c.retryMax
		}
	}

	c.commit(ctx, msg)
	return nil
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		// Redelivery after a missed commit is absorbed by the dedupe
		// store and the upsert.
		c.log.Error("offset commit failed", "offset", msg.Offset, "err", err)
	}
}
