package outbox

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/tripvana/travel-booking-system/pkg/tracing"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher turns outbox rows into Kafka messages. The message key is
// the aggregate id (the booking id), which pins every event for one
// booking to one partition and preserves per-booking ordering.
type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
	service  string
}

func NewDispatcher(log *slog.Logger, producer Producer, topic, service string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic, service: service}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	headers := make([]kafka.Header, 0, len(event.Headers)+3)
	for k, v := range event.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers,
		kafka.Header{Key: "event-type", Value: []byte(event.Type)},
		kafka.Header{Key: "service", Value: []byte(d.service)},
	)
	if event.Traceparent != "" {
		headers = append(headers, kafka.Header{Key: tracing.TraceparentHeader, Value: []byte(event.Traceparent)})
	}

	msg := kafka.Message{
		Topic:   d.topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		d.log.Error("outbox dispatch failed", "event_id", event.ID, "type", event.Type, "err", err)
		return err
	}
	d.log.Info("outbox dispatched", "event_id", event.ID, "type", event.Type, "key", event.AggregateID)
	return nil
}
