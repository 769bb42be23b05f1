package outbox

import (
	"context"
	"log/slog"
	"sort"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// Header names set on every dispatched message.
const (
	HeaderEventType     = "event_type"
	HeaderEventID       = "event_id"
	HeaderAggregateType = "aggregate_type"
	HeaderTraceparent   = "traceparent"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Dispatcher turns outbox events into kafka messages keyed by aggregate id, so events of
// one order stay in partition order.
type Dispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

func NewDispatcher(log *slog.Logger, producer Producer, topic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, topic: topic}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	msg := kafka.Message{
		Topic:   d.topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: messageHeaders(event),
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		d.log.Error("outbox dispatch failed", "event_id", event.ID, "type", event.Type, "err", err)
		return err
	}
	d.log.Debug("outbox dispatched", "event_id", event.ID, "type", event.Type, "aggregate_id", event.AggregateID)
	return nil
}

func messageHeaders(event Event) []kafka.Header {
	keys := make([]string, 0, len(event.Headers))
	for k := range event.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafka.Header, 0, len(keys)+4)
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(event.Headers[k])})
	}
	headers = append(headers,
		kafka.Header{Key: HeaderEventType, Value: []byte(event.Type)},
		kafka.Header{Key: HeaderEventID, Value: []byte(strconv.FormatInt(event.ID, 10))},
		kafka.Header{Key: HeaderAggregateType, Value: []byte(event.AggregateType)},
	)
	if event.Traceparent != "" {
		headers = append(headers, kafka.Header{Key: HeaderTraceparent, Value: []byte(event.Traceparent)})
	}
	return headers
}
