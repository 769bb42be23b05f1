package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/foodshare/internal/inventory/application"
	"github.com/dmehra2102/foodshare/internal/inventory/domain"
	"github.com/dmehra2102/foodshare/pkg/idempotency"
	"github.com/dmehra2102/foodshare/pkg/tracing"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const maxAttempts = 3

var errMalformed = errors.New("malformed donation event")

// permanent reports whether redelivering the message could never succeed.
func permanent(err error) bool {
	return errors.Is(err, errMalformed) || errors.Is(err, domain.ErrInvalidDonation)
}

// Consumer adds donated stock from the donation topic. Each message is applied at most once
// and its offset is only committed once it has been applied or rejected as permanently bad.
type Consumer struct {
	log     *slog.Logger
	reader  messageReader
	svc     *application.Service
	idem    *idempotency.Store
	tracer  trace.Tracer
	backoff time.Duration
	retry   time.Duration
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, svc *application.Service, idem *idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return newConsumer(log, r, svc, idem)
}

func newConsumer(log *slog.Logger, r messageReader, svc *application.Service, idem *idempotency.Store) *Consumer {
	return &Consumer{
		log:     log,
		reader:  r,
		svc:     svc,
		idem:    idem,
		tracer:  otel.Tracer("donation-consumer"),
		backoff: 200 * time.Millisecond,
		retry:   5 * time.Second,
	}
}

// Run consumes until ctx is cancelled. A message that fails for a transient reason is
// retried in place, so the partition does not move past it.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !c.process(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

// process handles msg until it is applied or permanently rejected. It returns false when
// ctx ends first, in which case the offset must not be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	for {
		err := c.handle(ctx, msg)
		switch {
		case err == nil:
			return true
		case permanent(err):
			c.log.Error("donation dropped", "topic", msg.Topic, "offset", msg.Offset, "err", err)
			return true
		case ctx.Err() != nil:
			return false
		}
		c.log.Warn("donation failed, retrying", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retry):
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		return err
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return nil
	}

	if err := c.apply(ctx, msg); err != nil {
		if !permanent(err) {
			// release the key so the retry of this offset is not skipped as a duplicate
			if ferr := c.idem.Forget(context.WithoutCancel(ctx), key); ferr != nil {
				c.log.Error("idempotency release failed", "key", key, "err", ferr)
			}
		}
		return err
	}
	return nil
}

func (c *Consumer) apply(ctx context.Context, msg kafka.Message) error {
	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeDonationReceived")
	defer span.End()

	var ev domain.DonationReceived
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	var (
		saved domain.Donation
		err   error
	)
	for attempt := 1; ; attempt++ {
		saved, err = c.svc.ReceiveDonation(msgCtx, ev.Donation())
		if err == nil || permanent(err) || attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(attribute.Int64("donation.id", saved.ID), attribute.String("donation.item", saved.ItemName))
	c.log.Info("donation consumed", "donation_id", saved.ID, "item", saved.ItemName, "source", tracing.HeaderValue(msg.Headers, "source"))
	return nil
}
