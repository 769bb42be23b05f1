package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Writer publishes outbox events. Messages carry their own topic.
type Writer struct {
	*kafka.Writer
}

func NewWriter(log *slog.Logger, brokers []string) *Writer {
	return &Writer{
		Writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
				log.Error("kafka writer", "msg", fmt.Sprintf(msg, args...))
			}),
		},
	}
}

func (w *Writer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return w.Writer.WriteMessages(ctx, msgs...)
}
