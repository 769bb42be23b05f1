package tracing

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestKafkaHeaders_RoundTrip(t *testing.T) {
	ctx := context.Background()
	tp, err := Init(ctx, "test", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(ctx) }()

	spanCtx, span := tp.Tracer("test").Start(ctx, "produce")
	defer span.End()

	tpHeader := Traceparent(spanCtx)
	assert.NotEmpty(t, tpHeader)

	headers := InjectKafkaHeaders(spanCtx, []kafka.Header{{Key: "source", Value: []byte("x")}})
	extracted := ExtractKafkaHeaders(ctx, headers)

	got := trace.SpanContextFromContext(extracted)
	assert.True(t, got.IsValid())
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
}

func TestInjectKafkaHeaders_ReplacesStaleTraceparent(t *testing.T) {
	ctx := context.Background()
	tp, err := Init(ctx, "test", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(ctx) }()

	spanCtx, span := tp.Tracer("test").Start(ctx, "produce")
	defer span.End()

	headers := InjectKafkaHeaders(spanCtx, []kafka.Header{{Key: TraceparentHeader, Value: []byte("stale")}})

	n := 0
	for _, h := range headers {
		if h.Key == TraceparentHeader {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, Traceparent(spanCtx), HeaderValue(headers, TraceparentHeader))
	assert.Empty(t, HeaderValue(headers, "missing"))
}
