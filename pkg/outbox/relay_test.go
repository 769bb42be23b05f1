package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	fail map[string]bool
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if p.fail[string(m.Key)] {
			return errors.New("broker unavailable")
		}
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

type fakeStore struct {
	events []Event
	sent   []int64
	failed map[int64]string
}

func (s *fakeStore) LockBatch(_ context.Context, relayID string, batchSize int, _ time.Duration) ([]Event, error) {
	var out []Event
	for i := range s.events {
		if s.events[i].Status != StatusPending || len(out) == batchSize {
			continue
		}
		s.events[i].Status = StatusInProgress
		s.events[i].RelayID = relayID
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *fakeStore) MarkSent(_ context.Context, ids []int64) error {
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = errMsg
	return nil
}

func (s *fakeStore) ExtendLease(context.Context, string, []int64, time.Duration) error { return nil }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDispatcher_Dispatch_SetsKeyAndHeaders(t *testing.T) {
	p := &fakeProducer{}
	d := NewDispatcher(discardLogger(), p, "order.events")

	err := d.Dispatch(context.Background(), Event{
		ID:          7,
		AggregateID: "42",
		Type:        "OrderPlaced",
		Payload:     []byte(`{"order_id":42}`),
		Headers:     map[string]string{"source": "fulfillment-service"},
		Traceparent: "00-abc-def-01",
	})
	require.NoError(t, err)
	require.Len(t, p.msgs, 1)

	msg := p.msgs[0]
	assert.Equal(t, "order.events", msg.Topic)
	assert.Equal(t, "42", string(msg.Key))

	got := map[string]string{}
	for _, h := range msg.Headers {
		got[h.Key] = string(h.Value)
	}
	assert.Equal(t, "OrderPlaced", got["event_type"])
	assert.Equal(t, "00-abc-def-01", got["traceparent"])
	assert.Equal(t, "fulfillment-service", got["source"])
	assert.Equal(t, "7", got["event_id"])
}

func TestRelay_RunOnce_MarksSentAndFailed(t *testing.T) {
	store := &fakeStore{events: []Event{
		{ID: 1, AggregateID: "1", Type: "OrderPlaced", Status: StatusPending},
		{ID: 2, AggregateID: "2", Type: "OrderPlaced", Status: StatusPending},
		{ID: 3, AggregateID: "3", Type: "OrderPlaced", Status: StatusPending},
	}}
	p := &fakeProducer{fail: map[string]bool{"2": true}}
	relay := NewRelay(discardLogger(), store, NewDispatcher(discardLogger(), p, "t"), "relay-1", WithBatchSize(10))

	n, err := relay.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, store.sent)
	assert.Contains(t, store.failed, int64(2))
	assert.Len(t, p.msgs, 2)
}

func TestRelay_RunOnce_Empty(t *testing.T) {
	relay := NewRelay(discardLogger(), &fakeStore{}, NewDispatcher(discardLogger(), &fakeProducer{}, "t"), "relay-1")
	n, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelay_Run_StopsOnCancel(t *testing.T) {
	relay := NewRelay(discardLogger(), &fakeStore{}, NewDispatcher(discardLogger(), &fakeProducer{}, "t"), "relay-1",
		WithInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestNewEvent_MarshalsPayload(t *testing.T) {
	ev, err := NewEvent("order", "9", "OrderPlaced", map[string]int{"order_id": 9}, nil, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"order_id":9}`, string(ev.Payload))
	assert.Equal(t, StatusPending, ev.Status)
}
