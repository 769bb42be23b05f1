package memory

import (
	"context"
	"time"

	"github.com/dmehra2102/foodshare/pkg/outbox"
)

type leased struct {
	relayID string
	until   time.Time
}

// OutboxStore exposes the store's events to an outbox.Relay.
type OutboxStore struct {
	s      *Store
	leases map[int64]leased
}

func (s *Store) OutboxStore() *OutboxStore {
	return &OutboxStore{s: s, leases: make(map[int64]leased)}
}

func (o *OutboxStore) LockBatch(_ context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	now := o.s.now()
	var batch []outbox.Event
	for i := range o.s.events {
		if len(batch) == batchSize {
			break
		}
		ev := &o.s.events[i]
		expired := ev.Status == outbox.StatusInProgress && now.After(o.leases[ev.ID].until)
		if ev.Status != outbox.StatusPending && !expired {
			continue
		}
		ev.Status = outbox.StatusInProgress
		ev.RelayID = relayID
		o.leases[ev.ID] = leased{relayID: relayID, until: now.Add(lease)}
		batch = append(batch, *ev)
	}
	return batch, nil
}

func (o *OutboxStore) MarkSent(_ context.Context, ids []int64) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	o.update(ids, func(ev *outbox.Event) { ev.Status = outbox.StatusSent })
	return nil
}

func (o *OutboxStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	o.update([]int64{id}, func(ev *outbox.Event) {
		ev.Status = outbox.StatusFailed
		ev.RetryCount++
		msg := errMsg
		ev.LastError = &msg
	})
	return nil
}

func (o *OutboxStore) ExtendLease(_ context.Context, relayID string, ids []int64, lease time.Duration) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	until := o.s.now().Add(lease)
	for _, id := range ids {
		if l, ok := o.leases[id]; ok && l.relayID == relayID {
			o.leases[id] = leased{relayID: relayID, until: until}
		}
	}
	return nil
}

func (o *OutboxStore) update(ids []int64, fn func(ev *outbox.Event)) {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for i := range o.s.events {
		if _, ok := want[o.s.events[i].ID]; ok {
			fn(&o.s.events[i])
			delete(o.leases, o.s.events[i].ID)
		}
	}
}
