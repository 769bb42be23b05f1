package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invdomain "github.com/dmehra2102/foodshare/internal/inventory/domain"
	"github.com/dmehra2102/foodshare/internal/order/application"
	"github.com/dmehra2102/foodshare/internal/order/domain"
	"github.com/dmehra2102/foodshare/pkg/outbox"
)

func newOrder(customer string, at time.Time) domain.Order {
	return domain.Order{
		CustomerID:      customer,
		DeliveryAddress: "1 Main St",
		PartySize:       2,
		Items:           []domain.LineItem{{Name: "rice", Quantity: 1}},
		Status:          domain.StatusPending,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

func TestDo_RollsBackEveryWrite(t *testing.T) {
	s := NewStore()
	s.SetStock("rice", 5)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		_, err := tx.Orders().Create(ctx, newOrder("c1", time.Now()))
		require.NoError(t, err)
		require.NoError(t, tx.Inventory().Decrement(ctx, []domain.LineItem{{Name: "rice", Quantity: 3}}))
		require.NoError(t, tx.Outbox().Enqueue(ctx, outbox.Event{Type: "OrderPlaced"}))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, s.Quantity("rice"))
	assert.Empty(t, s.Events())
	orders, err := s.Orders().List(ctx, domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreate_IDsNotReusedAfterRollback(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		_, _ = tx.Orders().Create(ctx, newOrder("c1", time.Now()))
		return errors.New("abort")
	})
	id, err := s.Orders().Create(ctx, newOrder("c1", time.Now()))

	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestDecrement_InsufficientStock(t *testing.T) {
	s := NewStore()
	s.SetStock("rice", 1)

	err := s.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
		return tx.Inventory().Decrement(ctx, []domain.LineItem{{Name: "rice", Quantity: 2}})
	})

	assert.Error(t, err)
	assert.Equal(t, 1, s.Quantity("rice"))
}

func TestDecrement_RejectsNonPositiveQuantity(t *testing.T) {
	s := NewStore()
	s.SetStock("rice", 10)
	s.SetStock("beans", 10)

	for _, qty := range []int{0, -5} {
		err := s.Do(context.Background(), func(ctx context.Context, tx application.Tx) error {
			return tx.Inventory().Decrement(ctx, []domain.LineItem{{Name: "beans", Quantity: 1}, {Name: "rice", Quantity: qty}})
		})
		assert.Error(t, err, "quantity %d", qty)
	}
	assert.Equal(t, 10, s.Quantity("rice"))
	assert.Equal(t, 10, s.Quantity("beans"))
}

func TestUpdateStatus(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id, err := s.Orders().Create(ctx, newOrder("c1", time.Now()))
	require.NoError(t, err)

	ok, err := s.Orders().UpdateStatus(ctx, id, domain.StatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Orders().UpdateStatus(ctx, id+100, domain.StatusProcessing)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Orders().UpdateStatus(ctx, id, domain.StatusPending)
	var te *domain.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, domain.StatusProcessing, te.From)

	got, err := s.Orders().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
}

func TestFindActiveAndHistory(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older, _ := s.Orders().Create(ctx, newOrder("c1", base))
	newer, _ := s.Orders().Create(ctx, newOrder("c1", base.Add(time.Hour)))
	done, _ := s.Orders().Create(ctx, newOrder("c1", base.Add(2*time.Hour)))
	_, _ = s.Orders().Create(ctx, newOrder("c2", base.Add(3*time.Hour)))
	_, err := s.Orders().UpdateStatus(ctx, done, domain.StatusCompleted)
	require.NoError(t, err)

	active, err := s.Orders().FindActiveByCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, newer, active.ID)
	assert.NotEqual(t, older, active.ID)

	history, err := s.Orders().FindHistoryByCustomer(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, done, history[0].ID)

	_, err = s.Orders().FindActiveByCustomer(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	history, err = s.Orders().FindHistoryByCustomer(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestReturnedOrdersAreCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	id, _ := s.Orders().Create(ctx, newOrder("c1", time.Now()))

	got, err := s.Orders().Get(ctx, id)
	require.NoError(t, err)
	got.Items[0].Quantity = 99

	again, err := s.Orders().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Items[0].Quantity)
}

func TestRecordDonationAndLowStock(t *testing.T) {
	s := NewStore()
	s.SetStock("beans", 2)
	ctx := context.Background()

	d, err := s.RecordDonation(ctx, invdomain.Donation{DonorID: "d1", ItemName: "rice", Category: "grain", Quantity: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.ID)

	rice, err := s.Get(ctx, "rice")
	require.NoError(t, err)
	assert.Equal(t, 20, rice.Quantity)
	assert.Equal(t, "grain", rice.Category)

	low, err := s.LowStock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "beans", low[0].Name)

	_, err = s.Get(ctx, "milk")
	assert.ErrorIs(t, err, invdomain.ErrItemNotFound)
}

func TestOutboxStore_LeaseLifecycle(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Do(ctx, func(ctx context.Context, tx application.Tx) error {
			return tx.Outbox().Enqueue(ctx, outbox.Event{Type: "OrderPlaced"})
		}))
	}
	ob := s.OutboxStore()

	batch, err := ob.LockBatch(ctx, "r1", 2, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	other, err := ob.LockBatch(ctx, "r2", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, int64(3), other[0].ID)

	require.NoError(t, ob.MarkSent(ctx, []int64{batch[0].ID}))
	require.NoError(t, ob.MarkFailed(ctx, other[0].ID, "broker down"))

	now = now.Add(2 * time.Minute)
	reclaimed, err := ob.LockBatch(ctx, "r2", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, batch[1].ID, reclaimed[0].ID)

	events := s.Events()
	assert.Equal(t, outbox.StatusSent, events[0].Status)
	assert.Equal(t, outbox.StatusFailed, events[2].Status)
	require.NotNil(t, events[2].LastError)
	assert.Equal(t, "broker down", *events[2].LastError)
	assert.Equal(t, 1, events[2].RetryCount)
}
