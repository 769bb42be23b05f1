package postgres_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invpg "github.com/dmehra2102/foodshare/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/foodshare/internal/order/application"
	"github.com/dmehra2102/foodshare/internal/order/domain"
	"github.com/dmehra2102/foodshare/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/foodshare/pkg/outbox"
	"github.com/dmehra2102/foodshare/test/integration"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()
	env := &integration.Env{}
	t.Cleanup(func() { env.Teardown(context.Background()) })
	require.NoError(t, integration.StartPostgres(ctx, env))

	pool, err := postgres.NewPool(ctx, env.PGURL, 8)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	return pool
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPostgres_FulfillmentRoundTrip(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	log := discard()

	stock := invpg.NewRepository(log, pool)
	require.NoError(t, stock.SetStock(ctx, "rice", 10))
	require.NoError(t, stock.SetStock(ctx, "beans", 4))

	uow := postgres.NewUnitOfWork(log, pool)
	svc := application.NewService(log, uow)

	req := domain.Request{
		CustomerID:      "cust-1",
		DeliveryAddress: "9 Harbour Road",
		PartySize:       4,
		Items:           map[string]int{"rice": 5, "beans": 2},
	}
	o, err := svc.SubmitOrder(ctx, req)
	require.NoError(t, err)
	assert.NotZero(t, o.ID)

	rice, err := stock.Get(ctx, "rice")
	require.NoError(t, err)
	assert.Equal(t, 5, rice.Quantity)

	_, err = svc.SubmitOrder(ctx, domain.Request{
		CustomerID: "cust-1", DeliveryAddress: "9 Harbour Road", PartySize: 1,
		Items: map[string]int{"beans": 3},
	})
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	tracked, ok, err := svc.TrackOrder(ctx, "cust-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, o.ID, tracked.ID)
	assert.ElementsMatch(t, o.Items, tracked.Items)

	updated, err := svc.UpdateOrderStatus(ctx, o.ID, domain.StatusCompleted)
	require.NoError(t, err)
	assert.True(t, updated)

	_, err = svc.UpdateOrderStatus(ctx, o.ID, domain.StatusProcessing)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	history, err := svc.OrderHistory(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.StatusCompleted, history[0].Status)

	found, err := svc.UpdateOrderStatus(ctx, o.ID+1000, domain.StatusProcessing)
	require.NoError(t, err)
	assert.False(t, found)

	listed, err := svc.ListOrders(ctx, domain.Filter{AddressContains: "harbour", Day: time.Now()})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	ob := postgres.NewOutboxStore(log, pool)
	events, err := ob.LockBatch(ctx, "relay-1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventOrderPlaced, events[0].Type)
	assert.Equal(t, domain.EventOrderStatusChanged, events[1].Type)
	assert.Equal(t, "fulfillment-service", events[0].Headers["source"])

	require.NoError(t, ob.MarkSent(ctx, []int64{events[0].ID}))
	require.NoError(t, ob.MarkFailed(ctx, events[1].ID, "broker down"))
	pending, err := ob.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestPostgres_NoOverselling(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	log := discard()

	stock := invpg.NewRepository(log, pool)
	require.NoError(t, stock.SetStock(ctx, "rice", 10))
	require.NoError(t, stock.SetStock(ctx, "beans", 10))
	svc := application.NewService(log, postgres.NewUnitOfWork(log, pool))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			items := map[string]int{"rice": 3, "beans": 3}
			_, err := svc.SubmitOrder(ctx, domain.Request{
				CustomerID: "c", DeliveryAddress: "x", PartySize: 1, Items: items,
			})
			if err == nil {
				mu.Lock()
				confirmed++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, domain.ErrUnavailable), "unexpected error: %v", err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, confirmed)
	rice, err := stock.Get(ctx, "rice")
	require.NoError(t, err)
	assert.Equal(t, 1, rice.Quantity)
}

func TestPostgres_RollbackOnFailure(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	log := discard()

	stock := invpg.NewRepository(log, pool)
	require.NoError(t, stock.SetStock(ctx, "rice", 10))
	uow := postgres.NewUnitOfWork(log, pool)
	boom := errors.New("boom")

	err := uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		items := []domain.LineItem{{Name: "rice", Quantity: 4}}
		now := time.Now().UTC()
		if _, err := tx.Orders().Create(ctx, domain.Order{
			CustomerID: "c", DeliveryAddress: "x", PartySize: 1, Items: items,
			Status: domain.StatusPending, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.Inventory().Decrement(ctx, items); err != nil {
			return err
		}
		ev, err := outbox.NewEvent("order", "1", domain.EventOrderPlaced, map[string]int{"order_id": 1}, nil, "")
		if err != nil {
			return err
		}
		if err := tx.Outbox().Enqueue(ctx, ev); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rice, err := stock.Get(ctx, "rice")
	require.NoError(t, err)
	assert.Equal(t, 10, rice.Quantity)

	orders, err := uow.Orders().List(ctx, domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, orders)

	pending, err := postgres.NewOutboxStore(log, pool).Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}
