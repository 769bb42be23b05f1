package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	invpg "github.com/dmehra2102/foodshare/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/foodshare/internal/order/application"
	"github.com/dmehra2102/foodshare/internal/order/domain"
	"github.com/dmehra2102/foodshare/pkg/outbox"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// UnitOfWork runs fulfillment work in a single postgres transaction.
type UnitOfWork struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewUnitOfWork(log *slog.Logger, pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{log: log, pool: pool}
}

func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		u.log.Error("commit failed", "err", err)
		return err
	}
	return nil
}

func (u *UnitOfWork) Orders() application.OrderStore {
	return poolOrders{OrderStore: OrderStore{db: u.pool}, uow: u}
}

type pgTx struct{ tx pgx.Tx }

func (t pgTx) Inventory() application.InventoryStore { return invpg.NewTxStockStore(t.tx) }
func (t pgTx) Orders() application.OrderStore       { return OrderStore{db: t.tx, lock: true} }
func (t pgTx) Outbox() application.EventSink        { return EventSink{db: t.tx} }

// poolOrders runs writes in their own transaction.
type poolOrders struct {
	OrderStore
	uow *UnitOfWork
}

func (p poolOrders) Create(ctx context.Context, o domain.Order) (int64, error) {
	var id int64
	err := p.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		id, err = tx.Orders().Create(ctx, o)
		return err
	})
	return id, err
}

func (p poolOrders) UpdateStatus(ctx context.Context, id int64, to domain.OrderStatus) (bool, error) {
	var ok bool
	err := p.uow.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		ok, err = tx.Orders().UpdateStatus(ctx, id, to)
		return err
	})
	return ok, err
}

// OrderStore persists food requests and their line items.
type OrderStore struct {
	db   DBTX
	lock bool
}

const orderColumns = `id, customer_id, delivery_address, party_size, status, created_at, updated_at`

func (s OrderStore) Create(ctx context.Context, o domain.Order) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO food_requests (customer_id, delivery_address, party_size, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		o.CustomerID, o.DeliveryAddress, o.PartySize, string(o.Status), o.CreatedAt, o.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`INSERT INTO food_request_items (request_id, item_name, quantity) VALUES ($1,$2,$3)`,
			id, item.Name, item.Quantity)
	}
	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s OrderStore) Get(ctx context.Context, id int64) (domain.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM food_requests WHERE id=$1`
	if s.lock {
		q += ` FOR UPDATE`
	}
	orders, err := s.query(ctx, q, id)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return orders[0], nil
}

func (s OrderStore) FindActiveByCustomer(ctx context.Context, customerID string) (domain.Order, error) {
	orders, err := s.query(ctx, `SELECT `+orderColumns+` FROM food_requests
		WHERE customer_id=$1 AND status <> $2
		ORDER BY created_at DESC, id DESC LIMIT 1`, customerID, string(domain.StatusCompleted))
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return orders[0], nil
}

func (s OrderStore) FindHistoryByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	return s.List(ctx, domain.Filter{CustomerID: customerID, Status: domain.StatusCompleted})
}

func (s OrderStore) UpdateStatus(ctx context.Context, id int64, to domain.OrderStatus) (bool, error) {
	q := `SELECT status FROM food_requests WHERE id=$1`
	if s.lock {
		q += ` FOR UPDATE`
	}
	var current string
	err := s.db.QueryRow(ctx, q, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	from := domain.OrderStatus(current)
	if from == to {
		return true, nil
	}
	if !domain.CanTransition(from, to) {
		return false, &domain.TransitionError{From: from, To: to}
	}

	ct, err := s.db.Exec(ctx, `UPDATE food_requests SET status=$2, updated_at=$3 WHERE id=$1 AND status=$4`,
		id, string(to), time.Now().UTC(), current)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s OrderStore) List(ctx context.Context, f domain.Filter) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if !f.Day.IsZero() {
		y, m, d := f.Day.UTC().Date()
		start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		add("created_at >= $%d", start)
		add("created_at < $%d", start.AddDate(0, 0, 1))
	}
	if f.AddressContains != "" {
		add("delivery_address ILIKE $%d", "%"+escapeLike(f.AddressContains)+"%")
	}

	q := `SELECT ` + orderColumns + ` FROM food_requests`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return s.query(ctx, q, args...)
}

func (s OrderStore) CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error) {
	rows, err := s.db.Query(ctx, `SELECT status, count(*) FROM food_requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.OrderStatus]int)
	for rows.Next() {
		var (
			st string
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[domain.OrderStatus(st)] = n
	}
	return counts, rows.Err()
}

// query loads orders and then their items with one extra round trip.
func (s OrderStore) query(ctx context.Context, q string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var (
			o  domain.Order
			st string
		)
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.DeliveryAddress, &o.PartySize, &st, &o.CreatedAt, &o.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		o.Status = domain.OrderStatus(st)
		o.CreatedAt = o.CreatedAt.UTC()
		o.UpdatedAt = o.UpdatedAt.UTC()
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	items, err := s.db.Query(ctx, `SELECT request_id, item_name, quantity FROM food_request_items
		WHERE request_id = ANY($1) ORDER BY request_id, item_name`, ids)
	if err != nil {
		return nil, err
	}
	defer items.Close()
	for items.Next() {
		var (
			id int64
			li domain.LineItem
		)
		if err := items.Scan(&id, &li.Name, &li.Quantity); err != nil {
			return nil, err
		}
		i := index[id]
		orders[i].Items = append(orders[i].Items, li)
	}
	return orders, items.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// EventSink writes outbox rows in the caller's transaction.
type EventSink struct {
	db DBTX
}

func (e EventSink) Enqueue(ctx context.Context, ev outbox.Event) error {
	headers := ev.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := e.db.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,'pending',$7)`,
		ev.AggregateType, ev.AggregateID, ev.Type, ev.Payload, headers, ev.Traceparent, ev.CreatedAt)
	return err
}
