// Package memory keeps inventory, orders, donations and the outbox in process memory.
// A single mutex serialises units of work, so check and decrement of one submission can
// never interleave with another submission.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	invdomain "github.com/dmehra2102/foodshare/internal/inventory/domain"
	"github.com/dmehra2102/foodshare/internal/order/application"
	"github.com/dmehra2102/foodshare/internal/order/domain"
	"github.com/dmehra2102/foodshare/pkg/outbox"
)

type Store struct {
	mu sync.RWMutex

	stock       map[string]invdomain.Item
	orders      map[int64]domain.Order
	nextOrderID int64
	donations   []invdomain.Donation
	events      []outbox.Event
	nextEventID int64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		stock:  make(map[string]invdomain.Item),
		orders: make(map[int64]domain.Order),
		now:    time.Now,
	}
}

// SetStock overwrites the quantity of an item, creating it when missing.
func (s *Store) SetStock(name string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.stock[name]
	it.Name = name
	it.Quantity = quantity
	it.UpdatedAt = s.now().UTC()
	s.stock[name] = it
}

func (s *Store) Quantity(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stock[name].Quantity
}

// Events returns a copy of every outbox event ever enqueued.
func (s *Store) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]outbox.Event(nil), s.events...)
}

func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) Orders() application.OrderStore { return readOrders{s: s} }

type memTx struct {
	s    *Store
	undo []func()
}

func (tx *memTx) Inventory() application.InventoryStore { return txInventory{tx} }
func (tx *memTx) Orders() application.OrderStore       { return txOrders{tx} }
func (tx *memTx) Outbox() application.EventSink        { return txOutbox{tx} }

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

type txInventory struct{ tx *memTx }

func (i txInventory) CheckAvailability(_ context.Context, items []domain.LineItem) ([]domain.Shortfall, error) {
	return i.tx.s.shortfalls(items), nil
}

func (i txInventory) Decrement(_ context.Context, items []domain.LineItem) error {
	s := i.tx.s
	for _, li := range items {
		if li.Quantity <= 0 {
			return errNonPositive(li.Name, li.Quantity)
		}
		it, ok := s.stock[li.Name]
		if !ok || it.Quantity < li.Quantity {
			return errStockChanged(li.Name)
		}
		prev := it
		it.Quantity -= li.Quantity
		it.UpdatedAt = s.now().UTC()
		s.stock[li.Name] = it
		i.tx.undo = append(i.tx.undo, func() { s.stock[prev.Name] = prev })
	}
	return nil
}

type txOrders struct{ tx *memTx }

func (o txOrders) Create(_ context.Context, order domain.Order) (int64, error) {
	s := o.tx.s
	s.nextOrderID++
	id := s.nextOrderID
	order = order.Clone()
	order.ID = id
	s.orders[id] = order
	// ids are not handed out again after a rollback, like a database sequence
	o.tx.undo = append(o.tx.undo, func() { delete(s.orders, id) })
	return id, nil
}

func (o txOrders) UpdateStatus(_ context.Context, id int64, to domain.OrderStatus) (bool, error) {
	s := o.tx.s
	order, ok := s.orders[id]
	if !ok {
		return false, nil
	}
	if order.Status == to {
		return true, nil
	}
	if !domain.CanTransition(order.Status, to) {
		return false, &domain.TransitionError{From: order.Status, To: to}
	}
	prev := order.Clone()
	order.Status = to
	order.UpdatedAt = s.now().UTC()
	s.orders[id] = order
	o.tx.undo = append(o.tx.undo, func() { s.orders[id] = prev })
	return true, nil
}

func (o txOrders) Get(_ context.Context, id int64) (domain.Order, error) {
	return o.tx.s.get(id)
}

func (o txOrders) FindActiveByCustomer(_ context.Context, customerID string) (domain.Order, error) {
	return o.tx.s.findActive(customerID)
}

func (o txOrders) FindHistoryByCustomer(_ context.Context, customerID string) ([]domain.Order, error) {
	return o.tx.s.list(domain.Filter{CustomerID: customerID, Status: domain.StatusCompleted}), nil
}

func (o txOrders) List(_ context.Context, f domain.Filter) ([]domain.Order, error) {
	return o.tx.s.list(f), nil
}

func (o txOrders) CountByStatus(context.Context) (map[domain.OrderStatus]int, error) {
	return o.tx.s.countByStatus(), nil
}

type txOutbox struct{ tx *memTx }

func (e txOutbox) Enqueue(_ context.Context, ev outbox.Event) error {
	s := e.tx.s
	s.nextEventID++
	ev.ID = s.nextEventID
	ev.Status = outbox.StatusPending
	s.events = append(s.events, ev)
	n := len(s.events)
	e.tx.undo = append(e.tx.undo, func() { s.events = s.events[:n-1] })
	return nil
}

type readOrders struct{ s *Store }

func (r readOrders) Create(ctx context.Context, o domain.Order) (int64, error) {
	var id int64
	err := r.s.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		id, err = tx.Orders().Create(ctx, o)
		return err
	})
	return id, err
}

func (r readOrders) UpdateStatus(ctx context.Context, id int64, to domain.OrderStatus) (bool, error) {
	var ok bool
	err := r.s.Do(ctx, func(ctx context.Context, tx application.Tx) error {
		var err error
		ok, err = tx.Orders().UpdateStatus(ctx, id, to)
		return err
	})
	return ok, err
}

func (r readOrders) Get(_ context.Context, id int64) (domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.get(id)
}

func (r readOrders) FindActiveByCustomer(_ context.Context, customerID string) (domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.findActive(customerID)
}

func (r readOrders) FindHistoryByCustomer(_ context.Context, customerID string) ([]domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.list(domain.Filter{CustomerID: customerID, Status: domain.StatusCompleted}), nil
}

func (r readOrders) List(_ context.Context, f domain.Filter) ([]domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.list(f), nil
}

func (r readOrders) CountByStatus(context.Context) (map[domain.OrderStatus]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.countByStatus(), nil
}

// The helpers below expect s.mu to be held.

func (s *Store) shortfalls(items []domain.LineItem) []domain.Shortfall {
	var short []domain.Shortfall
	for _, li := range items {
		have := s.stock[li.Name].Quantity
		if have < li.Quantity {
			short = append(short, domain.Shortfall{Item: li.Name, Requested: li.Quantity, Available: have})
		}
	}
	return short
}

func (s *Store) get(id int64) (domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *Store) findActive(customerID string) (domain.Order, error) {
	var (
		best  domain.Order
		found bool
	)
	for _, o := range s.orders {
		if o.CustomerID != customerID || !o.Status.Active() {
			continue
		}
		if !found || o.Newer(best) {
			best, found = o, true
		}
	}
	if !found {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return best.Clone(), nil
}

func (s *Store) list(f domain.Filter) []domain.Order {
	out := make([]domain.Order, 0)
	for _, o := range s.orders {
		if f.Match(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Newer(out[j]) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (s *Store) countByStatus() map[domain.OrderStatus]int {
	counts := make(map[domain.OrderStatus]int)
	for _, o := range s.orders {
		counts[o.Status]++
	}
	return counts
}
