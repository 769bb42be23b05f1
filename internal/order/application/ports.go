package application

import (
	"context"

	"github.com/dmehra2102/foodshare/internal/order/domain"
	"github.com/dmehra2102/foodshare/pkg/outbox"
)

// InventoryStore is the stock side of a fulfillment unit of work.
type InventoryStore interface {
	// CheckAvailability returns every item that cannot be covered. Inside a unit of work
	// the checked rows stay locked until the unit ends.
	CheckAvailability(ctx context.Context, items []domain.LineItem) ([]domain.Shortfall, error)
	// Decrement subtracts the quantities. It must follow a successful check in the same unit.
	Decrement(ctx context.Context, items []domain.LineItem) error
}

type OrderStore interface {
	Create(ctx context.Context, o domain.Order) (int64, error)
	Get(ctx context.Context, id int64) (domain.Order, error)
	FindActiveByCustomer(ctx context.Context, customerID string) (domain.Order, error)
	FindHistoryByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	// UpdateStatus returns false when the order does not exist and a *domain.TransitionError
	// when the move is not forward.
	UpdateStatus(ctx context.Context, id int64, to domain.OrderStatus) (bool, error)
	List(ctx context.Context, f domain.Filter) ([]domain.Order, error)
	CountByStatus(ctx context.Context) (map[domain.OrderStatus]int, error)
}

type EventSink interface {
	Enqueue(ctx context.Context, ev outbox.Event) error
}

type Tx interface {
	Inventory() InventoryStore
	Orders() OrderStore
	Outbox() EventSink
}

// UnitOfWork runs fn atomically: every write made through tx is committed when fn returns
// nil and discarded otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Orders serves reads outside of a unit of work.
	Orders() OrderStore
}
