package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/foodshare/internal/order/domain"
	"github.com/dmehra2102/foodshare/pkg/outbox"
	"github.com/dmehra2102/foodshare/pkg/tracing"
)

var ErrPersistence = errors.New("persistence error")

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

const aggregateType = "order"

type Service struct {
	log    *slog.Logger
	uow    UnitOfWork
	now    func() time.Time
	tracer trace.Tracer
}

func NewService(log *slog.Logger, uow UnitOfWork) *Service {
	return &Service{
		log:    log,
		uow:    uow,
		now:    time.Now,
		tracer: otel.Tracer("order-service"),
	}
}

// SubmitOrder validates req, reserves stock and records the order as one unit. A rejected
// submission leaves inventory and orders untouched. Rejections come back as
// *domain.ValidationError or *domain.AvailabilityError, storage faults as *PersistenceError.
func (s *Service) SubmitOrder(ctx context.Context, req domain.Request) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "SubmitOrder")
	defer span.End()

	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}

	o := domain.NewOrder(req, s.now())
	traceparent := tracing.Traceparent(ctx)

	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		short, err := tx.Inventory().CheckAvailability(ctx, o.Items)
		if err != nil {
			return &PersistenceError{Op: "check availability", Err: err}
		}
		if len(short) > 0 {
			return &domain.AvailabilityError{Shortfalls: short}
		}

		id, err := tx.Orders().Create(ctx, o)
		if err != nil {
			return &PersistenceError{Op: "create order", Err: err}
		}
		o.ID = id

		if err := tx.Inventory().Decrement(ctx, o.Items); err != nil {
			return &PersistenceError{Op: "decrement inventory", Err: err}
		}

		ev, err := outbox.NewEvent(aggregateType, strconv.FormatInt(id, 10), domain.EventOrderPlaced, domain.OrderPlaced{
			OrderID:         id,
			CustomerID:      o.CustomerID,
			DeliveryAddress: o.DeliveryAddress,
			PartySize:       o.PartySize,
			Items:           o.Items,
			PlacedAt:        o.CreatedAt,
		}, map[string]string{"source": "fulfillment-service"}, traceparent)
		if err != nil {
			return err
		}
		if err := tx.Outbox().Enqueue(ctx, ev); err != nil {
			return &PersistenceError{Op: "enqueue event", Err: err}
		}
		return nil
	})
	if err != nil {
		var ae *domain.AvailabilityError
		if errors.As(err, &ae) {
			s.log.Info("order rejected", "customer_id", o.CustomerID, "shortfalls", len(ae.Shortfalls))
			return domain.Order{}, err
		}
		span.RecordError(err)
		s.log.Error("order submission failed", "customer_id", o.CustomerID, "err", err)
		return domain.Order{}, asPersistence("submit order", err)
	}

	span.SetAttributes(attribute.Int64("order.id", o.ID))
	s.log.Info("order confirmed", "order_id", o.ID, "customer_id", o.CustomerID, "items", len(o.Items))
	return o.Clone(), nil
}

// TrackOrder returns the customer's most recent active order; ok is false when none exists.
func (s *Service) TrackOrder(ctx context.Context, customerID string) (domain.Order, bool, error) {
	o, err := s.uow.Orders().FindActiveByCustomer(ctx, customerID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, asPersistence("track order", err)
	}
	return o, true, nil
}

// OrderHistory lists the customer's completed orders, newest first.
func (s *Service) OrderHistory(ctx context.Context, customerID string) ([]domain.Order, error) {
	orders, err := s.uow.Orders().FindHistoryByCustomer(ctx, customerID)
	if err != nil {
		return nil, asPersistence("order history", err)
	}
	return orders, nil
}

// UpdateOrderStatus moves an order forward. It returns false when the order does not exist.
// Setting the current status again is accepted and changes nothing.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, to domain.OrderStatus) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "UpdateOrderStatus")
	defer span.End()

	if !to.Valid() {
		return false, &domain.UnknownStatusError{Value: string(to)}
	}
	traceparent := tracing.Traceparent(ctx)

	found := false
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.Orders().Get(ctx, orderID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if current.Status == to {
			return nil
		}

		ok, err := tx.Orders().UpdateStatus(ctx, orderID, to)
		if err != nil {
			return err
		}
		if !ok {
			found = false
			return nil
		}

		ev, err := outbox.NewEvent(aggregateType, strconv.FormatInt(orderID, 10), domain.EventOrderStatusChanged,
			domain.OrderStatusChanged{OrderID: orderID, From: current.Status, To: to, ChangedAt: s.now().UTC()},
			map[string]string{"source": "fulfillment-service"}, traceparent)
		if err != nil {
			return err
		}
		return tx.Outbox().Enqueue(ctx, ev)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return false, err
		}
		span.RecordError(err)
		s.log.Error("status update failed", "order_id", orderID, "status", to, "err", err)
		return false, asPersistence("update status", err)
	}
	if found {
		s.log.Info("order status updated", "order_id", orderID, "status", to)
	}
	return found, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID int64) (domain.Order, bool, error) {
	o, err := s.uow.Orders().Get(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, asPersistence("get order", err)
	}
	return o, true, nil
}

// ListOrders backs the pending-orders views; results are newest first.
func (s *Service) ListOrders(ctx context.Context, f domain.Filter) ([]domain.Order, error) {
	orders, err := s.uow.Orders().List(ctx, f)
	if err != nil {
		return nil, asPersistence("list orders", err)
	}
	return orders, nil
}

// Stats counts orders per status; every status is present in the result.
func (s *Service) Stats(ctx context.Context) (map[domain.OrderStatus]int, error) {
	counts, err := s.uow.Orders().CountByStatus(ctx)
	if err != nil {
		return nil, asPersistence("count orders", err)
	}
	out := make(map[domain.OrderStatus]int, len(domain.Statuses()))
	for _, st := range domain.Statuses() {
		out[st] = counts[st]
	}
	return out, nil
}

func asPersistence(op string, err error) error {
	if errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
