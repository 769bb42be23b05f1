package memory

import (
	"context"
	"fmt"
	"sort"

	invdomain "github.com/dmehra2102/foodshare/internal/inventory/domain"
	"github.com/dmehra2102/foodshare/internal/order/domain"
)

func errStockChanged(item string) error {
	return fmt.Errorf("stock for %s changed during reservation", item)
}

func errNonPositive(item string, qty int) error {
	return fmt.Errorf("refusing to decrement %s by %d", item, qty)
}

func (s *Store) CheckAvailability(_ context.Context, items []domain.LineItem) ([]domain.Shortfall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shortfalls(items), nil
}

func (s *Store) Get(_ context.Context, name string) (invdomain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.stock[name]
	if !ok {
		return invdomain.Item{}, invdomain.ErrItemNotFound
	}
	return it, nil
}

func (s *Store) List(context.Context) ([]invdomain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]invdomain.Item, 0, len(s.stock))
	for _, it := range s.stock {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) LowStock(_ context.Context, threshold int) ([]invdomain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []invdomain.Item
	for _, it := range s.stock {
		if it.Quantity <= threshold {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity < out[j].Quantity
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) RecordDonation(_ context.Context, d invdomain.Donation) (invdomain.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.ID = int64(len(s.donations) + 1)
	s.donations = append(s.donations, d)

	it := s.stock[d.ItemName]
	it.Name = d.ItemName
	if d.Category != "" {
		it.Category = d.Category
	}
	it.Quantity += d.Quantity
	it.UpdatedAt = s.now().UTC()
	s.stock[d.ItemName] = it
	return d, nil
}
