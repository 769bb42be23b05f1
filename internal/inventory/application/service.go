package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmehra2102/foodshare/internal/inventory/domain"
	orderdomain "github.com/dmehra2102/foodshare/internal/order/domain"
)

type Service struct {
	log       *slog.Logger
	repo      StockRepository
	threshold int
	now       func() time.Time
}

func NewService(log *slog.Logger, repo StockRepository, lowStockThreshold int) *Service {
	if lowStockThreshold <= 0 {
		lowStockThreshold = domain.DefaultLowStockThreshold
	}
	return &Service{log: log, repo: repo, threshold: lowStockThreshold, now: time.Now}
}

// Check reports shortfalls for items without reserving anything. Calling it any number of
// times leaves stock untouched.
func (s *Service) Check(ctx context.Context, items map[string]int) ([]orderdomain.Shortfall, error) {
	req := orderdomain.Request{Items: items}
	return s.repo.CheckAvailability(ctx, req.LineItems())
}

func (s *Service) Stock(ctx context.Context, name string) (domain.Item, error) {
	return s.repo.Get(ctx, name)
}

func (s *Service) List(ctx context.Context) ([]domain.Item, error) {
	return s.repo.List(ctx)
}

// LowStock lists items at or below threshold, most depleted first. A non-positive
// threshold uses the configured default.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]domain.LowStockItem, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}
	items, err := s.repo.LowStock(ctx, threshold)
	if err != nil {
		return nil, err
	}
	out := make([]domain.LowStockItem, 0, len(items))
	for _, it := range items {
		out = append(out, domain.LowStockItem{Item: it, Level: domain.Classify(it.Quantity, threshold)})
	}
	return out, nil
}

func (s *Service) ReceiveDonation(ctx context.Context, d domain.Donation) (domain.Donation, error) {
	d, err := d.Normalize(s.now())
	if err != nil {
		return domain.Donation{}, err
	}
	saved, err := s.repo.RecordDonation(ctx, d)
	if err != nil {
		s.log.Error("donation failed", "item", d.ItemName, "err", err)
		return domain.Donation{}, err
	}
	s.log.Info("donation recorded", "donation_id", saved.ID, "item", saved.ItemName, "quantity", saved.Quantity)
	return saved, nil
}

// Threshold is the configured low-stock threshold.
func (s *Service) Threshold() int { return s.threshold }
