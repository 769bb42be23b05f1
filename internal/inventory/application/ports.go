package application

import (
	"context"

	"github.com/dmehra2102/foodshare/internal/inventory/domain"
	orderdomain "github.com/dmehra2102/foodshare/internal/order/domain"
)

// StockReader serves inventory reads. None of its methods lock or mutate stock.
type StockReader interface {
	CheckAvailability(ctx context.Context, items []orderdomain.LineItem) ([]orderdomain.Shortfall, error)
	Get(ctx context.Context, name string) (domain.Item, error)
	List(ctx context.Context) ([]domain.Item, error)
	LowStock(ctx context.Context, threshold int) ([]domain.Item, error)
}

// DonationRecorder stores a donation and adds its quantity to stock in one transaction.
type DonationRecorder interface {
	RecordDonation(ctx context.Context, d domain.Donation) (domain.Donation, error)
}

type StockRepository interface {
	StockReader
	DonationRecorder
}
