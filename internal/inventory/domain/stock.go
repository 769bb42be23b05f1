package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrItemNotFound    = errors.New("inventory item not found")
	ErrInvalidDonation = errors.New("invalid donation")
)

const (
	AnonymousDonor = "ANONYMOUS"

	DefaultLowStockThreshold = 10
	criticalStockLevel       = 5
)

type Item struct {
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	Quantity  int       `json:"available_quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Level string

const (
	LevelOK       Level = "ok"
	LevelLow      Level = "low"
	LevelCritical Level = "critical"
)

// Classify buckets a quantity: critical at or below 5, low at or below threshold.
func Classify(quantity, threshold int) Level {
	switch {
	case quantity <= criticalStockLevel:
		return LevelCritical
	case quantity <= threshold:
		return LevelLow
	default:
		return LevelOK
	}
}

type LowStockItem struct {
	Item
	Level Level `json:"level"`
}

type Donation struct {
	ID        int64     `json:"donation_id"`
	DonorID   string    `json:"donor_id"`
	ItemName  string    `json:"item_name"`
	Category  string    `json:"category,omitempty"`
	Quantity  int       `json:"quantity"`
	DonatedAt time.Time `json:"donated_at"`
}

// Normalize trims fields, fills defaults and validates the donation.
func (d Donation) Normalize(now time.Time) (Donation, error) {
	d.ItemName = strings.TrimSpace(d.ItemName)
	d.DonorID = strings.TrimSpace(d.DonorID)
	d.Category = strings.TrimSpace(d.Category)
	if d.ItemName == "" {
		return Donation{}, fmt.Errorf("%w: item_name is required", ErrInvalidDonation)
	}
	if d.Quantity <= 0 {
		return Donation{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidDonation)
	}
	if d.DonorID == "" {
		d.DonorID = AnonymousDonor
	}
	if d.DonatedAt.IsZero() {
		d.DonatedAt = now
	}
	d.DonatedAt = d.DonatedAt.UTC()
	return d, nil
}

// DonationReceived is the payload published by donor-facing systems onto the donation topic.
type DonationReceived struct {
	DonorID   string    `json:"donor_id"`
	ItemName  string    `json:"item_name"`
	Category  string    `json:"category,omitempty"`
	Quantity  int       `json:"quantity"`
	DonatedAt time.Time `json:"donated_at"`
}

func (e DonationReceived) Donation() Donation {
	return Donation{
		DonorID:   e.DonorID,
		ItemName:  e.ItemName,
		Category:  e.Category,
		Quantity:  e.Quantity,
		DonatedAt: e.DonatedAt,
	}
}
