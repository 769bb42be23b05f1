package domain

import (
	"math"
	"sort"
	"strings"
	"time"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusInTransit  OrderStatus = "in_transit"
	StatusCompleted  OrderStatus = "completed"
)

// statusRank orders the lifecycle; a status may only move to a higher rank.
var statusRank = map[OrderStatus]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusInTransit:  2,
	StatusCompleted:  3,
}

func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

func (s OrderStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// Active reports whether the order still shows up in tracking.
func (s OrderStatus) Active() bool { return s != StatusCompleted }

// CanTransition allows forward moves only, skipping intermediate states is fine.
func CanTransition(from, to OrderStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return to.Rank() > from.Rank()
}

// ParseStatus accepts the canonical names as well as display forms like "In Transit".
func ParseStatus(raw string) (OrderStatus, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	s := OrderStatus(norm)
	if !s.Valid() {
		return "", &UnknownStatusError{Value: raw}
	}
	return s, nil
}

func Statuses() []OrderStatus {
	return []OrderStatus{StatusPending, StatusProcessing, StatusInTransit, StatusCompleted}
}

type LineItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type Order struct {
	ID              int64       `json:"order_id"`
	CustomerID      string      `json:"customer_id"`
	DeliveryAddress string      `json:"delivery_address"`
	PartySize       int         `json:"party_size"`
	Items           []LineItem  `json:"line_items"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Clone returns a copy that shares no slices with o.
func (o Order) Clone() Order {
	c := o
	c.Items = append([]LineItem(nil), o.Items...)
	return c
}

// Newer reports whether o sorts before other in newest-first listings.
func (o Order) Newer(other Order) bool {
	if !o.CreatedAt.Equal(other.CreatedAt) {
		return o.CreatedAt.After(other.CreatedAt)
	}
	return o.ID > other.ID
}

// MaxItemQuantity bounds a single line item, matching the INTEGER quantity columns.
const MaxItemQuantity = math.MaxInt32

// Request is the caller supplied input for a submission. It is never persisted as-is.
type Request struct {
	CustomerID      string         `json:"customer_id"`
	DeliveryAddress string         `json:"delivery_address"`
	PartySize       int            `json:"party_size"`
	Items           map[string]int `json:"items"`
}

func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.CustomerID) == "":
		return &ValidationError{Field: "customer_id", Reason: "is required"}
	case strings.TrimSpace(r.DeliveryAddress) == "":
		return &ValidationError{Field: "delivery_address", Reason: "is required"}
	case r.PartySize <= 0:
		return &ValidationError{Field: "party_size", Reason: "must be positive"}
	case len(r.Items) == 0:
		return &ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	totals := make(map[string]int, len(r.Items))
	for name, qty := range r.Items {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return &ValidationError{Field: "items", Reason: "item name is required"}
		}
		if qty <= 0 {
			return &ValidationError{Field: "items", Reason: "quantity for " + name + " must be positive"}
		}
		// names that trim to the same item are merged, so the bound applies to the sum
		if qty > MaxItemQuantity-totals[trimmed] {
			return &ValidationError{Field: "items", Reason: "quantity for " + trimmed + " is too large"}
		}
		totals[trimmed] += qty
	}
	return nil
}

// LineItems flattens the request items into a name-sorted slice. Names are trimmed and
// duplicates that collapse to the same name are summed.
func (r Request) LineItems() []LineItem {
	merged := make(map[string]int, len(r.Items))
	for name, qty := range r.Items {
		merged[strings.TrimSpace(name)] += qty
	}
	items := make([]LineItem, 0, len(merged))
	for name, qty := range merged {
		items = append(items, LineItem{Name: name, Quantity: qty})
	}
	SortItems(items)
	return items
}

func SortItems(items []LineItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
}

func NewOrder(r Request, now time.Time) Order {
	now = now.UTC()
	return Order{
		CustomerID:      strings.TrimSpace(r.CustomerID),
		DeliveryAddress: strings.TrimSpace(r.DeliveryAddress),
		PartySize:       r.PartySize,
		Items:           r.LineItems(),
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Filter narrows order listings. Zero values mean "any".
type Filter struct {
	Status          OrderStatus
	CustomerID      string
	Day             time.Time
	AddressContains string
	Limit           int
}

func (f Filter) Match(o Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.CustomerID != "" && o.CustomerID != f.CustomerID {
		return false
	}
	if !f.Day.IsZero() {
		y1, m1, d1 := f.Day.UTC().Date()
		y2, m2, d2 := o.CreatedAt.UTC().Date()
		if y1 != y2 || m1 != m2 || d1 != d2 {
			return false
		}
	}
	if f.AddressContains != "" &&
		!strings.Contains(strings.ToLower(o.DeliveryAddress), strings.ToLower(f.AddressContains)) {
		return false
	}
	return true
}
